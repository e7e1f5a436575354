package moderation

import (
	"time"

	contentRepo "robot_overlord_api/internal/domain/content/repository"
	loyaltyRepo "robot_overlord_api/internal/domain/loyalty/repository"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	"robot_overlord_api/internal/domain/moderation/handler"
	moderationRepo "robot_overlord_api/internal/domain/moderation/repository"
	"robot_overlord_api/internal/domain/moderation/service"
	queueRepo "robot_overlord_api/internal/domain/queue/repository"
	queueService "robot_overlord_api/internal/domain/queue/service"
	sanctionRepo "robot_overlord_api/internal/domain/sanction/repository"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/oracle"
	"robot_overlord_api/internal/pkg/registry"
	"robot_overlord_api/pkg/cache"

	"github.com/gin-gonic/gin"
)

// ModerationModule 提交流水线模块
type ModerationModule struct{}

func init() {
	registry.Register(&ModerationModule{})
}

func (m *ModerationModule) Name() string {
	return "moderation"
}

func (m *ModerationModule) Priority() int {
	return 20
}

func (m *ModerationModule) Init(ctx *registry.ModuleContext) error {
	oracleCfg := config.GlobalConfig.Oracle
	client := oracle.NewClient(oracle.FactoryConfig{
		Provider:    oracleCfg.Provider,
		APIKey:      oracleCfg.APIKey,
		Model:       oracleCfg.Model,
		Temperature: oracleCfg.Temperature,
		Timeout:     time.Duration(oracleCfg.TimeoutSec) * time.Second,
	})

	cacheSvc := cache.NewRedisCache(ctx.Redis)
	contents := contentRepo.NewContentRepository(ctx.DB)
	queueSvc := queueService.NewQueueService(queueRepo.NewQueueRepository(ctx.DB), cacheSvc)
	loyaltySvc := loyaltyService.NewLoyaltyService(loyaltyRepo.NewLoyaltyRepository(ctx.DB), ctx.Redis, cacheSvc)
	sanctionSvc := sanctionService.NewSanctionService(sanctionRepo.NewSanctionRepository(ctx.DB))
	screener := service.NewScreener(client)

	submitSvc := service.NewSubmissionService(ctx.DB, contents, queueSvc, loyaltySvc, sanctionSvc, screener)
	submitHandler := handler.NewSubmissionHandler(submitSvc)

	flagSvc := service.NewFlagService(ctx.DB,
		moderationRepo.NewFlagRepository(ctx.DB), contents, loyaltySvc, sanctionSvc)
	flagHandler := handler.NewFlagHandler(flagSvc)

	setupRoutes(ctx.Router, submitHandler, flagHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.SubmissionHandler, fh *handler.FlagHandler) {
	authorized := r.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.POST("/topics", h.SubmitTopic)
		authorized.POST("/topics/:id/posts", h.SubmitPost)
		authorized.POST("/messages", h.SubmitMessage)
		authorized.POST("/flags", fh.CreateFlag)

		moderator := authorized.Group("/flags")
		moderator.Use(middleware.RequireRole("moderator", "admin"))
		{
			moderator.GET("/pending", fh.ListPendingFlags)
			moderator.POST("/:id/review", fh.ReviewFlag)
		}
	}
}
