package appeal

import (
	"robot_overlord_api/internal/domain/appeal/handler"
	"robot_overlord_api/internal/domain/appeal/repository"
	"robot_overlord_api/internal/domain/appeal/service"
	contentRepo "robot_overlord_api/internal/domain/content/repository"
	contentService "robot_overlord_api/internal/domain/content/service"
	loyaltyRepo "robot_overlord_api/internal/domain/loyalty/repository"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	sanctionRepo "robot_overlord_api/internal/domain/sanction/repository"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/registry"
	"robot_overlord_api/pkg/cache"

	"github.com/gin-gonic/gin"
)

// AppealModule 申诉工作流模块
type AppealModule struct{}

func init() {
	registry.Register(&AppealModule{})
}

func (m *AppealModule) Name() string {
	return "appeal"
}

// Priority 晚于 content/loyalty，依赖它们的服务
func (m *AppealModule) Priority() int {
	return 20
}

func (m *AppealModule) Init(ctx *registry.ModuleContext) error {
	contents := contentRepo.NewContentRepository(ctx.DB)
	versions := contentRepo.NewVersionRepository(ctx.DB)
	restoration := contentService.NewRestorationService(contents, versions)
	loyaltySvc := loyaltyService.NewLoyaltyService(
		loyaltyRepo.NewLoyaltyRepository(ctx.DB), ctx.Redis, cache.NewRedisCache(ctx.Redis))

	sanctionSvc := sanctionService.NewSanctionService(sanctionRepo.NewSanctionRepository(ctx.DB))

	aService := service.NewAppealService(ctx.DB,
		repository.NewAppealRepository(ctx.DB), contents, loyaltySvc, restoration, sanctionSvc, ctx.Redis)
	aHandler := handler.NewAppealHandler(aService)

	setupRoutes(ctx.Router, aHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.AppealHandler) {
	g := r.Group("/appeals")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("", h.CreateAppeal)
		g.GET("", h.ListMyAppeals)
		g.POST("/:id/withdraw", h.WithdrawAppeal)

		moderator := g.Group("")
		moderator.Use(middleware.RequireRole("moderator", "admin"))
		{
			moderator.GET("/review", h.ListReviewable)
			moderator.GET("/stats", h.GetStats)
			moderator.POST("/:id/assign", h.AssignAppeal)
			moderator.POST("/:id/decide", h.DecideAppeal)
		}
	}
}
