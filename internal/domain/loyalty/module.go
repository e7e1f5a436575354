package loyalty

import (
	"robot_overlord_api/internal/domain/loyalty/handler"
	"robot_overlord_api/internal/domain/loyalty/repository"
	"robot_overlord_api/internal/domain/loyalty/service"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/registry"
	"robot_overlord_api/pkg/cache"

	"github.com/gin-gonic/gin"
)

// LoyaltyModule 声誉账本模块
type LoyaltyModule struct{}

func init() {
	registry.Register(&LoyaltyModule{})
}

func (m *LoyaltyModule) Name() string {
	return "loyalty"
}

func (m *LoyaltyModule) Priority() int {
	return 10
}

func (m *LoyaltyModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewLoyaltyRepository(ctx.DB)
	lService := service.NewLoyaltyService(repo, ctx.Redis, cache.NewRedisCache(ctx.Redis))
	lHandler := handler.NewLoyaltyHandler(lService)

	setupRoutes(ctx.Router, lHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.LoyaltyHandler) {
	g := r.Group("/loyalty")

	// 排行榜公开
	g.GET("/leaderboard", h.GetLeaderboard)

	authorized := g.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.GET("/me", h.GetMyProfile)
		authorized.GET("/me/events", h.GetMyEvents)

		admin := authorized.Group("")
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.POST("/adjustments", h.ManualAdjust)
			admin.POST("/:userPk/rebuild", h.Rebuild)
		}
	}
}
