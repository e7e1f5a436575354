package sanction

import (
	"robot_overlord_api/internal/domain/sanction/handler"
	"robot_overlord_api/internal/domain/sanction/repository"
	"robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// SanctionModule 制裁模块
type SanctionModule struct{}

func init() {
	registry.Register(&SanctionModule{})
}

func (m *SanctionModule) Name() string {
	return "sanction"
}

func (m *SanctionModule) Priority() int {
	return 10
}

func (m *SanctionModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewSanctionRepository(ctx.DB)
	sService := service.NewSanctionService(repo)
	sHandler := handler.NewSanctionHandler(sService)

	setupRoutes(ctx.Router, sHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.SanctionHandler) {
	g := r.Group("/sanctions")
	g.Use(middleware.AuthMiddleware())
	g.Use(middleware.RequireRole("moderator", "admin"))
	{
		g.POST("", h.ApplySanction)
		g.POST("/:id/lift", h.LiftSanction)
		g.GET("/users/:userPk", h.ListUserSanctions)
	}
}
