package content

import (
	"robot_overlord_api/internal/domain/content/handler"
	"robot_overlord_api/internal/domain/content/repository"
	"robot_overlord_api/internal/domain/content/service"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// ContentModule 内容读侧模块
type ContentModule struct{}

func init() {
	registry.Register(&ContentModule{})
}

func (m *ContentModule) Name() string {
	return "content"
}

func (m *ContentModule) Priority() int {
	return 10
}

func (m *ContentModule) Init(ctx *registry.ModuleContext) error {
	contents := repository.NewContentRepository(ctx.DB)
	versions := repository.NewVersionRepository(ctx.DB)
	cService := service.NewContentService(contents, versions)
	cHandler := handler.NewContentHandler(cService)

	setupRoutes(ctx.Router, cHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.ContentHandler) {
	// 公开读
	r.GET("/topics", h.ListTopics)
	r.GET("/topics/:id", h.GetTopic)
	r.GET("/topics/:id/posts", h.ListPosts)

	authorized := r.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.GET("/messages/:userPk", h.GetConversation)

		// 版本历史仅审核人可见
		moderator := authorized.Group("")
		moderator.Use(middleware.RequireRole("moderator", "admin"))
		{
			moderator.GET("/contents/:id/versions", h.GetVersionHistory)
		}
	}
}
