package queue

import (
	"robot_overlord_api/internal/domain/queue/handler"
	"robot_overlord_api/internal/domain/queue/repository"
	"robot_overlord_api/internal/domain/queue/service"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/registry"
	"robot_overlord_api/pkg/cache"

	"github.com/gin-gonic/gin"
)

// QueueModule 队列查询模块
type QueueModule struct{}

func init() {
	registry.Register(&QueueModule{})
}

func (m *QueueModule) Name() string {
	return "queue"
}

func (m *QueueModule) Priority() int {
	return 10
}

func (m *QueueModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewQueueRepository(ctx.DB)
	qService := service.NewQueueService(repo, cache.NewRedisCache(ctx.Redis))
	qHandler := handler.NewQueueHandler(qService)

	setupRoutes(ctx.Router, qHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.QueueHandler) {
	g := r.Group("/queues")

	// 队列概览公开，位置查询需要登录
	g.GET("/overview", h.GetOverview)

	authorized := g.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.GET("/:type/position/:contentPk", h.GetPosition)
	}
}
