package main

import (
	"log"

	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/internal/pkg/middleware"
	"robot_overlord_api/internal/pkg/registry"
	"robot_overlord_api/pkg/database"
	"robot_overlord_api/pkg/logger"
	"robot_overlord_api/pkg/response"

	// 各领域模块通过 init() 自注册
	_ "robot_overlord_api/internal/domain/appeal"
	_ "robot_overlord_api/internal/domain/content"
	_ "robot_overlord_api/internal/domain/loyalty"
	_ "robot_overlord_api/internal/domain/moderation"
	_ "robot_overlord_api/internal/domain/queue"
	_ "robot_overlord_api/internal/domain/sanction"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. 加载配置
	config.LoadConfig()

	// 2. 初始化日志
	logger.InitLogger(config.GlobalConfig.App.Env)
	defer logger.Sync()

	// 3. 初始化数据库和 Redis
	db := database.InitDatabase()
	rdb := database.InitRedis()

	// 4. 初始化路由
	if config.GlobalConfig.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.RateLimitMiddleware())
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 5. 按优先级初始化各领域模块
	moduleCtx := &registry.ModuleContext{
		DB:     db,
		Redis:  rdb,
		Router: r,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		log.Fatalf("Failed to init modules: %v", err)
	}

	// 6. 启动服务
	addr := ":" + config.GlobalConfig.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
