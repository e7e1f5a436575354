package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	contentRepo "robot_overlord_api/internal/domain/content/repository"
	loyaltyRepo "robot_overlord_api/internal/domain/loyalty/repository"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	moderationService "robot_overlord_api/internal/domain/moderation/service"
	queueRepo "robot_overlord_api/internal/domain/queue/repository"
	queueService "robot_overlord_api/internal/domain/queue/service"
	sanctionRepo "robot_overlord_api/internal/domain/sanction/repository"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/internal/pkg/oracle"
	"robot_overlord_api/internal/pkg/worker"
	"robot_overlord_api/pkg/cache"
	"robot_overlord_api/pkg/database"
	"robot_overlord_api/pkg/logger"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.GlobalConfig.App.Env)
	defer logger.Sync()

	db := database.InitDatabase()
	rdb := database.InitRedis()
	cacheSvc := cache.NewRedisCache(rdb)

	oracleCfg := config.GlobalConfig.Oracle
	client := oracle.NewClient(oracle.FactoryConfig{
		Provider:    oracleCfg.Provider,
		APIKey:      oracleCfg.APIKey,
		Model:       oracleCfg.Model,
		Temperature: oracleCfg.Temperature,
		Timeout:     time.Duration(oracleCfg.TimeoutSec) * time.Second,
	})

	contents := contentRepo.NewContentRepository(db)
	queueSvc := queueService.NewQueueService(queueRepo.NewQueueRepository(db), cacheSvc)
	loyaltySvc := loyaltyService.NewLoyaltyService(loyaltyRepo.NewLoyaltyRepository(db), rdb, cacheSvc)
	sanctionSvc := sanctionService.NewSanctionService(sanctionRepo.NewSanctionRepository(db))
	screener := moderationService.NewScreener(client)
	stageSvc := moderationService.NewStageService(db, contents, queueSvc, loyaltySvc, screener, client)

	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(stageSvc, queueSvc, loyaltySvc, sanctionSvc)
	pool.Start(ctx)

	// 等待退出信号后优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker pool...")
	cancel()
	pool.Stop()
}
