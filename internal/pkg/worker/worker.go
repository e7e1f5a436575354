package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	moderationService "robot_overlord_api/internal/domain/moderation/service"
	queueModel "robot_overlord_api/internal/domain/queue/model"
	queueService "robot_overlord_api/internal/domain/queue/service"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// moderationQueues 完整审核 worker 轮询的队列，按业务优先级排列
var moderationQueues = []queueModel.QueueType{
	queueModel.QueueTopicCreation,
	queueModel.QueuePostModeration,
	queueModel.QueuePrivateMessage,
}

// Pool 审核 worker 池：若干认领循环协程加三个周期性维护协程
// （失联认领回收、排行榜刷新、过期制裁清理）
type Pool struct {
	stage    moderationService.StageService
	queue    queueService.QueueService
	loyalty  loyaltyService.LoyaltyService
	sanction sanctionService.SanctionService

	workerNum    int
	pollInterval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPool 创建 worker 池，参数从配置读取
func NewPool(
	stage moderationService.StageService,
	queue queueService.QueueService,
	loyalty loyaltyService.LoyaltyService,
	sanction sanctionService.SanctionService,
) *Pool {
	cfg := config.GlobalConfig.Moderation
	return &Pool{
		stage:        stage,
		queue:        queue,
		loyalty:      loyalty,
		sanction:     sanction,
		workerNum:    cfg.WorkerCount,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		stop:         make(chan struct{}),
	}
}

// Start 启动全部协程，非阻塞
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerNum; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		p.wg.Add(1)
		go p.claimLoop(ctx, workerID)
	}

	p.wg.Add(3)
	go p.reaperLoop(ctx)
	go p.rankingLoop(ctx)
	go p.sanctionSweepLoop(ctx)

	logger.Log.Info("moderation worker pool started",
		zap.Int("workers", p.workerNum),
		zap.Duration("poll_interval", p.pollInterval),
	)
}

// Stop 停止并等待所有协程退出
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
	logger.Log.Info("moderation worker pool stopped")
}

// claimLoop 单个 worker：预筛队列优先，其次按序尝试各审核队列；
// 一轮全空则按轮询间隔休眠
func (p *Pool) claimLoop(ctx context.Context, workerID string) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		processed := p.runOnce(ctx, workerID)
		if !processed {
			select {
			case <-p.stop:
				return
			case <-time.After(p.pollInterval):
			}
		}
	}
}

func (p *Pool) runOnce(ctx context.Context, workerID string) bool {
	processed, err := p.stage.ScreenNext(ctx, workerID)
	if err != nil {
		logger.Log.Error("screening step failed", zap.String("worker_id", workerID), zap.Error(err))
	}
	if processed {
		return true
	}

	for _, qt := range moderationQueues {
		processed, err := p.stage.ModerateNext(ctx, qt, workerID)
		if err != nil {
			logger.Log.Error("moderation step failed",
				zap.String("worker_id", workerID),
				zap.String("queue_type", string(qt)),
				zap.Error(err),
			)
			continue
		}
		if processed {
			return true
		}
	}
	return false
}

// reaperLoop 周期回收失联 worker 的认领
func (p *Pool) reaperLoop(ctx context.Context) {
	defer p.wg.Done()

	interval := time.Duration(config.GlobalConfig.Queue.ReaperIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	all := append([]queueModel.QueueType{queueModel.QueuePostTosScreening}, moderationQueues...)
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, qt := range all {
				if _, err := p.queue.ReleaseStale(qt); err != nil {
					logger.Log.Error("stale claim sweep failed",
						zap.String("queue_type", string(qt)), zap.Error(err))
				}
			}
		}
	}
}

// rankingLoop 周期全量刷新排行榜投影
func (p *Pool) rankingLoop(ctx context.Context) {
	defer p.wg.Done()

	interval := time.Duration(config.GlobalConfig.Loyalty.RankRefreshSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 启动即刷新一次，避免冷启动排行榜为空
	if err := p.loyalty.RefreshRanking(ctx); err != nil {
		logger.Log.Error("initial ranking refresh failed", zap.Error(err))
	}

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.loyalty.RefreshRanking(ctx); err != nil {
				logger.Log.Error("ranking refresh failed", zap.Error(err))
			}
		}
	}
}

// sanctionSweepLoop 周期停用过期制裁
func (p *Pool) sanctionSweepLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.sanction.ExpireSweep(); err != nil {
				logger.Log.Error("sanction expire sweep failed", zap.Error(err))
			}
		}
	}
}
