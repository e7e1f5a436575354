package service

import (
	"context"
	"errors"
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	"robot_overlord_api/internal/domain/queue/model"
	"robot_overlord_api/internal/domain/queue/repository"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/pkg/cache"
	"robot_overlord_api/pkg/logger"
	"robot_overlord_api/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyQueued 幂等重复提交
	ErrAlreadyQueued = repository.ErrAlreadyQueued
	// ErrNothingToClaim 队列为空或全部被抢走
	ErrNothingToClaim = errors.New("nothing to claim")
	// ErrNotClaimed 条目不处于被认领状态
	ErrNotClaimed = errors.New("entry is not claimed")
)

const overviewCacheKey = "queue:overview"

// claimScanBatch 一次认领尝试扫描的候选条数
const claimScanBatch = 8

// EnqueueRequest 入队请求
type EnqueueRequest struct {
	QueueType      model.QueueType
	ContentPK      string
	ContentType    contentModel.ContentType
	AuthorPK       string
	ConversationID string
	Priority       model.PriorityTier
}

// QueueService 通用优先级工作队列
type QueueService interface {
	// Enqueue 入队；tx 非空时与调用方的内容状态转移同生共死，
	// 避免内容停在 queued 却没有队列条目的静默丢失
	Enqueue(tx *gorm.DB, req EnqueueRequest) (*model.QueueEntry, error)
	// Position 展示估计值；未入队内容返回 nil
	Position(queueType model.QueueType, contentPK string) (*model.PositionInfo, error)
	// Claim 原子认领排名最高的待处理条目；队列为空返回 ErrNothingToClaim
	Claim(queueType model.QueueType, workerID string) (*model.QueueEntry, error)
	// Complete 终结条目，不可逆；tx 非空时与业务状态转移同事务
	Complete(tx *gorm.DB, entryID string) error
	// Release 把认领中的条目放回队列，保留到达资历
	Release(entryID string) error
	// ReleaseStale 回收超过存活窗口的认领（worker 失联）
	ReleaseStale(queueType model.QueueType) (int, error)
	Overview(ctx context.Context) (*model.Overview, error)
}

type queueService struct {
	repo  repository.QueueRepository
	cache cache.CacheService
}

// NewQueueService 创建队列服务
func NewQueueService(repo repository.QueueRepository, cacheSvc cache.CacheService) QueueService {
	return &queueService{repo: repo, cache: cacheSvc}
}

func tierOffset(tier model.PriorityTier) int64 {
	offsets := config.GlobalConfig.Queue.TierOffsets
	if off, ok := offsets[string(tier)]; ok {
		return off
	}
	return 0
}

func (s *queueService) Enqueue(tx *gorm.DB, req EnqueueRequest) (*model.QueueEntry, error) {
	now := time.Now()
	tier := req.Priority
	if tier == "" {
		tier = model.TierStandard
	}

	entry := &model.QueueEntry{
		QueueType:      req.QueueType,
		ContentPK:      req.ContentPK,
		ContentType:    req.ContentType,
		AuthorPK:       req.AuthorPK,
		ConversationID: req.ConversationID,
		Priority:       tier,
		PriorityScore:  model.ComputeScore(now, tierOffset(tier)),
		Status:         model.EntryPending,
		EnteredQueueAt: now,
	}

	if err := s.repo.Create(tx, entry); err != nil {
		return nil, err
	}

	if depth, err := s.repo.Depth(req.QueueType); err == nil {
		metrics.Default.SetQueueDepth(string(req.QueueType), float64(depth))
	}

	return entry, nil
}

func (s *queueService) Position(queueType model.QueueType, contentPK string) (*model.PositionInfo, error) {
	entry, err := s.repo.GetOpenByContent(queueType, contentPK)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	info := &model.PositionInfo{
		QueueID:   entry.ID,
		Status:    entry.Status,
		EnteredAt: entry.EnteredQueueAt,
	}

	if entry.Status == model.EntryPending {
		pos, err := s.repo.PositionOf(entry)
		if err != nil {
			return nil, err
		}
		info.Position = pos

		avg, _ := s.repo.AvgProcessingSeconds(queueType, time.Now().Add(-time.Hour))
		info.EstimatedWaitSecond = int64(float64(pos) * avg)
	}

	return info, nil
}

func (s *queueService) Claim(queueType model.QueueType, workerID string) (*model.QueueEntry, error) {
	ids, err := s.repo.FetchPendingIDs(queueType, claimScanBatch)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, id := range ids {
		won, err := s.repo.ClaimCAS(id, workerID, now)
		if err != nil {
			return nil, err
		}
		metrics.Default.RecordClaim(string(queueType), won)
		if !won {
			// 输掉竞争，尝试下一个候选
			continue
		}

		entry, err := s.repo.GetByID(id)
		if err != nil {
			return nil, err
		}
		metrics.Default.RecordQueueWait(string(queueType), now.Sub(entry.EnteredQueueAt).Seconds())
		return entry, nil
	}

	return nil, ErrNothingToClaim
}

func (s *queueService) Complete(tx *gorm.DB, entryID string) error {
	ok, err := s.repo.CompleteCAS(tx, entryID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotClaimed
	}
	return nil
}

func (s *queueService) Release(entryID string) error {
	ok, err := s.repo.ReleaseCAS(entryID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotClaimed
	}
	return nil
}

func (s *queueService) ReleaseStale(queueType model.QueueType) (int, error) {
	cutoff := time.Now().Add(-config.GlobalConfig.Queue.ClaimTimeout())
	ids, err := s.repo.StaleClaimIDs(queueType, cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		ok, err := s.repo.ReleaseCAS(id)
		if err != nil {
			return released, err
		}
		if ok {
			released++
			metrics.Default.RecordRelease(string(queueType))
			if logger.Log != nil {
				logger.Log.Warn("released stale claim",
					zap.String("queue_type", string(queueType)),
					zap.String("entry_id", id),
				)
			}
		}
	}
	return released, nil
}

func (s *queueService) Overview(ctx context.Context) (*model.Overview, error) {
	var cached model.Overview
	if s.cache != nil {
		if err := s.cache.Get(ctx, overviewCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	overview := &model.Overview{LastUpdated: time.Now()}
	var err error
	if overview.TopicCreationLength, err = s.repo.Depth(model.QueueTopicCreation); err != nil {
		return nil, err
	}
	if overview.PostTosScreeningLength, err = s.repo.Depth(model.QueuePostTosScreening); err != nil {
		return nil, err
	}
	if overview.PostModerationLength, err = s.repo.Depth(model.QueuePostModeration); err != nil {
		return nil, err
	}
	if overview.PrivateMessageLength, err = s.repo.Depth(model.QueuePrivateMessage); err != nil {
		return nil, err
	}
	overview.AvgProcessingSeconds, _ = s.repo.AvgProcessingSeconds(model.QueuePostModeration, time.Now().Add(-time.Hour))

	if s.cache != nil {
		_ = s.cache.Set(ctx, overviewCacheKey, overview, 30*time.Second)
	}
	return overview, nil
}
