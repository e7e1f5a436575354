package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	contentRepo "robot_overlord_api/internal/domain/content/repository"
	loyaltyModel "robot_overlord_api/internal/domain/loyalty/model"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	queueModel "robot_overlord_api/internal/domain/queue/model"
	queueService "robot_overlord_api/internal/domain/queue/service"
	"robot_overlord_api/internal/pkg/oracle"
	"robot_overlord_api/pkg/logger"
	"robot_overlord_api/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnknownDecision 审裁返回了无法映射的裁决
var ErrUnknownDecision = errors.New("unknown oracle decision")

// StageService 队列消费侧：认领条目、调用审裁、原子落定结果
type StageService interface {
	// ScreenNext 消费一条帖子预筛队列条目；队列为空返回 (false, nil)
	ScreenNext(ctx context.Context, workerID string) (bool, error)
	// ModerateNext 消费一条完整审核队列条目；队列为空返回 (false, nil)
	ModerateNext(ctx context.Context, queueType queueModel.QueueType, workerID string) (bool, error)
}

type stageService struct {
	db       *gorm.DB
	contents contentRepo.ContentRepository
	queue    queueService.QueueService
	loyalty  loyaltyService.LoyaltyService
	screener *Screener
	oracle   oracle.Client
}

// NewStageService 创建审核阶段服务
func NewStageService(
	db *gorm.DB,
	contents contentRepo.ContentRepository,
	queue queueService.QueueService,
	loyalty loyaltyService.LoyaltyService,
	screener *Screener,
	client oracle.Client,
) StageService {
	return &stageService{
		db:       db,
		contents: contents,
		queue:    queue,
		loyalty:  loyalty,
		screener: screener,
		oracle:   client,
	}
}

func (s *stageService) ScreenNext(ctx context.Context, workerID string) (bool, error) {
	entry, err := s.queue.Claim(queueModel.QueuePostTosScreening, workerID)
	if err != nil {
		if errors.Is(err, queueService.ErrNothingToClaim) {
			return false, nil
		}
		return false, err
	}

	ref, err := s.contents.GetRef(entry.ContentType, entry.ContentPK)
	if err != nil {
		// 内容已不可达，释放条目避免卡死
		_ = s.queue.Release(entry.ID)
		return false, err
	}

	decision := s.screener.Evaluate(ctx, oracle.Input{
		Content:     ref.Body,
		Title:       ref.Title,
		ContentType: string(ref.ContentType),
	})

	if decision.Reject {
		feedback := decision.Reasoning
		if decision.ViolationType != "" {
			feedback = decision.ViolationType + ": " + feedback
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.contents.TransitionStatus(tx, ref.ContentType, ref.PK,
				contentModel.StatusSubmitted, contentModel.StatusToSViolation, feedback); err != nil {
				return err
			}
			if _, err := s.loyalty.RecordModeration(tx, loyaltyService.ModerationOutcome{
				UserPK:      ref.AuthorPK,
				ContentType: ref.ContentType,
				ContentPK:   ref.PK,
				Outcome:     loyaltyModel.OutcomeToSViolation,
				Reason:      feedback,
			}); err != nil {
				return err
			}
			return s.queue.Complete(tx, entry.ID)
		})
		if err != nil {
			_ = s.queue.Release(entry.ID)
			return false, err
		}

		logger.Log.Info("post rejected at tos screening",
			zap.String("content_pk", ref.PK),
			zap.String("violation_type", decision.ViolationType),
		)
		return true, nil
	}

	// 放行：状态转移、转入完整审核队列、预筛条目终结同事务提交，
	// 内容不会停在 queued 却在任何队列里都找不到
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.contents.TransitionStatus(tx, ref.ContentType, ref.PK,
			contentModel.StatusSubmitted, contentModel.StatusQueued, ""); err != nil {
			return err
		}
		if _, err := s.queue.Enqueue(tx, queueService.EnqueueRequest{
			QueueType:   queueModel.QueuePostModeration,
			ContentPK:   ref.PK,
			ContentType: ref.ContentType,
			AuthorPK:    ref.AuthorPK,
			Priority:    entry.Priority,
		}); err != nil && !errors.Is(err, queueService.ErrAlreadyQueued) {
			return err
		}
		return s.queue.Complete(tx, entry.ID)
	})
	if err != nil {
		_ = s.queue.Release(entry.ID)
		return false, err
	}
	return true, nil
}

// verdictMapping 裁决到内容状态与账本结果的映射
func verdictMapping(decision oracle.Decision) (contentModel.Status, loyaltyModel.Outcome, error) {
	switch decision {
	case oracle.DecisionApproved:
		return contentModel.StatusApproved, loyaltyModel.OutcomeApproved, nil
	case oracle.DecisionWarning:
		// 警告放行内容，但账本记零增量事件
		return contentModel.StatusApproved, loyaltyModel.OutcomeWarning, nil
	case oracle.DecisionRejected:
		return contentModel.StatusRejected, loyaltyModel.OutcomeRejected, nil
	case oracle.DecisionToSViolation:
		return contentModel.StatusToSViolation, loyaltyModel.OutcomeToSViolation, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
}

func (s *stageService) ModerateNext(ctx context.Context, queueType queueModel.QueueType, workerID string) (bool, error) {
	entry, err := s.queue.Claim(queueType, workerID)
	if err != nil {
		if errors.Is(err, queueService.ErrNothingToClaim) {
			return false, nil
		}
		return false, err
	}

	ref, err := s.contents.GetRef(entry.ContentType, entry.ContentPK)
	if err != nil {
		_ = s.queue.Release(entry.ID)
		return false, err
	}

	start := time.Now()
	verdict, err := s.oracle.Judge(ctx, oracle.Input{
		Content:     ref.Body,
		Title:       ref.Title,
		ContentType: string(ref.ContentType),
	})
	metrics.Default.RecordOracleCall("judge", time.Since(start).Seconds(), err)
	if err != nil {
		// 审裁不可用：释放条目保留资历，稍后重试
		logger.Log.Warn("oracle judge failed, releasing entry",
			zap.String("entry_id", entry.ID),
			zap.String("content_pk", ref.PK),
			zap.Error(err),
		)
		_ = s.queue.Release(entry.ID)
		return false, err
	}

	status, outcome, err := verdictMapping(verdict.Decision)
	if err != nil {
		_ = s.queue.Release(entry.ID)
		return false, err
	}

	// 终结转移、账本事件、队列完成必须同生共死
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.contents.TransitionStatus(tx, ref.ContentType, ref.PK,
			contentModel.StatusQueued, status, verdict.Feedback); err != nil {
			return err
		}
		if _, err := s.loyalty.RecordModeration(tx, loyaltyService.ModerationOutcome{
			UserPK:      ref.AuthorPK,
			ContentType: ref.ContentType,
			ContentPK:   ref.PK,
			Outcome:     outcome,
			Reason:      verdict.Feedback,
		}); err != nil {
			return err
		}
		return s.queue.Complete(tx, entry.ID)
	})
	if err != nil {
		_ = s.queue.Release(entry.ID)
		return false, err
	}

	logger.Log.Info("content moderated",
		zap.String("content_pk", ref.PK),
		zap.String("content_type", string(ref.ContentType)),
		zap.String("decision", string(verdict.Decision)),
		zap.String("worker_id", workerID),
	)
	return true, nil
}
