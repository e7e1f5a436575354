package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"robot_overlord_api/internal/domain/appeal/model"
	"robot_overlord_api/internal/domain/appeal/repository"
	contentModel "robot_overlord_api/internal/domain/content/model"
	contentRepo "robot_overlord_api/internal/domain/content/repository"
	contentService "robot_overlord_api/internal/domain/content/service"
	loyaltyModel "robot_overlord_api/internal/domain/loyalty/model"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	queueModel "robot_overlord_api/internal/domain/queue/model"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrAppealReasonLength 理由长度不在允许区间
	ErrAppealReasonLength = errors.New("appeal reason length out of bounds")
	// ErrNotAppealable 内容不处于可申诉的负面终态
	ErrNotAppealable = errors.New("content is not in an appealable state")
	// ErrNotContentOwner 只能申诉自己的内容
	ErrNotContentOwner = errors.New("only the content author may appeal")
	// ErrAppealWindowClosed 内容超过可申诉时限
	ErrAppealWindowClosed = errors.New("appeal window for this content has closed")
	// ErrAppealCooldown 对该内容的上次驳回仍在冷却期内
	ErrAppealCooldown = errors.New("appeal cooldown in effect for this content")
	// ErrAppealLimitReached 当日申诉配额已用尽
	ErrAppealLimitReached = errors.New("daily appeal limit reached")
	// ErrActiveAppealExists 同一内容已有活跃申诉
	ErrActiveAppealExists = repository.ErrActiveAppealExists
	// ErrAppealNotAssigned 申诉未分配给该审核人或状态不符
	ErrAppealNotAssigned = errors.New("appeal is not assigned to this reviewer")
	// ErrAppealTerminal 申诉已处于终态
	ErrAppealTerminal = errors.New("appeal is already terminal")
	// ErrRationaleRequired 裁决必须附带理由
	ErrRationaleRequired = errors.New("decision rationale is required")
)

// frivolousPenaltyMS 每次窗口内被驳回的申诉把新申诉的优先级
// 推后这么多毫秒当量（相当于晚到十分钟）
const frivolousPenaltyMS = 10 * 60 * 1000

// deniedWindow 滥诉统计窗口
const deniedWindow = 30 * 24 * time.Hour

// DecideRequest 审核人裁决请求
type DecideRequest struct {
	AppealID   string
	ReviewerPK string
	Sustain    bool
	Rationale  string
	// 得直时可选应用的编辑稿
	EditedTitle   *string
	EditedContent *string
}

// AppealService 申诉工作流
type AppealService interface {
	Create(ctx context.Context, appellantPK string, contentType string, contentPK, reason string) (*model.Appeal, error)
	Withdraw(id, appellantPK string) error
	Assign(id, reviewerPK string) error
	Decide(ctx context.Context, req DecideRequest) (*model.Appeal, error)

	GetByID(id string) (*model.Appeal, error)
	ListByUser(userPK string, page, pageSize int) ([]model.Appeal, int64, error)
	ListReviewable(page, pageSize int) ([]model.Appeal, int64, error)
	Stats() (*model.Stats, error)
}

type appealService struct {
	db          *gorm.DB
	repo        repository.AppealRepository
	contents    contentRepo.ContentRepository
	loyalty     loyaltyService.LoyaltyService
	restoration contentService.RestorationService
	sanctions   sanctionService.SanctionService
	redis       *redis.Client
}

// NewAppealService 创建申诉服务
func NewAppealService(
	db *gorm.DB,
	repo repository.AppealRepository,
	contents contentRepo.ContentRepository,
	loyalty loyaltyService.LoyaltyService,
	restoration contentService.RestorationService,
	sanctions sanctionService.SanctionService,
	rdb *redis.Client,
) AppealService {
	return &appealService{
		db:          db,
		repo:        repo,
		contents:    contents,
		loyalty:     loyalty,
		restoration: restoration,
		sanctions:   sanctions,
		redis:       rdb,
	}
}

func dailyQuotaKey(userPK string, now time.Time) string {
	return fmt.Sprintf("overlord:appeal:daily:%s:%s", userPK, now.Format("2006-01-02"))
}

// checkDailyQuota 占用一份当日配额，超额返回 ErrAppealLimitReached
func (s *appealService) checkDailyQuota(ctx context.Context, userPK string, now time.Time) error {
	if s.redis == nil {
		return nil
	}
	key := dailyQuotaKey(userPK, now)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		s.redis.Expire(ctx, key, 24*time.Hour)
	}
	if count > int64(config.GlobalConfig.Appeal.MaxPerDay) {
		return ErrAppealLimitReached
	}
	return nil
}

func (s *appealService) Create(ctx context.Context, appellantPK string, contentType string, contentPK, reason string) (*model.Appeal, error) {
	cfg := config.GlobalConfig.Appeal
	if n := utf8.RuneCountInString(reason); n < cfg.ReasonMinLength || n > cfg.ReasonMaxLength {
		return nil, ErrAppealReasonLength
	}

	now := time.Now()
	window := time.Duration(cfg.ContentAgeDays) * 24 * time.Hour
	targetType := contentModel.ContentType(contentType)

	if targetType == model.TargetSanction {
		// 制裁申诉：目标必须是本人仍在生效的制裁
		sanction, err := s.sanctions.GetByID(contentPK)
		if err != nil {
			return nil, err
		}
		if sanction.UserPK != appellantPK {
			return nil, ErrNotContentOwner
		}
		if !sanction.Active || sanction.Expired(now) {
			return nil, ErrNotAppealable
		}
		if now.Sub(sanction.CreatedAt) > window {
			return nil, ErrAppealWindowClosed
		}
	} else {
		ref, err := s.contents.GetRef(targetType, contentPK)
		if err != nil {
			return nil, err
		}
		if ref.AuthorPK != appellantPK {
			return nil, ErrNotContentOwner
		}
		if !ref.Status.NegativeTerminal() {
			return nil, ErrNotAppealable
		}
		if now.Sub(ref.CreatedAt) > window {
			return nil, ErrAppealWindowClosed
		}
	}

	lastDenial, err := s.repo.LastDenialFor(appellantPK, contentPK)
	if err != nil {
		return nil, err
	}
	if lastDenial != nil && now.Sub(*lastDenial) < time.Duration(cfg.CooldownHours)*time.Hour {
		return nil, ErrAppealCooldown
	}

	if err := s.checkDailyQuota(ctx, appellantPK, now); err != nil {
		return nil, err
	}

	// 滥诉降权：窗口内每被驳回一次，相当于晚到十分钟，但永不拒收
	denied, err := s.repo.DeniedCountSince(appellantPK, now.Add(-deniedWindow))
	if err != nil {
		return nil, err
	}
	score := queueModel.ComputeScore(now, tierOffset()) - denied*frivolousPenaltyMS

	appeal := &model.Appeal{
		AppellantPK:   appellantPK,
		ContentType:   targetType,
		ContentPK:     contentPK,
		Reason:        reason,
		Status:        model.AppealPending,
		PriorityScore: score,
	}
	if err := s.repo.Create(appeal); err != nil {
		return nil, err
	}

	logger.Log.Info("appeal created",
		zap.String("appeal_id", appeal.ID),
		zap.String("appellant_pk", appellantPK),
		zap.String("content_pk", contentPK),
		zap.Int64("denied_in_window", denied),
	)
	return appeal, nil
}

func tierOffset() int64 {
	if off, ok := config.GlobalConfig.Queue.TierOffsets[string(queueModel.TierAppeal)]; ok {
		return off
	}
	return 0
}

func (s *appealService) Withdraw(id, appellantPK string) error {
	ok, err := s.repo.WithdrawCAS(id, appellantPK)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAppealTerminal
	}
	return nil
}

func (s *appealService) Assign(id, reviewerPK string) error {
	ok, err := s.repo.AssignCAS(id, reviewerPK, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrAppealNotAssigned
	}
	return nil
}

func (s *appealService) Decide(ctx context.Context, req DecideRequest) (*model.Appeal, error) {
	if req.Rationale == "" {
		return nil, ErrRationaleRequired
	}

	appeal, err := s.repo.GetByID(req.AppealID)
	if err != nil {
		return nil, err
	}
	if appeal.Status.Terminal() {
		return nil, ErrAppealTerminal
	}

	to := model.AppealDenied
	outcome := loyaltyModel.OutcomeAppealDenied
	if req.Sustain {
		to = model.AppealSustained
		outcome = loyaltyModel.OutcomeAppealSustained
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.DecideCAS(tx, req.AppealID, req.ReviewerPK, to, req.Rationale, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAppealNotAssigned
		}

		if req.Sustain {
			if appeal.ContentType == model.TargetSanction {
				// 制裁申诉得直：解除制裁而非恢复内容
				if err := s.sanctions.Lift(tx, appeal.ContentPK, req.ReviewerPK); err != nil {
					return err
				}
			} else if _, err := s.restoration.Restore(tx, contentService.RestoreRequest{
				ContentType:   appeal.ContentType,
				ContentPK:     appeal.ContentPK,
				AppealPK:      appeal.ID,
				RestoredBy:    req.ReviewerPK,
				EditedTitle:   req.EditedTitle,
				EditedContent: req.EditedContent,
				EditReason:    req.Rationale,
			}); err != nil {
				return err
			}
		}

		_, err = s.loyalty.RecordAppealOutcome(tx, loyaltyService.ModerationOutcome{
			UserPK:      appeal.AppellantPK,
			ContentType: appeal.ContentType,
			ContentPK:   appeal.ContentPK,
			Outcome:     outcome,
			ModeratorPK: &req.ReviewerPK,
			Reason:      req.Rationale,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("appeal decided",
		zap.String("appeal_id", appeal.ID),
		zap.String("reviewer_pk", req.ReviewerPK),
		zap.String("outcome", string(to)),
	)
	return s.repo.GetByID(req.AppealID)
}

func (s *appealService) GetByID(id string) (*model.Appeal, error) {
	return s.repo.GetByID(id)
}

func (s *appealService) ListByUser(userPK string, page, pageSize int) ([]model.Appeal, int64, error) {
	offset, limit := normalizePage(page, pageSize)
	return s.repo.ListByUser(userPK, offset, limit)
}

func (s *appealService) ListReviewable(page, pageSize int) ([]model.Appeal, int64, error) {
	offset, limit := normalizePage(page, pageSize)
	return s.repo.ListReviewable(offset, limit)
}

func (s *appealService) Stats() (*model.Stats, error) {
	return s.repo.Stats()
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
