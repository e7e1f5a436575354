package service

import (
	"errors"
	"time"
	"unicode/utf8"

	contentModel "robot_overlord_api/internal/domain/content/model"
	contentRepo "robot_overlord_api/internal/domain/content/repository"
	loyaltyModel "robot_overlord_api/internal/domain/loyalty/model"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	"robot_overlord_api/internal/domain/moderation/model"
	"robot_overlord_api/internal/domain/moderation/repository"
	sanctionModel "robot_overlord_api/internal/domain/sanction/model"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrFlagReasonLength 举报理由长度不在允许区间
	ErrFlagReasonLength = errors.New("flag reason length out of bounds")
	// ErrSelfFlag 不能举报自己的内容
	ErrSelfFlag = errors.New("cannot flag your own content")
	// ErrNotFlaggable 只有公开可见的内容才能被举报
	ErrNotFlaggable = errors.New("content is not publicly visible")
	// ErrAlreadyFlagged 同一用户对同一内容重复举报
	ErrAlreadyFlagged = repository.ErrAlreadyFlagged
	// ErrFlagDecided 举报已裁决
	ErrFlagDecided = errors.New("flag is already decided")
)

const (
	flagReasonMin = 10
	flagReasonMax = 500

	// 窗口内被驳回的举报达到该数视为滥报，施加警告制裁
	frivolousFlagThreshold = 3
	frivolousFlagWindow    = 30 * 24 * time.Hour
)

// ReviewFlagRequest 审核人裁决举报请求
type ReviewFlagRequest struct {
	FlagID     string
	ReviewerPK string
	Uphold     bool
	Notes      string
}

// FlagService 已公开内容的举报通道：举报成立则内容下架并记账，
// 作者走常规申诉；举报被驳回计入举报人的滥报档案
type FlagService interface {
	Create(flaggerPK string, contentType string, contentPK, reason string) (*model.Flag, error)
	Review(req ReviewFlagRequest) (*model.Flag, error)
	ListPending(page, pageSize int) ([]model.Flag, int64, error)
}

type flagService struct {
	db        *gorm.DB
	flags     repository.FlagRepository
	contents  contentRepo.ContentRepository
	loyalty   loyaltyService.LoyaltyService
	sanctions sanctionService.SanctionService
}

// NewFlagService 创建举报服务
func NewFlagService(
	db *gorm.DB,
	flags repository.FlagRepository,
	contents contentRepo.ContentRepository,
	loyalty loyaltyService.LoyaltyService,
	sanctions sanctionService.SanctionService,
) FlagService {
	return &flagService{
		db:        db,
		flags:     flags,
		contents:  contents,
		loyalty:   loyalty,
		sanctions: sanctions,
	}
}

func (s *flagService) Create(flaggerPK string, contentType string, contentPK, reason string) (*model.Flag, error) {
	if n := utf8.RuneCountInString(reason); n < flagReasonMin || n > flagReasonMax {
		return nil, ErrFlagReasonLength
	}

	ref, err := s.contents.GetRef(contentModel.ContentType(contentType), contentPK)
	if err != nil {
		return nil, err
	}
	if ref.AuthorPK == flaggerPK {
		return nil, ErrSelfFlag
	}
	if ref.Status != contentModel.StatusApproved {
		return nil, ErrNotFlaggable
	}

	flag := &model.Flag{
		ContentType: ref.ContentType,
		ContentPK:   contentPK,
		FlaggerPK:   flaggerPK,
		Reason:      reason,
		Status:      model.FlagPending,
	}
	if err := s.flags.Create(flag); err != nil {
		return nil, err
	}

	logger.Log.Info("content flagged",
		zap.String("flag_id", flag.ID),
		zap.String("content_pk", contentPK),
		zap.String("flagger_pk", flaggerPK),
	)
	return flag, nil
}

func (s *flagService) Review(req ReviewFlagRequest) (*model.Flag, error) {
	flag, err := s.flags.GetByID(req.FlagID)
	if err != nil {
		return nil, err
	}
	if flag.Status.Terminal() {
		return nil, ErrFlagDecided
	}

	to := model.FlagDismissed
	if req.Uphold {
		to = model.FlagUpheld
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.flags.ReviewCAS(tx, req.FlagID, req.ReviewerPK, to, req.Notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrFlagDecided
		}

		if !req.Uphold {
			return nil
		}

		// 举报成立：下架内容并给作者记负分，作者可走申诉通道
		feedback := "flag upheld: " + req.Notes
		if err := s.contents.TransitionStatus(tx, flag.ContentType, flag.ContentPK,
			contentModel.StatusApproved, contentModel.StatusRejected, feedback); err != nil {
			return err
		}

		ref, err := s.contents.GetRef(flag.ContentType, flag.ContentPK)
		if err != nil {
			return err
		}
		_, err = s.loyalty.RecordModeration(tx, loyaltyService.ModerationOutcome{
			UserPK:      ref.AuthorPK,
			ContentType: flag.ContentType,
			ContentPK:   flag.ContentPK,
			Outcome:     loyaltyModel.OutcomeRemoved,
			ModeratorPK: &req.ReviewerPK,
			Reason:      feedback,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if !req.Uphold {
		s.sweepFrivolousFlagger(flag.FlaggerPK, req.ReviewerPK, now)
	}

	logger.Log.Info("flag reviewed",
		zap.String("flag_id", req.FlagID),
		zap.String("reviewer_pk", req.ReviewerPK),
		zap.String("outcome", string(to)),
	)
	return s.flags.GetByID(req.FlagID)
}

// sweepFrivolousFlagger 窗口内驳回次数达到阈值的举报人收到警告制裁。
// 制裁失败只记日志，不影响举报本身的裁决
func (s *flagService) sweepFrivolousFlagger(flaggerPK, reviewerPK string, now time.Time) {
	dismissed, err := s.flags.DismissedCountSince(flaggerPK, now.Add(-frivolousFlagWindow))
	if err != nil {
		logger.Log.Error("dismissed flag count failed", zap.String("flagger_pk", flaggerPK), zap.Error(err))
		return
	}
	if dismissed < frivolousFlagThreshold {
		return
	}

	if _, err := s.sanctions.Apply(sanctionService.ApplyRequest{
		UserPK:    flaggerPK,
		Type:      sanctionModel.SanctionWarning,
		Reason:    "repeated dismissed flags",
		AppliedBy: reviewerPK,
	}); err != nil {
		logger.Log.Error("frivolous flagger warning failed",
			zap.String("flagger_pk", flaggerPK), zap.Error(err))
	}
}

func (s *flagService) ListPending(page, pageSize int) ([]model.Flag, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.flags.ListPending((page-1)*pageSize, pageSize)
}
