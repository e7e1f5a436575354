package service

import (
	"errors"
	"time"

	"robot_overlord_api/internal/domain/sanction/model"
	"robot_overlord_api/internal/domain/sanction/repository"
	"robot_overlord_api/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrSanctionNotFound 制裁不存在
	ErrSanctionNotFound = errors.New("sanction not found")
	// ErrSanctionNotActive 制裁已解除或已过期
	ErrSanctionNotActive = errors.New("sanction is not active")
)

// ApplyRequest 施加制裁请求
type ApplyRequest struct {
	UserPK    string
	Type      model.SanctionType
	Reason    string
	AppliedBy string
	// Duration 为 0 表示永久
	Duration time.Duration
}

// SanctionService 制裁服务
type SanctionService interface {
	Apply(req ApplyRequest) (*model.Sanction, error)
	GetByID(id string) (*model.Sanction, error)
	// Lift 解除制裁；tx 非空时与申诉得直的裁决同事务提交
	Lift(tx *gorm.DB, id, liftedBy string) error
	ListByUser(userPK string, page, pageSize int) ([]model.Sanction, int64, error)
	// CanSubmit 提交门禁：存在阻断型生效制裁时返回 false 与该制裁
	CanSubmit(userPK string) (bool, *model.Sanction, error)
	// ExpireSweep 停用已过期制裁，由后台定时调用
	ExpireSweep() (int64, error)
}

type sanctionService struct {
	repo repository.SanctionRepository
}

// NewSanctionService 创建制裁服务
func NewSanctionService(repo repository.SanctionRepository) SanctionService {
	return &sanctionService{repo: repo}
}

func (s *sanctionService) Apply(req ApplyRequest) (*model.Sanction, error) {
	sanction := &model.Sanction{
		UserPK:    req.UserPK,
		Type:      req.Type,
		Reason:    req.Reason,
		AppliedBy: req.AppliedBy,
	}
	if req.Duration > 0 {
		expires := time.Now().Add(req.Duration)
		sanction.ExpiresAt = &expires
	}

	if err := s.repo.Create(sanction); err != nil {
		return nil, err
	}

	logger.Log.Info("sanction applied",
		zap.String("user_pk", req.UserPK),
		zap.String("type", string(req.Type)),
		zap.String("applied_by", req.AppliedBy),
	)
	return sanction, nil
}

func (s *sanctionService) GetByID(id string) (*model.Sanction, error) {
	sanction, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSanctionNotFound
		}
		return nil, err
	}
	return sanction, nil
}

func (s *sanctionService) Lift(tx *gorm.DB, id, liftedBy string) error {
	ok, err := s.repo.Lift(tx, id, liftedBy, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSanctionNotFound
		}
		return err
	}
	if !ok {
		return ErrSanctionNotActive
	}

	logger.Log.Info("sanction lifted",
		zap.String("sanction_id", id),
		zap.String("lifted_by", liftedBy),
	)
	return nil
}

func (s *sanctionService) ListByUser(userPK string, page, pageSize int) ([]model.Sanction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListByUser(userPK, (page-1)*pageSize, pageSize)
}

func (s *sanctionService) CanSubmit(userPK string) (bool, *model.Sanction, error) {
	active, err := s.repo.ActiveByUser(userPK, time.Now())
	if err != nil {
		return false, nil, err
	}
	for i := range active {
		if active[i].Type.Blocking() {
			return false, &active[i], nil
		}
	}
	return true, nil, nil
}

func (s *sanctionService) ExpireSweep() (int64, error) {
	n, err := s.repo.ExpireSweep(time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.Info("expired sanctions deactivated", zap.Int64("count", n))
	}
	return n, nil
}
