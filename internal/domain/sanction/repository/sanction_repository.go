package repository

import (
	"time"

	"robot_overlord_api/internal/domain/sanction/model"

	"gorm.io/gorm"
)

// SanctionRepository 制裁仓库
type SanctionRepository interface {
	Create(s *model.Sanction) error
	GetByID(id string) (*model.Sanction, error)
	// ActiveByUser 用户当前生效的制裁（未解除且未过期）
	ActiveByUser(userPK string, now time.Time) ([]model.Sanction, error)
	ListByUser(userPK string, offset, limit int) ([]model.Sanction, int64, error)
	// Lift 解除制裁，返回是否实际变更；tx 非空时随申诉裁决同事务提交
	Lift(tx *gorm.DB, id, liftedBy string, now time.Time) (bool, error)
	// ExpireSweep 批量停用已过期制裁，返回停用条数
	ExpireSweep(now time.Time) (int64, error)
}

type sanctionRepository struct {
	db *gorm.DB
}

// NewSanctionRepository 创建新的仓库实例
func NewSanctionRepository(db *gorm.DB) SanctionRepository {
	return &sanctionRepository{db: db}
}

func (r *sanctionRepository) Create(s *model.Sanction) error {
	s.Active = true
	return r.db.Create(s).Error
}

func (r *sanctionRepository) GetByID(id string) (*model.Sanction, error) {
	var s model.Sanction
	if err := r.db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sanctionRepository) ActiveByUser(userPK string, now time.Time) ([]model.Sanction, error) {
	var sanctions []model.Sanction
	err := r.db.Where("user_pk = ? AND active = ?", userPK, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at desc").
		Find(&sanctions).Error
	return sanctions, err
}

func (r *sanctionRepository) ListByUser(userPK string, offset, limit int) ([]model.Sanction, int64, error) {
	var sanctions []model.Sanction
	var total int64

	query := r.db.Model(&model.Sanction{}).Where("user_pk = ?", userPK)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&sanctions).Error; err != nil {
		return nil, 0, err
	}
	return sanctions, total, nil
}

func (r *sanctionRepository) Lift(tx *gorm.DB, id, liftedBy string, now time.Time) (bool, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	result := db.Model(&model.Sanction{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":    false,
			"lifted_by": liftedBy,
			"lifted_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *sanctionRepository) ExpireSweep(now time.Time) (int64, error) {
	result := r.db.Model(&model.Sanction{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Update("active", false)
	return result.RowsAffected, result.Error
}
