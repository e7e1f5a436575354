package repository

import (
	"errors"
	"time"

	"robot_overlord_api/internal/domain/moderation/model"

	"gorm.io/gorm"
)

var (
	// ErrAlreadyFlagged 同一用户对同一内容重复举报
	ErrAlreadyFlagged = errors.New("content already flagged by this user")
)

// FlagRepository 举报仓库
type FlagRepository interface {
	Create(flag *model.Flag) error
	GetByID(id string) (*model.Flag, error)
	ListPending(offset, limit int) ([]model.Flag, int64, error)
	ListByContent(contentPK string) ([]model.Flag, error)

	// ReviewCAS 裁决举报，仅当仍为 pending 时成功
	ReviewCAS(tx *gorm.DB, id, reviewerPK string, to model.FlagStatus, notes string, now time.Time) (bool, error)

	// DismissedCountSince 窗口内该举报人被驳回的举报数，滥报检测用
	DismissedCountSince(flaggerPK string, since time.Time) (int64, error)
}

type flagRepository struct {
	db *gorm.DB
}

// NewFlagRepository 创建新的仓库实例
func NewFlagRepository(db *gorm.DB) FlagRepository {
	return &flagRepository{db: db}
}

func (r *flagRepository) Create(flag *model.Flag) error {
	err := r.db.Create(flag).Error
	// 唯一索引 (content_pk, flagger_pk) 兜底重复举报
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyFlagged
	}
	return err
}

func (r *flagRepository) GetByID(id string) (*model.Flag, error) {
	var f model.Flag
	if err := r.db.Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *flagRepository) ListPending(offset, limit int) ([]model.Flag, int64, error) {
	var flags []model.Flag
	var total int64

	query := r.db.Model(&model.Flag{}).Where("status = ?", model.FlagPending)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at asc").Offset(offset).Limit(limit).Find(&flags).Error; err != nil {
		return nil, 0, err
	}
	return flags, total, nil
}

func (r *flagRepository) ListByContent(contentPK string) ([]model.Flag, error) {
	var flags []model.Flag
	err := r.db.Where("content_pk = ?", contentPK).
		Order("created_at desc").
		Find(&flags).Error
	return flags, err
}

func (r *flagRepository) ReviewCAS(tx *gorm.DB, id, reviewerPK string, to model.FlagStatus, notes string, now time.Time) (bool, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	result := db.Model(&model.Flag{}).
		Where("id = ? AND status = ?", id, model.FlagPending).
		Updates(map[string]interface{}{
			"status":       to,
			"reviewed_by":  reviewerPK,
			"reviewed_at":  now,
			"review_notes": notes,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *flagRepository) DismissedCountSince(flaggerPK string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Flag{}).
		Where("flagger_pk = ? AND status = ? AND reviewed_at >= ?", flaggerPK, model.FlagDismissed, since).
		Count(&count).Error
	return count, err
}
