package repository

import (
	"errors"
	"time"

	"robot_overlord_api/internal/domain/appeal/model"

	"gorm.io/gorm"
)

// ErrActiveAppealExists 同一内容已有活跃申诉
var ErrActiveAppealExists = errors.New("an active appeal already exists for this content")

// AppealRepository 申诉仓库
type AppealRepository interface {
	Create(appeal *model.Appeal) error
	GetByID(id string) (*model.Appeal, error)
	ListByUser(userPK string, offset, limit int) ([]model.Appeal, int64, error)
	// ListReviewable 按优先级返回待审/在审申诉
	ListReviewable(offset, limit int) ([]model.Appeal, int64, error)

	// AssignCAS pending → under_review，返回是否命中
	AssignCAS(id, reviewerPK string, now time.Time) (bool, error)
	// DecideCAS under_review → 终态，要求审核人匹配，返回是否命中
	DecideCAS(tx *gorm.DB, id, reviewerPK string, to model.AppealStatus, rationale string, now time.Time) (bool, error)
	// WithdrawCAS 活跃状态 → withdrawn，要求申诉人匹配
	WithdrawCAS(id, appellantPK string) (bool, error)

	// DeniedCountSince 窗口内被驳回次数，用于滥诉降权
	DeniedCountSince(userPK string, since time.Time) (int64, error)
	// LastDenialFor 该用户对该内容最近一次被驳回的时间
	LastDenialFor(userPK, contentPK string) (*time.Time, error)
	Stats() (*model.Stats, error)
}

type appealRepository struct {
	db *gorm.DB
}

// NewAppealRepository 创建新的仓库实例
func NewAppealRepository(db *gorm.DB) AppealRepository {
	return &appealRepository{db: db}
}

func (r *appealRepository) Create(appeal *model.Appeal) error {
	if err := r.db.Create(appeal).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrActiveAppealExists
		}
		return err
	}
	return nil
}

func (r *appealRepository) GetByID(id string) (*model.Appeal, error) {
	var appeal model.Appeal
	if err := r.db.Where("id = ?", id).First(&appeal).Error; err != nil {
		return nil, err
	}
	return &appeal, nil
}

func (r *appealRepository) ListByUser(userPK string, offset, limit int) ([]model.Appeal, int64, error) {
	var appeals []model.Appeal
	var total int64

	query := r.db.Model(&model.Appeal{}).Where("appellant_pk = ?", userPK)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&appeals).Error; err != nil {
		return nil, 0, err
	}
	return appeals, total, nil
}

func (r *appealRepository) ListReviewable(offset, limit int) ([]model.Appeal, int64, error) {
	var appeals []model.Appeal
	var total int64

	query := r.db.Model(&model.Appeal{}).
		Where("status IN ?", []model.AppealStatus{model.AppealPending, model.AppealUnderReview})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("priority_score desc, created_at asc").
		Offset(offset).Limit(limit).Find(&appeals).Error; err != nil {
		return nil, 0, err
	}
	return appeals, total, nil
}

func (r *appealRepository) AssignCAS(id, reviewerPK string, now time.Time) (bool, error) {
	result := r.db.Model(&model.Appeal{}).
		Where("id = ? AND status = ?", id, model.AppealPending).
		Updates(map[string]interface{}{
			"status":      model.AppealUnderReview,
			"reviewer_pk": reviewerPK,
			"assigned_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *appealRepository) DecideCAS(tx *gorm.DB, id, reviewerPK string, to model.AppealStatus, rationale string, now time.Time) (bool, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	result := db.Model(&model.Appeal{}).
		Where("id = ? AND status = ? AND reviewer_pk = ?", id, model.AppealUnderReview, reviewerPK).
		Updates(map[string]interface{}{
			"status":             to,
			"decision_rationale": rationale,
			"decided_at":         now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *appealRepository) WithdrawCAS(id, appellantPK string) (bool, error) {
	result := r.db.Model(&model.Appeal{}).
		Where("id = ? AND appellant_pk = ? AND status IN ?", id, appellantPK,
			[]model.AppealStatus{model.AppealPending, model.AppealUnderReview}).
		Update("status", model.AppealWithdrawn)
	return result.RowsAffected > 0, result.Error
}

func (r *appealRepository) DeniedCountSince(userPK string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Appeal{}).
		Where("appellant_pk = ? AND status = ? AND decided_at >= ?", userPK, model.AppealDenied, since).
		Count(&count).Error
	return count, err
}

func (r *appealRepository) LastDenialFor(userPK, contentPK string) (*time.Time, error) {
	var appeal model.Appeal
	err := r.db.Where("appellant_pk = ? AND content_pk = ? AND status = ?",
		userPK, contentPK, model.AppealDenied).
		Order("decided_at desc").
		First(&appeal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return appeal.DecidedAt, nil
}

func (r *appealRepository) Stats() (*model.Stats, error) {
	type row struct {
		Status model.AppealStatus
		Count  int64
	}
	var rows []row
	if err := r.db.Model(&model.Appeal{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &model.Stats{}
	for _, r := range rows {
		switch r.Status {
		case model.AppealPending:
			stats.Pending = r.Count
		case model.AppealUnderReview:
			stats.UnderReview = r.Count
		case model.AppealSustained:
			stats.Sustained = r.Count
		case model.AppealDenied:
			stats.Denied = r.Count
		case model.AppealWithdrawn:
			stats.Withdrawn = r.Count
		}
	}
	if decided := stats.Sustained + stats.Denied; decided > 0 {
		stats.SustainRate = float64(stats.Sustained) / float64(decided)
	}
	return stats, nil
}
