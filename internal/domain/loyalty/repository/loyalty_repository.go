package repository

import (
	"errors"

	"robot_overlord_api/internal/domain/loyalty/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoyaltyRepository 账本仓库：事件只追加，分数缓存只通过事件应用更新
type LoyaltyRepository interface {
	// AppendEvent 在事务内锁定分数行、追加事件并应用分量增量。
	// 事件的 PreviousScore/NewScore 由仓库填充。
	AppendEvent(tx *gorm.DB, event *model.ModerationEvent, component string) error

	GetScore(userPK string) (*model.LoyaltyScore, error)
	GetEvents(userPK string, offset, limit int) ([]model.ModerationEvent, int64, error)
	AllScores() ([]model.LoyaltyScore, error)

	CreateAdjustment(tx *gorm.DB, adj *model.ManualAdjustment) error

	// ReplayEvents 按序返回用户全部事件，用于缓存重建
	ReplayEvents(userPK string) ([]model.ModerationEvent, error)
	// ResetScore 以重建结果覆盖分数缓存
	ResetScore(score *model.LoyaltyScore) error

	WithTx(fn func(tx *gorm.DB) error) error
}

type loyaltyRepository struct {
	db *gorm.DB
}

// NewLoyaltyRepository 创建新的仓库实例
func NewLoyaltyRepository(db *gorm.DB) LoyaltyRepository {
	return &loyaltyRepository{db: db}
}

func (r *loyaltyRepository) WithTx(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// componentColumns 分量名到缓存列的映射
var componentColumns = map[string]bool{
	"post_score":         true,
	"topic_score":        true,
	"message_score":      true,
	"appeal_adjustments": true,
	"manual_adjustments": true,
}

func (r *loyaltyRepository) AppendEvent(tx *gorm.DB, event *model.ModerationEvent, component string) error {
	if !componentColumns[component] {
		return errors.New("unknown loyalty component: " + component)
	}
	db := tx
	if db == nil {
		db = r.db
	}

	// 锁定（或创建）用户分数行，防止并发事件交错丢更新
	var score model.LoyaltyScore
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_pk = ?", event.UserPK).
		First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		score = model.LoyaltyScore{UserPK: event.UserPK}
		if err := db.Create(&score).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	event.PreviousScore = score.TotalScore
	event.NewScore = score.TotalScore + event.ScoreDelta
	if err := db.Create(event).Error; err != nil {
		return err
	}

	// 分量自增，总分重算为分量之和而非直接设置
	return db.Model(&model.LoyaltyScore{}).
		Where("user_pk = ?", event.UserPK).
		Updates(map[string]interface{}{
			component:     gorm.Expr(component+" + ?", event.ScoreDelta),
			"total_score": gorm.Expr("post_score + topic_score + message_score + appeal_adjustments + manual_adjustments + ?", event.ScoreDelta),
		}).Error
}

func (r *loyaltyRepository) GetScore(userPK string) (*model.LoyaltyScore, error) {
	var score model.LoyaltyScore
	if err := r.db.Where("user_pk = ?", userPK).First(&score).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.LoyaltyScore{UserPK: userPK}, nil
		}
		return nil, err
	}
	return &score, nil
}

func (r *loyaltyRepository) GetEvents(userPK string, offset, limit int) ([]model.ModerationEvent, int64, error) {
	var events []model.ModerationEvent
	var total int64

	query := r.db.Model(&model.ModerationEvent{}).Where("user_pk = ?", userPK)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *loyaltyRepository) AllScores() ([]model.LoyaltyScore, error) {
	var scores []model.LoyaltyScore
	err := r.db.Find(&scores).Error
	return scores, err
}

func (r *loyaltyRepository) CreateAdjustment(tx *gorm.DB, adj *model.ManualAdjustment) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(adj).Error
}

func (r *loyaltyRepository) ReplayEvents(userPK string) ([]model.ModerationEvent, error) {
	var events []model.ModerationEvent
	err := r.db.Where("user_pk = ?", userPK).
		Order("created_at asc").
		Find(&events).Error
	return events, err
}

func (r *loyaltyRepository) ResetScore(score *model.LoyaltyScore) error {
	return r.db.Save(score).Error
}
