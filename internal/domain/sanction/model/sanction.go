package model

import (
	"time"

	baseModel "robot_overlord_api/pkg/model"
)

// SanctionType 制裁类型
type SanctionType string

const (
	SanctionWarning       SanctionType = "warning"
	SanctionPostingFreeze SanctionType = "posting_freeze"
	SanctionRateLimit     SanctionType = "rate_limit"
	SanctionTemporaryBan  SanctionType = "temporary_ban"
	SanctionPermanentBan  SanctionType = "permanent_ban"
)

// Blocking 该类型是否阻断内容提交
func (t SanctionType) Blocking() bool {
	switch t {
	case SanctionPostingFreeze, SanctionTemporaryBan, SanctionPermanentBan:
		return true
	}
	return false
}

// Sanction 对用户施加的制裁记录
type Sanction struct {
	baseModel.BaseModel
	UserPK    string       `gorm:"type:uuid;index" json:"userPk"`
	Type      SanctionType `gorm:"size:32" json:"type"`
	Reason    string       `gorm:"size:1000" json:"reason"`
	AppliedBy string       `gorm:"type:uuid" json:"appliedBy"`
	// ExpiresAt 为空表示永久
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Active    bool       `gorm:"index;default:true" json:"active"`
	LiftedBy  *string    `gorm:"type:uuid" json:"liftedBy,omitempty"`
	LiftedAt  *time.Time `json:"liftedAt,omitempty"`
}

// Expired 是否已过期（未设过期时间视为未过期）
func (s *Sanction) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
