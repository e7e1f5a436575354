package model

import (
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	baseModel "robot_overlord_api/pkg/model"
)

// FlagStatus 举报状态
type FlagStatus string

const (
	FlagPending   FlagStatus = "pending"
	FlagUpheld    FlagStatus = "upheld"
	FlagDismissed FlagStatus = "dismissed"
)

// Terminal 已裁决的举报不可再变更
func (s FlagStatus) Terminal() bool {
	return s == FlagUpheld || s == FlagDismissed
}

// Flag 用户对已公开内容的举报。举报成立则内容下架回到 rejected，
// 作者进入常规申诉通道；同一用户对同一内容只能举报一次，
// 由唯一索引 (content_pk, flagger_pk) 保证。
type Flag struct {
	baseModel.BaseModel
	ContentType contentModel.ContentType `gorm:"size:32" json:"contentType"`
	ContentPK   string                   `gorm:"type:uuid;index;uniqueIndex:idx_flag_once,priority:1" json:"contentPk"`
	FlaggerPK   string                   `gorm:"type:uuid;index;uniqueIndex:idx_flag_once,priority:2" json:"flaggerPk"`
	Reason      string                   `gorm:"size:500" json:"reason"`
	Status      FlagStatus               `gorm:"size:32;index;default:'pending'" json:"status"`

	ReviewedBy  *string    `gorm:"type:uuid" json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ReviewNotes string     `gorm:"size:1000" json:"reviewNotes,omitempty"`
}
