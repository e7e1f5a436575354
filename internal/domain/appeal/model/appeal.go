package model

import (
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	baseModel "robot_overlord_api/pkg/model"
)

// AppealStatus 申诉状态
type AppealStatus string

const (
	AppealPending     AppealStatus = "pending"
	AppealUnderReview AppealStatus = "under_review"
	AppealSustained   AppealStatus = "sustained"
	AppealDenied      AppealStatus = "denied"
	AppealWithdrawn   AppealStatus = "withdrawn"
)

// Terminal 终态申诉不可再变更
func (s AppealStatus) Terminal() bool {
	switch s {
	case AppealSustained, AppealDenied, AppealWithdrawn:
		return true
	}
	return false
}

// TargetSanction 申诉目标为制裁记录而非内容；得直时解除制裁
const TargetSanction = contentModel.ContentType("sanction")

// Appeal 对负面终态裁决的申诉。
// 同一用户对同一内容最多一条活跃申诉，由部分唯一索引
// (appellant_pk, content_pk) WHERE status IN ('pending','under_review') 保证。
type Appeal struct {
	baseModel.BaseModel
	AppellantPK string                   `gorm:"type:uuid;index" json:"appellantPk"`
	ContentType contentModel.ContentType `gorm:"size:32" json:"contentType"`
	ContentPK   string                   `gorm:"type:uuid;index" json:"contentPk"`
	Reason      string                   `gorm:"size:1000" json:"reason"`
	Status      AppealStatus             `gorm:"size:32;index;default:'pending'" json:"status"`

	// PriorityScore 复用队列语义：高者先审；滥诉者被降权
	PriorityScore int64 `gorm:"index" json:"priorityScore"`

	ReviewerPK        *string    `gorm:"type:uuid" json:"reviewerPk,omitempty"`
	AssignedAt        *time.Time `json:"assignedAt,omitempty"`
	DecisionRationale string     `gorm:"size:2000" json:"decisionRationale,omitempty"`
	DecidedAt         *time.Time `json:"decidedAt,omitempty"`

	// 裁决撤销时采用的编辑稿（可选，由审核人提供）
	EditedTitle   *string `gorm:"size:200" json:"editedTitle,omitempty"`
	EditedContent *string `gorm:"type:text" json:"editedContent,omitempty"`
}

// Stats 申诉统计，供审核台展示
type Stats struct {
	Pending     int64   `json:"pending"`
	UnderReview int64   `json:"underReview"`
	Sustained   int64   `json:"sustained"`
	Denied      int64   `json:"denied"`
	Withdrawn   int64   `json:"withdrawn"`
	SustainRate float64 `json:"sustainRate"`
}
