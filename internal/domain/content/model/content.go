package model

import (
	"time"

	baseModel "robot_overlord_api/pkg/model"
)

// ContentType 内容类型
type ContentType string

const (
	TypeTopic          ContentType = "topic"
	TypePost           ContentType = "post"
	TypePrivateMessage ContentType = "private_message"
)

// Status 内容生命周期状态
type Status string

const (
	StatusSubmitted    Status = "submitted"     // 已提交，等待 ToS 预筛
	StatusQueued       Status = "queued"        // 预筛通过，排队等待完整审核
	StatusApproved     Status = "approved"      // 审核通过，公开可见
	StatusRejected     Status = "rejected"      // 审核拒绝
	StatusToSViolation Status = "tos_violation" // 严重违规
)

// transitions 状态机转移表。恢复（restoration）是 rejected/tos_violation
// 回到 approved 的唯一路径，由服务层在 sustained 申诉下触发；
// approved 回到 rejected 仅发生在举报成立的下架。
var transitions = map[Status][]Status{
	StatusSubmitted:    {StatusQueued, StatusToSViolation},
	StatusQueued:       {StatusApproved, StatusRejected, StatusToSViolation},
	StatusApproved:     {StatusRejected},
	StatusRejected:     {StatusApproved},
	StatusToSViolation: {StatusApproved},
}

// ValidTransition 判断状态转移是否合法
func ValidTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal 是否为终态
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusToSViolation:
		return true
	}
	return false
}

// NegativeTerminal 是否为可申诉的负面终态
func (s Status) NegativeTerminal() bool {
	return s == StatusRejected || s == StatusToSViolation
}

// Topic 辩题
type Topic struct {
	baseModel.BaseModel
	AuthorPK    string `gorm:"type:uuid;index" json:"authorPk"`
	Title       string `gorm:"size:200" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Status      Status `gorm:"size:32;default:'submitted';index" json:"status"`
	Feedback    string `gorm:"type:text" json:"feedback,omitempty"` // 审裁反馈
}

// Post 帖子，通过 ParentPK 支持楼中楼
type Post struct {
	baseModel.BaseModel
	TopicPK  string  `gorm:"type:uuid;index" json:"topicPk"`
	AuthorPK string  `gorm:"type:uuid;index" json:"authorPk"`
	ParentPK *string `gorm:"type:uuid" json:"parentPk,omitempty"`
	Content  string  `gorm:"type:text" json:"content"`
	Status   Status  `gorm:"size:32;default:'submitted';index" json:"status"`
	Feedback string  `gorm:"type:text" json:"feedback,omitempty"`
}

// PrivateMessage 私信
type PrivateMessage struct {
	baseModel.BaseModel
	SenderPK       string `gorm:"type:uuid;index" json:"senderPk"`
	RecipientPK    string `gorm:"type:uuid;index" json:"recipientPk"`
	ConversationID string `gorm:"size:128;index" json:"conversationId"`
	Content        string `gorm:"type:text" json:"content"`
	Status         Status `gorm:"size:32;default:'submitted'" json:"status"`
	Feedback       string `gorm:"type:text" json:"feedback,omitempty"`
}

// ConversationID 对两个用户生成稳定的会话标识
func ConversationID(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return "users_" + userA + "_" + userB
}

// Ref 跨类型的内容引用，审核流水线统一操作入口
type Ref struct {
	PK          string
	ContentType ContentType
	AuthorPK    string
	Title       string
	Body        string
	Status      Status
	Feedback    string
	CreatedAt   time.Time
}
