package model

import (
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	baseModel "robot_overlord_api/pkg/model"
)

// EventType 账本事件类型
type EventType string

const (
	EventPostModeration    EventType = "post_moderation"
	EventTopicModeration   EventType = "topic_moderation"
	EventMessageModeration EventType = "private_message_moderation"
	EventAppealOutcome     EventType = "appeal_outcome"
	EventManualAdjustment  EventType = "manual_adjustment"
)

// Outcome 审核结果对账本的语义
type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomeRejected        Outcome = "rejected"
	OutcomeWarning         Outcome = "warning"
	OutcomeToSViolation    Outcome = "tos_violation"
	OutcomeRemoved         Outcome = "removed"
	OutcomeAppealSustained Outcome = "appeal_sustained"
	OutcomeAppealDenied    Outcome = "appeal_denied"
	OutcomeManual          Outcome = "manual"
)

// ModerationEvent 不可变事实：谁的哪条内容被裁决为什么结果。
// 只追加，永不更新或删除，是声誉分数的唯一事实来源。
type ModerationEvent struct {
	baseModel.BaseModel
	UserPK      string                   `gorm:"type:uuid;index" json:"userPk"`
	EventType   EventType                `gorm:"size:40" json:"eventType"`
	ContentType contentModel.ContentType `gorm:"size:32" json:"contentType"`
	ContentPK   string                   `gorm:"type:uuid;index" json:"contentPk"`
	Outcome     Outcome                  `gorm:"size:32" json:"outcome"`
	ScoreDelta  int                      `json:"scoreDelta"`
	// 事件应用前后的总分，便于审计回放校验
	PreviousScore int `json:"previousScore"`
	NewScore      int `json:"newScore"`
	// 人工裁决者，自动裁决为空
	ModeratorPK *string `gorm:"type:uuid" json:"moderatorPk,omitempty"`
	Reason      string  `gorm:"size:1000" json:"reason,omitempty"`
}

// LoyaltyScore 按用户的分数缓存（派生投影），总分恒等于各分量之和。
// 只能通过事件应用或回放更新，唯一例外是经审计的人工调整分量。
type LoyaltyScore struct {
	UserPK            string    `gorm:"primaryKey;type:uuid" json:"userPk"`
	PostScore         int       `json:"postScore"`
	TopicScore        int       `json:"topicScore"`
	MessageScore      int       `json:"messageScore"`
	AppealAdjustments int       `json:"appealAdjustments"`
	ManualAdjustments int       `json:"manualAdjustments"`
	TotalScore        int       `gorm:"index" json:"totalScore"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ComponentSum 各分量之和，必须恒等于 TotalScore
func (s *LoyaltyScore) ComponentSum() int {
	return s.PostScore + s.TopicScore + s.MessageScore + s.AppealAdjustments + s.ManualAdjustments
}

// ManualAdjustment 人工调整的独立审计记录
type ManualAdjustment struct {
	baseModel.BaseModel
	UserPK     string `gorm:"type:uuid;index" json:"userPk"`
	AdminPK    string `gorm:"type:uuid" json:"adminPk"`
	Adjustment int    `json:"adjustment"`
	Reason     string `gorm:"size:500" json:"reason"`
	AdminNotes string `gorm:"size:1000" json:"adminNotes,omitempty"`
	EventPK    string `gorm:"type:uuid" json:"eventPk"` // 对应的账本事件
}

// LeaderboardEntry 排行榜投影条目
type LeaderboardEntry struct {
	UserPK     string  `json:"userPk"`
	Rank       int64   `json:"rank"`
	Score      int     `json:"score"`
	Percentile float64 `json:"percentile"`
}

// Profile 用户声誉档案
type Profile struct {
	UserPK         string            `json:"userPk"`
	Score          LoyaltyScore      `json:"score"`
	Rank           int64             `json:"rank"`
	Percentile     float64           `json:"percentile"`
	CanCreateTopic bool              `json:"canCreateTopic"`
	RecentEvents   []ModerationEvent `json:"recentEvents"`
}
