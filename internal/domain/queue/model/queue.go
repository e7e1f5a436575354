package model

import (
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	baseModel "robot_overlord_api/pkg/model"
)

// QueueType 队列实例
type QueueType string

const (
	QueueTopicCreation    QueueType = "topic_creation"
	QueuePostTosScreening QueueType = "post_tos_screening"
	QueuePostModeration   QueueType = "post_moderation"
	QueuePrivateMessage   QueueType = "private_message"
)

// EntryStatus 队列条目状态
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryClaimed   EntryStatus = "claimed"
	EntryCompleted EntryStatus = "completed"
)

// PriorityTier 优先级档位，固定几档配置常量，不随内容变化
type PriorityTier string

const (
	TierStandard PriorityTier = "standard"
	TierElevated PriorityTier = "elevated"
	TierAppeal   PriorityTier = "appeal" // 申诉加急
)

// QueueEntry 队列条目，包裹一条内容在一个流水线阶段中的排队状态
type QueueEntry struct {
	baseModel.BaseModel
	QueueType   QueueType                `gorm:"size:32;uniqueIndex:idx_queue_open,priority:1" json:"queueType"`
	ContentPK   string                   `gorm:"type:uuid;uniqueIndex:idx_queue_open,priority:2" json:"contentPk"`
	ContentType contentModel.ContentType `gorm:"size:32" json:"contentType"`
	AuthorPK    string                   `gorm:"type:uuid;index" json:"authorPk"`
	// 私信按会话分组展示
	ConversationID string `gorm:"size:128" json:"conversationId,omitempty"`

	Priority PriorityTier `gorm:"size:16;default:'standard'" json:"priority"`
	// 到达序位（毫秒时间戳取负）加档位偏移，分数大的先被认领，
	// 同档位内保持 FIFO
	PriorityScore int64 `gorm:"index" json:"priorityScore"`

	Status         EntryStatus `gorm:"size:16;default:'pending';index" json:"status"`
	EnteredQueueAt time.Time   `gorm:"index" json:"enteredQueueAt"`

	WorkerID              *string    `gorm:"size:128" json:"workerId,omitempty"`
	WorkerAssignedAt      *time.Time `json:"workerAssignedAt,omitempty"`
	EstimatedCompletionAt *time.Time `json:"estimatedCompletionAt,omitempty"`
}

// ComputeScore 计算优先级分数。到达越早分数越高（序位取负），
// 档位偏移以毫秒计，正值插队到更早的到达序位之前但不会完全饿死低档位。
func ComputeScore(arrival time.Time, tierOffsetMS int64) int64 {
	return -arrival.UnixMilli() + tierOffsetMS
}

// Overview 各队列长度快照，展示用途，允许一个刷新周期内的陈旧
type Overview struct {
	TopicCreationLength    int64     `json:"topicCreationLength"`
	PostTosScreeningLength int64     `json:"postTosScreeningLength"`
	PostModerationLength   int64     `json:"postModerationLength"`
	PrivateMessageLength   int64     `json:"privateMessageLength"`
	AvgProcessingSeconds   float64   `json:"avgProcessingSeconds"`
	LastUpdated            time.Time `json:"lastUpdated"`
}

// PositionInfo 排队位置查询结果，展示估计值而非调度依据
type PositionInfo struct {
	QueueID             string      `json:"queueId"`
	Position            int         `json:"position"`
	Status              EntryStatus `json:"status"`
	EnteredAt           time.Time   `json:"enteredAt"`
	EstimatedWaitSecond int64       `json:"estimatedWaitSeconds"`
}
