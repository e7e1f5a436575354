package repository

import (
	"errors"
	"time"

	"robot_overlord_api/internal/domain/queue/model"

	"gorm.io/gorm"
)

var (
	// ErrAlreadyQueued 同一内容在该队列已有未完成条目
	ErrAlreadyQueued = errors.New("content already queued")
)

// QueueRepository 接口定义
type QueueRepository interface {
	// Create 插入新条目；tx 非空时随业务状态转移同事务提交
	Create(tx *gorm.DB, entry *model.QueueEntry) error
	GetByID(id string) (*model.QueueEntry, error)
	GetOpenByContent(queueType model.QueueType, contentPK string) (*model.QueueEntry, error)

	// FetchPendingIDs 按优先级取前 N 个待认领条目
	FetchPendingIDs(queueType model.QueueType, limit int) ([]string, error)

	// ClaimCAS 原子认领：仅当条目仍为 pending 时成功，返回是否赢得认领。
	// 这是整条流水线的并发正确性核心
	ClaimCAS(id, workerID string, now time.Time) (bool, error)

	// CompleteCAS 终结条目，仅当仍由该 worker 认领时成功
	CompleteCAS(tx *gorm.DB, id string) (bool, error)

	// ReleaseCAS 释放已认领未完成的条目回 pending，保留原到达时间
	ReleaseCAS(id string) (bool, error)

	// StaleClaimIDs 认领时间早于 cutoff 的条目（worker 失联）
	StaleClaimIDs(queueType model.QueueType, cutoff time.Time) ([]string, error)

	// PositionOf 条目在未认领队列中的名次（1 起），排序 (priority_score DESC, entered_queue_at ASC)
	PositionOf(entry *model.QueueEntry) (int, error)

	Depth(queueType model.QueueType) (int64, error)
	AvgProcessingSeconds(queueType model.QueueType, since time.Time) (float64, error)
}

type queueRepository struct {
	db *gorm.DB
}

// NewQueueRepository 创建新的仓库实例
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Create(tx *gorm.DB, entry *model.QueueEntry) error {
	db := tx
	if db == nil {
		db = r.db
	}
	err := db.Create(entry).Error
	// 部分唯一索引 (queue_type, content_pk) WHERE status <> 'completed'
	// 兜底幂等重复提交
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyQueued
	}
	return err
}

func (r *queueRepository) GetByID(id string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	if err := r.db.Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) GetOpenByContent(queueType model.QueueType, contentPK string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := r.db.Where("queue_type = ? AND content_pk = ? AND status <> ?",
		queueType, contentPK, model.EntryCompleted).
		Order("entered_queue_at desc").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) FetchPendingIDs(queueType model.QueueType, limit int) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.QueueEntry{}).
		Where("queue_type = ? AND status = ?", queueType, model.EntryPending).
		Order("priority_score desc, entered_queue_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ClaimCAS 单条条件更新，两个 worker 并发认领同一条目时恰好一个 RowsAffected=1
func (r *queueRepository) ClaimCAS(id, workerID string, now time.Time) (bool, error) {
	result := r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.EntryPending).
		Updates(map[string]interface{}{
			"status":             model.EntryClaimed,
			"worker_id":          workerID,
			"worker_assigned_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *queueRepository) CompleteCAS(tx *gorm.DB, id string) (bool, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	result := db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.EntryClaimed).
		Update("status", model.EntryCompleted)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseCAS 不触碰 entered_queue_at 和 priority_score，保住排队资历
func (r *queueRepository) ReleaseCAS(id string) (bool, error) {
	result := r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.EntryClaimed).
		Updates(map[string]interface{}{
			"status":             model.EntryPending,
			"worker_id":          nil,
			"worker_assigned_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *queueRepository) StaleClaimIDs(queueType model.QueueType, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.QueueEntry{}).
		Where("queue_type = ? AND status = ? AND worker_assigned_at < ?",
			queueType, model.EntryClaimed, cutoff).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *queueRepository) PositionOf(entry *model.QueueEntry) (int, error) {
	var ahead int64
	err := r.db.Model(&model.QueueEntry{}).
		Where("queue_type = ? AND status = ?", entry.QueueType, model.EntryPending).
		Where("(priority_score > ?) OR (priority_score = ? AND entered_queue_at < ?)",
			entry.PriorityScore, entry.PriorityScore, entry.EnteredQueueAt).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

func (r *queueRepository) Depth(queueType model.QueueType) (int64, error) {
	var n int64
	err := r.db.Model(&model.QueueEntry{}).
		Where("queue_type = ? AND status = ?", queueType, model.EntryPending).
		Count(&n).Error
	return n, err
}

// AvgProcessingSeconds 最近完成条目的平均处理时长，用于等待时间估计
func (r *queueRepository) AvgProcessingSeconds(queueType model.QueueType, since time.Time) (float64, error) {
	var avg *float64
	err := r.db.Model(&model.QueueEntry{}).
		Where("queue_type = ? AND status = ? AND worker_assigned_at IS NOT NULL AND updated_at > ?",
			queueType, model.EntryCompleted, since).
		Select("AVG(EXTRACT(EPOCH FROM (updated_at - worker_assigned_at)))").
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 30, err // 无样本时按 30 秒估计
	}
	return *avg, nil
}
