package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	"robot_overlord_api/internal/domain/queue/model"
	"robot_overlord_api/internal/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func init() {
	config.GlobalConfig = config.Config{
		Queue: config.QueueConfig{
			TierOffsets: map[string]int64{
				"standard": 0,
				"elevated": 60000,
				"appeal":   300000,
			},
			ClaimTimeoutSec:   300,
			ReaperIntervalSec: 60,
		},
	}
}

// memoryQueueRepository 内存实现，复刻数据库侧的条件更新语义
type memoryQueueRepository struct {
	mu      sync.Mutex
	entries map[string]*model.QueueEntry
}

func newMemoryQueueRepository() *memoryQueueRepository {
	return &memoryQueueRepository{entries: make(map[string]*model.QueueEntry)}
}

func (r *memoryQueueRepository) Create(_ *gorm.DB, entry *model.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.QueueType == entry.QueueType && e.ContentPK == entry.ContentPK && e.Status != model.EntryCompleted {
			return ErrAlreadyQueued
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *memoryQueueRepository) GetByID(id string) (*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memoryQueueRepository) GetOpenByContent(queueType model.QueueType, contentPK string) (*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.QueueType == queueType && e.ContentPK == contentPK && e.Status != model.EntryCompleted {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryQueueRepository) FetchPendingIDs(queueType model.QueueType, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*model.QueueEntry
	for _, e := range r.entries {
		if e.QueueType == queueType && e.Status == model.EntryPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].PriorityScore != pending[j].PriorityScore {
			return pending[i].PriorityScore > pending[j].PriorityScore
		}
		return pending[i].EnteredQueueAt.Before(pending[j].EnteredQueueAt)
	})
	ids := make([]string, 0, limit)
	for _, e := range pending {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *memoryQueueRepository) ClaimCAS(id, workerID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != model.EntryPending {
		return false, nil
	}
	e.Status = model.EntryClaimed
	e.WorkerID = &workerID
	t := now
	e.WorkerAssignedAt = &t
	return true, nil
}

func (r *memoryQueueRepository) CompleteCAS(tx *gorm.DB, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != model.EntryClaimed {
		return false, nil
	}
	e.Status = model.EntryCompleted
	return true, nil
}

func (r *memoryQueueRepository) ReleaseCAS(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != model.EntryClaimed {
		return false, nil
	}
	e.Status = model.EntryPending
	e.WorkerID = nil
	e.WorkerAssignedAt = nil
	return true, nil
}

func (r *memoryQueueRepository) StaleClaimIDs(queueType model.QueueType, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, e := range r.entries {
		if e.QueueType == queueType && e.Status == model.EntryClaimed &&
			e.WorkerAssignedAt != nil && e.WorkerAssignedAt.Before(cutoff) {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

func (r *memoryQueueRepository) PositionOf(entry *model.QueueEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ahead := 0
	for _, e := range r.entries {
		if e.QueueType != entry.QueueType || e.Status != model.EntryPending {
			continue
		}
		if e.PriorityScore > entry.PriorityScore ||
			(e.PriorityScore == entry.PriorityScore && e.EnteredQueueAt.Before(entry.EnteredQueueAt)) {
			ahead++
		}
	}
	return ahead + 1, nil
}

func (r *memoryQueueRepository) Depth(queueType model.QueueType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.entries {
		if e.QueueType == queueType && e.Status == model.EntryPending {
			n++
		}
	}
	return n, nil
}

func (r *memoryQueueRepository) AvgProcessingSeconds(queueType model.QueueType, since time.Time) (float64, error) {
	return 30, nil
}

func enqueueAt(t *testing.T, svc QueueService, repo *memoryQueueRepository, tier model.PriorityTier, arrival time.Time) *model.QueueEntry {
	t.Helper()
	entry, err := svc.Enqueue(nil, EnqueueRequest{
		QueueType:   model.QueuePostModeration,
		ContentPK:   uuid.New().String(),
		ContentType: contentModel.TypePost,
		AuthorPK:    uuid.New().String(),
		Priority:    tier,
	})
	assert.NoError(t, err)

	// 回填到达时间模拟历史入队
	repo.mu.Lock()
	stored := repo.entries[entry.ID]
	stored.EnteredQueueAt = arrival
	stored.PriorityScore = model.ComputeScore(arrival, tierOffset(tier))
	repo.mu.Unlock()
	return entry
}

func TestQueueServiceEnqueue(t *testing.T) {
	t.Run("Duplicate open entry is rejected", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		req := EnqueueRequest{
			QueueType:   model.QueuePostModeration,
			ContentPK:   uuid.New().String(),
			ContentType: contentModel.TypePost,
			AuthorPK:    uuid.New().String(),
		}
		_, err := svc.Enqueue(nil, req)
		assert.NoError(t, err)

		_, err = svc.Enqueue(nil, req)
		assert.ErrorIs(t, err, ErrAlreadyQueued)
	})

	t.Run("Empty tier defaults to standard", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		entry, err := svc.Enqueue(nil, EnqueueRequest{
			QueueType:   model.QueueTopicCreation,
			ContentPK:   uuid.New().String(),
			ContentType: contentModel.TypeTopic,
			AuthorPK:    uuid.New().String(),
		})
		assert.NoError(t, err)
		assert.Equal(t, model.TierStandard, entry.Priority)
		assert.Equal(t, model.EntryPending, entry.Status)
	})

	t.Run("Re-enqueue allowed after completion", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		req := EnqueueRequest{
			QueueType:   model.QueuePostModeration,
			ContentPK:   uuid.New().String(),
			ContentType: contentModel.TypePost,
			AuthorPK:    uuid.New().String(),
		}
		entry, err := svc.Enqueue(nil, req)
		assert.NoError(t, err)

		claimed, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, entry.ID, claimed.ID)
		assert.NoError(t, svc.Complete(nil, entry.ID))

		_, err = svc.Enqueue(nil, req)
		assert.NoError(t, err)
	})
}

func TestQueueServiceClaimOrdering(t *testing.T) {
	t.Run("Appeal outranks elevated outranks standard", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		base := time.Now().Add(-time.Minute)
		standard := enqueueAt(t, svc, repo, model.TierStandard, base)
		elevated := enqueueAt(t, svc, repo, model.TierElevated, base.Add(time.Second))
		appeal := enqueueAt(t, svc, repo, model.TierAppeal, base.Add(2*time.Second))

		first, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, appeal.ID, first.ID)

		second, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, elevated.ID, second.ID)

		third, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, standard.ID, third.ID)
	})

	t.Run("FIFO within the same tier", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		base := time.Now().Add(-time.Minute)
		first := enqueueAt(t, svc, repo, model.TierStandard, base)
		enqueueAt(t, svc, repo, model.TierStandard, base.Add(time.Second))

		claimed, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
	})

	t.Run("Large tier offset does not starve an old standard entry", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		// 积压 10 分钟的普通条目分数高于刚到的加急档（偏移 5 分钟）
		old := enqueueAt(t, svc, repo, model.TierStandard, time.Now().Add(-10*time.Minute))
		enqueueAt(t, svc, repo, model.TierAppeal, time.Now())

		claimed, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, old.ID, claimed.ID)
	})

	t.Run("Empty queue returns ErrNothingToClaim", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		_, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.ErrorIs(t, err, ErrNothingToClaim)
	})
}

func TestQueueServiceConcurrentClaim(t *testing.T) {
	t.Run("Each entry is claimed exactly once under contention", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		const total = 100
		base := time.Now().Add(-time.Hour)
		for i := 0; i < total; i++ {
			enqueueAt(t, svc, repo, model.TierStandard, base.Add(time.Duration(i)*time.Second))
		}

		const workers = 32
		var mu sync.Mutex
		claimed := make(map[string]string)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(workerID string) {
				defer wg.Done()
				for {
					entry, err := svc.Claim(model.QueuePostModeration, workerID)
					if err != nil {
						return
					}
					mu.Lock()
					prev, dup := claimed[entry.ID]
					claimed[entry.ID] = workerID
					mu.Unlock()
					assert.False(t, dup, "entry %s claimed by both %s and %s", entry.ID, prev, workerID)
				}
			}(uuid.New().String())
		}
		wg.Wait()

		assert.Len(t, claimed, total)
	})
}

func TestQueueServiceRelease(t *testing.T) {
	t.Run("Release preserves queue seniority", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		base := time.Now().Add(-time.Minute)
		oldest := enqueueAt(t, svc, repo, model.TierStandard, base)
		enqueueAt(t, svc, repo, model.TierStandard, base.Add(time.Second))

		claimed, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)
		assert.Equal(t, oldest.ID, claimed.ID)

		assert.NoError(t, svc.Release(claimed.ID))

		reclaimed, err := svc.Claim(model.QueuePostModeration, "worker-b")
		assert.NoError(t, err)
		assert.Equal(t, oldest.ID, reclaimed.ID, "released entry should still be served first")
	})

	t.Run("Release of a pending entry fails", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		entry := enqueueAt(t, svc, repo, model.TierStandard, time.Now())
		assert.ErrorIs(t, svc.Release(entry.ID), ErrNotClaimed)
	})

	t.Run("Stale claims go back to pending", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		entry := enqueueAt(t, svc, repo, model.TierStandard, time.Now().Add(-time.Hour))
		_, err := svc.Claim(model.QueuePostModeration, "worker-gone")
		assert.NoError(t, err)

		// 把认领时间拨回超时窗口之前
		repo.mu.Lock()
		past := time.Now().Add(-config.GlobalConfig.Queue.ClaimTimeout() - time.Minute)
		repo.entries[entry.ID].WorkerAssignedAt = &past
		repo.mu.Unlock()

		released, err := svc.ReleaseStale(model.QueuePostModeration)
		assert.NoError(t, err)
		assert.Equal(t, 1, released)

		got, err := repo.GetByID(entry.ID)
		assert.NoError(t, err)
		assert.Equal(t, model.EntryPending, got.Status)
	})
}

func TestQueueServiceComplete(t *testing.T) {
	t.Run("Complete is terminal", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		entry := enqueueAt(t, svc, repo, model.TierStandard, time.Now())
		_, err := svc.Claim(model.QueuePostModeration, "worker-a")
		assert.NoError(t, err)

		assert.NoError(t, svc.Complete(nil, entry.ID))
		// 重复终结与再释放均失败
		assert.ErrorIs(t, svc.Complete(nil, entry.ID), ErrNotClaimed)
		assert.ErrorIs(t, svc.Release(entry.ID), ErrNotClaimed)
	})

	t.Run("Complete requires a prior claim", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		entry := enqueueAt(t, svc, repo, model.TierStandard, time.Now())
		assert.ErrorIs(t, svc.Complete(nil, entry.ID), ErrNotClaimed)
	})
}

func TestQueueServicePosition(t *testing.T) {
	t.Run("Position counts higher ranked open entries", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		base := time.Now().Add(-time.Minute)
		enqueueAt(t, svc, repo, model.TierStandard, base)
		second := enqueueAt(t, svc, repo, model.TierStandard, base.Add(time.Second))

		info, err := svc.Position(model.QueuePostModeration, second.ContentPK)
		assert.NoError(t, err)
		assert.NotNil(t, info)
		assert.Equal(t, 2, info.Position)
		assert.Greater(t, info.EstimatedWaitSecond, int64(0))
	})

	t.Run("Unknown content returns nil without error", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		info, err := svc.Position(model.QueuePostModeration, uuid.New().String())
		assert.NoError(t, err)
		assert.Nil(t, info)
	})
}

func TestQueueServiceOverview(t *testing.T) {
	t.Run("Overview reports per queue depth", func(t *testing.T) {
		repo := newMemoryQueueRepository()
		svc := NewQueueService(repo, nil)

		enqueueAt(t, svc, repo, model.TierStandard, time.Now())
		_, err := svc.Enqueue(nil, EnqueueRequest{
			QueueType:   model.QueueTopicCreation,
			ContentPK:   uuid.New().String(),
			ContentType: contentModel.TypeTopic,
			AuthorPK:    uuid.New().String(),
		})
		assert.NoError(t, err)

		overview, err := svc.Overview(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, int64(1), overview.PostModerationLength)
		assert.Equal(t, int64(1), overview.TopicCreationLength)
		assert.Equal(t, int64(0), overview.PrivateMessageLength)
	})
}
