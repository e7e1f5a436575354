package main

import (
	"fmt"
	"sync"
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	queueModel "robot_overlord_api/internal/domain/queue/model"
	queueRepo "robot_overlord_api/internal/domain/queue/repository"
	queueService "robot_overlord_api/internal/domain/queue/service"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/pkg/database"
	"robot_overlord_api/pkg/logger"

	"github.com/google/uuid"
)

// Config
const (
	TotalEntries = 500 // 入队条目数
	TotalWorkers = 32  // 并发抢占的 worker 数
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.GlobalConfig.App.Env)
	defer logger.Sync()

	db := database.InitDatabase()
	rdb := database.InitRedis()
	_ = rdb

	svc := queueService.NewQueueService(queueRepo.NewQueueRepository(db), nil)

	// 1. 入队
	fmt.Printf("Enqueueing %d entries...\n", TotalEntries)
	for i := 0; i < TotalEntries; i++ {
		_, err := svc.Enqueue(nil, queueService.EnqueueRequest{
			QueueType:   queueModel.QueuePostModeration,
			ContentPK:   uuid.NewString(),
			ContentType: contentModel.TypePost,
			AuthorPK:    uuid.NewString(),
		})
		if err != nil {
			fmt.Printf("enqueue failed: %v\n", err)
			return
		}
	}

	// 2. 并发抢占，校验每个条目恰好被认领一次
	fmt.Printf("Starting %d workers racing for claims...\n", TotalWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := make(map[string]string) // entryID -> workerID
	duplicates := 0
	perWorker := make(map[string]int)

	start := time.Now()
	for i := 0; i < TotalWorkers; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("stress-%d", i)
		go func(workerID string) {
			defer wg.Done()
			misses := 0
			for {
				entry, err := svc.Claim(queueModel.QueuePostModeration, workerID)
				if err == queueService.ErrNothingToClaim {
					// 连续扑空几次再退出，避免和别的 worker 擦肩而过
					misses++
					if misses > 3 {
						return
					}
					time.Sleep(10 * time.Millisecond)
					continue
				}
				if err != nil {
					fmt.Printf("[%s] claim error: %v\n", workerID, err)
					return
				}
				misses = 0

				mu.Lock()
				if prev, ok := claimed[entry.ID]; ok {
					duplicates++
					fmt.Printf("DUPLICATE CLAIM: entry %s won by both %s and %s\n", entry.ID, prev, workerID)
				}
				claimed[entry.ID] = workerID
				perWorker[workerID]++
				mu.Unlock()
			}
		}(workerID)
	}

	wg.Wait()
	duration := time.Since(start)

	// 3. 结果
	fmt.Println("----------------------------------------")
	fmt.Printf("Duration:         %v\n", duration)
	fmt.Printf("Entries enqueued: %d\n", TotalEntries)
	fmt.Printf("Entries claimed:  %d\n", len(claimed))
	fmt.Printf("Duplicate claims: %d\n", duplicates)
	fmt.Printf("Claims/sec:       %.0f\n", float64(len(claimed))/duration.Seconds())
	if duplicates == 0 && len(claimed) == TotalEntries {
		fmt.Println("RESULT: OK — every entry claimed exactly once")
	} else {
		fmt.Println("RESULT: FAILED — claim atomicity violated")
	}
}
