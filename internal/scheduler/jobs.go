package scheduler

import (
	"context"
	"log"
	"time"

	"PuckPicks-api/internal/metrics"
	"PuckPicks-api/internal/services"
)

// StaleSweepJob 是一個排程任務：統計已超過時效的快取記錄並更新觀測指標。
// 純稽核用途，不做任何刪除或重新生成；記錄的汰換永遠由請求路徑驅動。
type StaleSweepJob struct {
	db     services.PickStore
	maxAge time.Duration
}

// NewStaleSweepJob 建立一個 StaleSweepJob
func NewStaleSweepJob(db services.PickStore, maxAge time.Duration) *StaleSweepJob {
	return &StaleSweepJob{db: db, maxAge: maxAge}
}

// Run 實現 cron.Job 介面 (github.com/robfig/cron/v3)
func (j *StaleSweepJob) Run() {
	log.Println("資訊：執行排程任務 - 過期記錄稽核...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	count, err := j.db.CountTimeStaleAnalyses(ctx, j.maxAge)
	if err != nil {
		log.Printf("錯誤：過期記錄稽核排程任務執行失敗: %v", err)
		return
	}
	metrics.SetStaleRecords(count)
	log.Printf("資訊：過期記錄稽核排程任務執行完成，目前共 %d 筆記錄已超過時效。\n", count)
}
