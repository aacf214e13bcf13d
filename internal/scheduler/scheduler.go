package scheduler

import (
	"log"
	"time"

	"PuckPicks-api/internal/services"

	"github.com/robfig/cron/v3"
)

// Scheduler 結構
type Scheduler struct {
	cron     *cron.Cron
	sweepJob *StaleSweepJob
}

// NewScheduler 以設定檔傳入的 Cron 表達式註冊稽核任務
func NewScheduler(db services.PickStore, maxAge time.Duration, sweepCronSpec string) *Scheduler {
	c := cron.New(cron.WithSeconds())

	sweepJob := NewStaleSweepJob(db, maxAge)
	if sweepCronSpec != "" {
		_, err := c.AddJob(sweepCronSpec, sweepJob)
		if err != nil {
			log.Fatalf("錯誤：無法新增過期記錄稽核任務到排程器 (spec: %s): %v", sweepCronSpec, err)
		}
		log.Printf("資訊：過期記錄稽核任務已註冊，排程：%s\n", sweepCronSpec)
	} else {
		log.Println("警告：未提供過期記錄稽核任務的 Cron 表達式，該任務將不會被排程。")
	}

	return &Scheduler{
		cron:     c,
		sweepJob: sweepJob,
	}
}

// Start 非阻塞啟動排程器
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("資訊：排程器已非阻塞啟動 (如果任務已註冊)。")
}

// Stop 等待運行中任務完成後停止排程器
func (s *Scheduler) Stop() {
	log.Println("資訊：正在停止排程器...")
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		log.Println("資訊：排程器已優雅停止，所有運行中任務已完成。")
	case <-time.After(10 * time.Second):
		log.Println("警告：排程器停止超時，可能仍有任務在執行。")
	}
}
