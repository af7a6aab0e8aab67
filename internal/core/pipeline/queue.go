package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// Status 隊列狀態
type Status struct {
	QueueLength    int `json:"queue_length"`
	ProcessedCount int `json:"processed_count"`
	MaxQueueSize   int `json:"max_queue_size"`
	Workers        int `json:"workers"`
}

// Manager 任務隊列管理器：固定數量的工作協程消化匯入任務
type Manager struct {
	config    *config.Config
	runner    *Runner
	queue     chan *IngestTask
	done      chan struct{}
	wg        sync.WaitGroup
	processed int64
	closeOnce sync.Once
}

// NewManager 創建任務隊列管理器
func NewManager(cfg *config.Config, runner *Runner) *Manager {
	return &Manager{
		config: cfg,
		runner: runner,
		queue:  make(chan *IngestTask, cfg.Queue.MaxSize),
		done:   make(chan struct{}),
	}
}

// Start 啟動工作協程。協程存活到 baseCtx 取消或 Close 被呼叫。
func (m *Manager) Start(baseCtx context.Context) {
	workers := m.config.Queue.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker(baseCtx, i)
	}
	common.LogInfo("任務隊列已啟動",
		zap.Int("workers", workers),
		zap.Int("max_queue_size", m.config.Queue.MaxSize),
	)
}

func (m *Manager) worker(baseCtx context.Context, id int) {
	defer m.wg.Done()
	for {
		select {
		case task, ok := <-m.queue:
			if !ok {
				return
			}
			common.LogDebug("工作協程領取任務",
				zap.Int("worker", id),
				zap.String("task_id", task.ID),
				zap.String("mode", task.Mode),
			)
			m.runner.Run(baseCtx, task)
			atomic.AddInt64(&m.processed, 1)
		case <-m.done:
			return
		case <-baseCtx.Done():
			return
		}
	}
}

// Enqueue 任務入列。隊列滿時拒絕而不是阻塞請求端。
func (m *Manager) Enqueue(ctx context.Context, task *IngestTask) error {
	if len(m.queue) >= m.config.Queue.MaxSize {
		return fmt.Errorf("任務隊列已滿")
	}
	select {
	case m.queue <- task:
		common.LogInfo("任務已入列",
			zap.String("task_id", task.ID),
			zap.String("mode", task.Mode),
			zap.Int("queue_length", len(m.queue)),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("任務隊列已關閉")
	}
}

// GetStatus 獲取隊列狀態
func (m *Manager) GetStatus() *Status {
	return &Status{
		QueueLength:    len(m.queue),
		ProcessedCount: int(atomic.LoadInt64(&m.processed)),
		MaxQueueSize:   m.config.Queue.MaxSize,
		Workers:        m.config.Queue.Workers,
	}
}

// Close 關閉隊列並等待工作協程收尾
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}
