package pipeline

import (
	"context"
	"time"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"

	"go.uber.org/zap"
)

// Sweeper 審核逾期清理器：定期把超過保留時間仍未審核的任務標為逾期。
// 轉移靠條件更新保持冪等，多實例同時掃也只會成功一次。
type Sweeper struct {
	config *config.SweepConfig
	states state.TaskStateStore
	now    func() time.Time
}

// NewSweeper 創建清理器
func NewSweeper(cfg *config.SweepConfig, states state.TaskStateStore) *Sweeper {
	return &Sweeper{
		config: cfg,
		states: states,
		now:    time.Now,
	}
}

// Run 以固定間隔掃描，直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	common.LogInfo("審核逾期清理器已啟動",
		zap.Duration("interval", interval),
		zap.Duration("review_ttl", s.config.ReviewTTL),
	)
	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce 單次掃描。讀取失敗只記日誌，下一輪再試。
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	tasks, err := s.states.ListByStatus(ctx, state.StatusReviewReady)
	if err != nil {
		common.LogWarn("逾期掃描讀取失敗", zap.Error(err))
		return 0
	}

	cutoff := s.now().Add(-s.config.ReviewTTL)
	expired := 0
	for _, task := range tasks {
		if task.ReviewReadyAt == nil || task.ReviewReadyAt.After(cutoff) {
			continue
		}
		ok, err := s.states.Transition(ctx, task.TaskID, state.StatusReviewReady, state.StatusExpired)
		if err != nil {
			common.LogWarn("逾期轉移失敗",
				zap.String("task_id", task.TaskID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			// 掃描期間狀態已變（審核完成或別的實例先標了），略過
			continue
		}
		expired++
		metrics.TasksCompleted.WithLabelValues(state.StatusExpired).Inc()
		common.LogInfo("任務審核逾期",
			zap.String("task_id", task.TaskID),
			zap.Time("review_ready_at", *task.ReviewReadyAt),
		)
	}
	return expired
}
