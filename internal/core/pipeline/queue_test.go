package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/infrastructure/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueTestManager(t *testing.T, maxSize, workers int) (*Manager, state.TaskStateStore) {
	t.Helper()
	cfg := runnerTestConfig()
	cfg.Queue.MaxSize = maxSize
	cfg.Queue.Workers = workers

	states := state.NewMemoryStateStore()
	runner := NewRunner(cfg, RunnerDeps{
		States:    states,
		Artifacts: store.NewMemoryStore(),
		Recipes:   NewMemoryRecipeStore(),
	})
	return NewManager(cfg, runner), states
}

func TestManagerProcessesTasks(t *testing.T) {
	manager, states := queueTestManager(t, 8, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)
	defer manager.Close()

	// 不支援的模式會直接失敗，但仍要被工作協程消化
	for i := 0; i < 4; i++ {
		require.NoError(t, manager.Enqueue(ctx, &IngestTask{
			ID:        fmt.Sprintf("task-%d", i),
			Mode:      "unsupported",
			CreatedAt: time.Now(),
		}))
	}

	require.Eventually(t, func() bool {
		return manager.GetStatus().ProcessedCount == 4
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 4; i++ {
		st, err := states.Get(ctx, fmt.Sprintf("task-%d", i))
		require.NoError(t, err)
		assert.Equal(t, state.StatusFailed, st.Status)
	}
}

func TestManagerRejectsWhenFull(t *testing.T) {
	manager, _ := queueTestManager(t, 1, 1)
	// 不啟動工作協程，讓隊列保持滿載
	ctx := context.Background()

	require.NoError(t, manager.Enqueue(ctx, &IngestTask{ID: "first", Mode: ModeURL}))
	err := manager.Enqueue(ctx, &IngestTask{ID: "second", Mode: ModeURL})
	require.Error(t, err)

	status := manager.GetStatus()
	assert.Equal(t, 1, status.QueueLength)
	assert.Equal(t, 1, status.MaxQueueSize)
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	manager, _ := queueTestManager(t, 4, 2)
	manager.Start(context.Background())
	manager.Close()
	manager.Close()

	assert.Equal(t, 0, manager.GetStatus().QueueLength)
}

func TestManagerEnqueueAfterCloseUnbuffered(t *testing.T) {
	manager, _ := queueTestManager(t, 0, 1)
	manager.Close()

	err := manager.Enqueue(context.Background(), &IngestTask{ID: "late", Mode: ModeURL})
	require.Error(t, err)
}
