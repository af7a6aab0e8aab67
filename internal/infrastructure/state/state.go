package state

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"recipe-ingest/internal/pkg/common"
)

// 任務狀態
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusReviewReady = "review_ready"
	StatusCommitted   = "committed"
	StatusRejected    = "rejected"
	StatusExpired     = "expired"
	StatusFailed      = "failed"
)

// TaskState 任務對外可見的狀態快照
type TaskState struct {
	TaskID        string              `json:"task_id"`
	ThreadID      string              `json:"thread_id,omitempty"`
	Mode          string              `json:"mode"`
	RecipeID      string              `json:"recipe_id,omitempty"`
	Status        string              `json:"status"`
	CurrentPhase  string              `json:"current_phase,omitempty"`
	Progress      int                 `json:"progress"`
	Message       string              `json:"message,omitempty"`
	ErrorCode     string              `json:"error_code,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	Result        *common.RecipeDraft `json:"result,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	LastUpdated   time.Time           `json:"last_updated"`
	ReviewReadyAt *time.Time          `json:"review_ready_at,omitempty"`
}

// IsTerminal 狀態已結束，不會再變化
func IsTerminal(status string) bool {
	switch status {
	case StatusCommitted, StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Terminal 任務已結束，不會再變化
func (s *TaskState) Terminal() bool {
	return IsTerminal(s.Status)
}

// ErrTaskNotFound 任務不存在
var ErrTaskNotFound = common.NewError("TASK_NOT_FOUND", "任務不存在", http.StatusNotFound, nil)

// TaskStateStore 任務狀態的讀寫層
type TaskStateStore interface {
	Put(ctx context.Context, state *TaskState) error
	Get(ctx context.Context, taskID string) (*TaskState, error)
	ListByStatus(ctx context.Context, status string) ([]*TaskState, error)
	// Transition 條件轉移：目前狀態是 from 才改成 to，回傳是否轉移成功。
	// 清理器靠這個保持冪等。
	Transition(ctx context.Context, taskID, from, to string) (bool, error)
}

// MemoryStateStore 內存任務狀態儲存
type MemoryStateStore struct {
	mu    sync.RWMutex
	tasks map[string]*TaskState
	now   func() time.Time
}

// NewMemoryStateStore 創建內存狀態儲存
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		tasks: make(map[string]*TaskState),
		now:   time.Now,
	}
}

// Put 寫入狀態快照
func (s *MemoryStateStore) Put(_ context.Context, st *TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *st
	snapshot.LastUpdated = s.now()
	s.tasks[st.TaskID] = &snapshot
	return nil
}

// Get 讀取狀態快照
func (s *MemoryStateStore) Get(_ context.Context, taskID string) (*TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *st
	return &snapshot, nil
}

// ListByStatus 列出指定狀態的任務，按建立時間排序
func (s *MemoryStateStore) ListByStatus(_ context.Context, status string) ([]*TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TaskState
	for _, st := range s.tasks {
		if st.Status == status {
			snapshot := *st
			out = append(out, &snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Transition 條件狀態轉移
func (s *MemoryStateStore) Transition(_ context.Context, taskID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[taskID]
	if !ok {
		return false, ErrTaskNotFound
	}
	if st.Status != from {
		return false, nil
	}
	st.Status = to
	st.LastUpdated = s.now()
	return true, nil
}
