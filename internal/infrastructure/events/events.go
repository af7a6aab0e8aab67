package events

import (
	"sync"
	"time"
)

// Event 任務進度事件，推送給訂閱端
type Event struct {
	TaskID    string    `json:"task_id"`
	Phase     string    `json:"phase"`
	Progress  int       `json:"progress"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink 事件出口
type Sink interface {
	Publish(event Event)
}

// Broadcaster 內存事件廣播器。訂閱以任務為單位，
// 訂閱端消費太慢時丟棄事件而不是阻塞管線。
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	bufferSize  int
}

// NewBroadcaster 創建廣播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string][]chan Event),
		bufferSize:  16,
	}
}

// Publish 發布事件給該任務的所有訂閱端
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[event.TaskID] {
		select {
		case ch <- event:
		default:
			// 訂閱端落後太多，丟棄這筆
		}
	}
}

// Subscribe 訂閱任務事件，回傳事件通道和取消函數
func (b *Broadcaster) Subscribe(taskID string) (<-chan Event, func()) {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	b.subscribers[taskID] = append(b.subscribers[taskID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[taskID]
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(b.subscribers[taskID]) == 0 {
			delete(b.subscribers, taskID)
		}
	}
	return ch, cancel
}

// NopSink 不做事的事件出口，測試用
type NopSink struct{}

// Publish 丟棄事件
func (NopSink) Publish(Event) {}
