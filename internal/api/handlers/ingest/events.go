package ingest

import (
	"net/http"
	"time"

	"recipe-ingest/internal/infrastructure/events"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由 CORS 中間件把關
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// EventsHandler 任務進度的 WebSocket 推送
type EventsHandler struct {
	states      state.TaskStateStore
	broadcaster *events.Broadcaster
}

// NewEventsHandler 創建事件處理器
func NewEventsHandler(states state.TaskStateStore, broadcaster *events.Broadcaster) *EventsHandler {
	return &EventsHandler{states: states, broadcaster: broadcaster}
}

// HandleEvents 訂閱任務事件流。連線建立後先推一筆目前狀態，
// 任務結束或客戶端斷線就收尾。
func (h *EventsHandler) HandleEvents(c *gin.Context) {
	taskID := c.Param("id")
	st, err := h.states.Get(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		common.LogWarn("WebSocket 升級失敗",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	ch, cancel := h.broadcaster.Subscribe(taskID)
	defer cancel()

	// 先推目前狀態，客戶端不用等下一個事件
	first := events.Event{
		TaskID:    st.TaskID,
		Phase:     st.CurrentPhase,
		Progress:  st.Progress,
		Status:    st.Status,
		Message:   st.Message,
		Timestamp: st.LastUpdated,
	}
	if err := writeEvent(conn, first); err != nil {
		return
	}
	if st.Terminal() {
		return
	}

	// 讀取協程只負責偵測客戶端斷線
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				return
			}
			// 任務失敗時進度不會到 100，終止狀態也要收尾
			if event.Progress >= 100 || state.IsTerminal(event.Status) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(event)
}
