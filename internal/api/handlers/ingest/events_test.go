package ingest

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipe-ingest/internal/infrastructure/events"
	"recipe-ingest/internal/infrastructure/state"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventsFixture struct {
	server      *httptest.Server
	broadcaster *events.Broadcaster
	states      state.TaskStateStore
}

func newEventsFixture(t *testing.T) *eventsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	states := state.NewMemoryStateStore()
	broadcaster := events.NewBroadcaster()
	h := NewEventsHandler(states, broadcaster)

	router := gin.New()
	router.GET("/tasks/:id/events", h.HandleEvents)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &eventsFixture{server: server, broadcaster: broadcaster, states: states}
}

func (f *eventsFixture) dial(t *testing.T, taskID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/tasks/" + taskID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event events.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestEventsStreamPushesCurrentStateFirst(t *testing.T) {
	f := newEventsFixture(t)
	require.NoError(t, f.states.Put(context.Background(), &state.TaskState{
		TaskID:       "t1",
		Status:       state.StatusRunning,
		CurrentPhase: "fetch",
		Progress:     30,
		CreatedAt:    time.Now(),
	}))

	conn := f.dial(t, "t1")
	first := readEvent(t, conn)
	assert.Equal(t, "t1", first.TaskID)
	assert.Equal(t, "fetch", first.Phase)
	assert.Equal(t, 30, first.Progress)
	assert.Equal(t, state.StatusRunning, first.Status)
}

func TestEventsStreamClosesOnFailure(t *testing.T) {
	f := newEventsFixture(t)
	require.NoError(t, f.states.Put(context.Background(), &state.TaskState{
		TaskID:       "t2",
		Status:       state.StatusRunning,
		CurrentPhase: "extract",
		Progress:     30,
		CreatedAt:    time.Now(),
	}))

	conn := f.dial(t, "t2")
	readEvent(t, conn)

	// 首筆事件送達代表訂閱已建立。失敗事件進度不會到 100，
	// 伺服端仍要在推完後收掉連線
	f.broadcaster.Publish(events.Event{
		TaskID:   "t2",
		Phase:    "extract",
		Progress: 70,
		Status:   state.StatusFailed,
		Message:  "食譜擷取失敗",
	})

	event := readEvent(t, conn)
	assert.Equal(t, state.StatusFailed, event.Status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestEventsStreamClosesImmediatelyForTerminalTask(t *testing.T) {
	f := newEventsFixture(t)
	require.NoError(t, f.states.Put(context.Background(), &state.TaskState{
		TaskID:    "t3",
		Status:    state.StatusCommitted,
		Progress:  100,
		CreatedAt: time.Now(),
	}))

	conn := f.dial(t, "t3")
	first := readEvent(t, conn)
	assert.Equal(t, state.StatusCommitted, first.Status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
