package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/infrastructure/store"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	router *gin.Engine
	states state.TaskStateStore
	store  store.ArtifactStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Queue.MaxSize = 8
	cfg.Queue.Workers = 1

	states := state.NewMemoryStateStore()
	artifacts := store.NewMemoryStore()
	runner := pipeline.NewRunner(cfg, pipeline.RunnerDeps{
		States:    states,
		Artifacts: artifacts,
		Recipes:   pipeline.NewMemoryRecipeStore(),
	})
	// 工作協程不啟動，任務停在待處理，方便驗證入列行為
	queue := pipeline.NewManager(cfg, runner)

	h := NewHandler(queue, runner, states, artifacts)
	router := gin.New()
	router.POST("/ingest", h.HandleIngest)
	router.GET("/tasks/:id", h.HandleGetTask)
	router.GET("/tasks/:id/artifacts", h.HandleListArtifacts)
	router.GET("/tasks/:id/artifacts/:phase/:name", h.HandleGetArtifact)
	router.POST("/tasks/:id/commit", h.HandleCommit)
	router.POST("/tasks/:id/reject", h.HandleReject)

	return &handlerFixture{router: router, states: states, store: artifacts}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHandleIngestAccepted(t *testing.T) {
	f := newHandlerFixture(t)
	w := f.do(http.MethodPost, "/ingest", `{"mode": "url", "url": "https://example.com/recipe"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, state.StatusPending, resp.Status)

	st, err := f.states.Get(context.Background(), resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, st.Status)
	assert.Equal(t, "url", st.Mode)
}

func TestHandleIngestBadRequests(t *testing.T) {
	f := newHandlerFixture(t)
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"非 JSON", `not json`, common.ErrCodeInvalidPayload},
		{"缺少模式", `{"url": "https://example.com"}`, common.ErrCodeInvalidPayload},
		{"網址模式缺網址", `{"mode": "url"}`, common.ErrCodeMissingURL},
		{"正規化模式缺編號", `{"mode": "normalize"}`, common.ErrCodeMissingRecipeID},
		{"不支援的模式", `{"mode": "rss"}`, common.ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/ingest", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp["code"])
		})
	}
}

func TestHandleGetTask(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.states.Put(context.Background(), &state.TaskState{
		TaskID:    "t1",
		Mode:      "url",
		Status:    state.StatusRunning,
		Progress:  30,
		CreatedAt: time.Now(),
	}))

	w := f.do(http.MethodGet, "/tasks/t1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st state.TaskState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 30, st.Progress)

	w = f.do(http.MethodGet, "/tasks/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleArtifacts(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.states.Put(ctx, &state.TaskState{
		TaskID: "t1", ThreadID: "th1", Status: state.StatusReviewReady, CreatedAt: time.Now(),
	}))
	key := store.ArtifactKey{ThreadID: "th1", TaskID: "t1", Phase: "fetch", Name: store.ArtifactSanitizedText}
	require.NoError(t, f.store.Write(ctx, key, []byte("清洗後內容")))

	w := f.do(http.MethodGet, "/tasks/t1/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		TaskID    string              `json:"task_id"`
		Artifacts []store.ArtifactKey `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Artifacts, 1)
	assert.Equal(t, store.ArtifactSanitizedText, listing.Artifacts[0].Name)

	// 文字成品以純文字輸出
	w = f.do(http.MethodGet, "/tasks/t1/artifacts/fetch/sanitized_text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "清洗後內容", w.Body.String())

	w = f.do(http.MethodGet, "/tasks/t1/artifacts/fetch/draft", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 任務不存在時列表回 404
	w = f.do(http.MethodGet, "/tasks/unknown/artifacts", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCommitAndReject(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	now := time.Now()
	draft := &common.RecipeDraft{
		Recipe: &common.Recipe{
			Name:         "三杯雞",
			Servings:     3,
			Ingredients:  []common.Ingredient{{Name: "雞腿肉", Quantity: 600, Unit: "g"}},
			Instructions: []common.Instruction{{StepNumber: 1, Text: "煸炒後燜煮收汁。"}},
		},
		Validation: &common.ValidationReport{},
	}
	put := func(taskID string) {
		require.NoError(t, f.states.Put(ctx, &state.TaskState{
			TaskID:        taskID,
			Mode:          "url",
			Status:        state.StatusReviewReady,
			Progress:      100,
			Result:        draft,
			CreatedAt:     now,
			ReviewReadyAt: &now,
		}))
	}

	put("commit-me")
	w := f.do(http.MethodPost, "/tasks/commit-me/commit", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st state.TaskState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, state.StatusCommitted, st.Status)

	// 已提交後再退回要衝突
	w = f.do(http.MethodPost, "/tasks/commit-me/reject", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	put("reject-me")
	w = f.do(http.MethodPost, "/tasks/reject-me/reject", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, state.StatusRejected, st.Status)

	w = f.do(http.MethodPost, "/tasks/missing/commit", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// slowPendingStore 延遲待處理狀態的寫入，模擬工作協程搶先完工的時序
type slowPendingStore struct {
	state.TaskStateStore
	delay time.Duration
}

func (s *slowPendingStore) Put(ctx context.Context, st *state.TaskState) error {
	if st.Status == state.StatusPending {
		time.Sleep(s.delay)
	}
	return s.TaskStateStore.Put(ctx, st)
}

func TestHandleIngestDoesNotStompWorkerState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Queue.MaxSize = 8
	cfg.Queue.Workers = 1

	states := &slowPendingStore{
		TaskStateStore: state.NewMemoryStateStore(),
		delay:          50 * time.Millisecond,
	}
	runner := pipeline.NewRunner(cfg, pipeline.RunnerDeps{
		States:  states,
		Recipes: pipeline.NewMemoryRecipeStore(),
	})
	queue := pipeline.NewManager(cfg, runner)
	queue.Start(context.Background())
	defer queue.Close()

	h := NewHandler(queue, runner, states, store.NewMemoryStore())
	router := gin.New()
	router.POST("/ingest", h.HandleIngest)

	// 查詢模式未配置搜尋來源，工作協程會立刻把任務寫成失敗；
	// 待處理狀態寫得再慢也不能把終止狀態蓋回待處理
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"mode": "query", "query": "牛肉麵"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		st, err := states.Get(context.Background(), resp.TaskID)
		return err == nil && st.Status == state.StatusFailed
	}, 2*time.Second, 20*time.Millisecond)
}
