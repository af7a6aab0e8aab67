package ingest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/infrastructure/store"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IngestRequest 建立匯入任務的請求
type IngestRequest struct {
	Mode       string   `json:"mode" binding:"required"` // url | query | normalize
	ThreadID   string   `json:"thread_id,omitempty"`     // 歸屬執行緒，空值時自成一緒
	URL        string   `json:"url,omitempty"`
	Query      string   `json:"query,omitempty"`
	RecipeID   string   `json:"recipe_id,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// IngestResponse 任務建立結果
type IngestResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Handler 匯入任務處理器
type Handler struct {
	queue     *pipeline.Manager
	runner    *pipeline.Runner
	states    state.TaskStateStore
	artifacts store.ArtifactStore
}

// NewHandler 創建處理器
func NewHandler(queue *pipeline.Manager, runner *pipeline.Runner, states state.TaskStateStore, artifacts store.ArtifactStore) *Handler {
	return &Handler{
		queue:     queue,
		runner:    runner,
		states:    states,
		artifacts: artifacts,
	}
}

// HandleIngest 建立匯入任務並入列
func (h *Handler) HandleIngest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "請求格式錯誤",
			"code":  common.ErrCodeInvalidPayload,
		})
		return
	}

	task := &pipeline.IngestTask{
		ID:       common.GenerateUUID(),
		ThreadID: strings.TrimSpace(req.ThreadID),
		Mode:     strings.ToLower(strings.TrimSpace(req.Mode)),
		Payload: pipeline.TaskPayload{
			URL:        strings.TrimSpace(req.URL),
			Query:      strings.TrimSpace(req.Query),
			RecipeID:   strings.TrimSpace(req.RecipeID),
			FocusAreas: req.FocusAreas,
		},
		CreatedAt: time.Now(),
	}
	if task.ThreadID == "" {
		task.ThreadID = task.ID
	}
	if err := task.ValidatePayload(); err != nil {
		respondError(c, err)
		return
	}

	// 待處理狀態必須先落地再入列，否則快手的工作協程
	// 寫完終止狀態後會被這筆覆蓋回待處理
	if err := h.states.Put(c.Request.Context(), &state.TaskState{
		TaskID:    task.ID,
		ThreadID:  task.ThreadID,
		Mode:      task.Mode,
		RecipeID:  task.Payload.RecipeID,
		Status:    state.StatusPending,
		CreatedAt: task.CreatedAt,
	}); err != nil {
		respondError(c, err)
		return
	}

	if err := h.queue.Enqueue(c.Request.Context(), task); err != nil {
		common.LogWarn("任務入列失敗",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		_, _ = h.states.Transition(c.Request.Context(), task.ID, state.StatusPending, state.StatusFailed)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "服務繁忙，請稍後再試",
			"code":  common.ErrCodeInternalError,
		})
		return
	}

	c.JSON(http.StatusAccepted, IngestResponse{
		TaskID: task.ID,
		Status: state.StatusPending,
	})
}

// HandleGetTask 查詢任務狀態
func (h *Handler) HandleGetTask(c *gin.Context) {
	st, err := h.states.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleListArtifacts 列出任務成品
func (h *Handler) HandleListArtifacts(c *gin.Context) {
	taskID := c.Param("id")
	st, err := h.states.Get(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	keys, err := h.artifacts.List(c.Request.Context(), threadOf(st), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id":   taskID,
		"artifacts": keys,
	})
}

// HandleGetArtifact 讀取單一成品內容
func (h *Handler) HandleGetArtifact(c *gin.Context) {
	st, err := h.states.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	key := store.ArtifactKey{
		ThreadID: threadOf(st),
		TaskID:   st.TaskID,
		Phase:    c.Param("phase"),
		Name:     c.Param("name"),
	}
	data, err := h.artifacts.Read(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := "application/json"
	switch key.Name {
	case store.ArtifactSanitizedText, store.ArtifactDiff:
		contentType = "text/plain; charset=utf-8"
	case store.ArtifactRawHTML:
		contentType = "text/html; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, data)
}

// threadOf 舊狀態缺執行緒時退回任務編號，與執行器的預設一致
func threadOf(st *state.TaskState) string {
	if st.ThreadID != "" {
		return st.ThreadID
	}
	return st.TaskID
}

// HandleCommit 審核通過
func (h *Handler) HandleCommit(c *gin.Context) {
	st, err := h.runner.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleReject 審核退回
func (h *Handler) HandleReject(c *gin.Context) {
	st, err := h.runner.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// respondError 統一錯誤輸出：帶狀態碼的已知錯誤直接映射，
// 其他一律 500 且不外洩原始訊息
func respondError(c *gin.Context, err error) {
	var customErr *common.CustomError
	if errors.As(err, &customErr) {
		c.JSON(customErr.Status, gin.H{
			"error": customErr.Message,
			"code":  customErr.Code,
		})
		return
	}
	var phaseErr *common.PhaseError
	if errors.As(err, &phaseErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": phaseErr.Message,
			"code":  phaseErr.Code,
		})
		return
	}
	common.LogError("未分類的請求錯誤", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "服務器內部錯誤",
		"code":  common.ErrCodeInternalError,
	})
}
