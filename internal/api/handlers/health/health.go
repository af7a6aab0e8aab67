package health

import (
	"net/http"
	"runtime"
	"time"

	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *pipeline.Status       `json:"queue,omitempty"`
}

// Handler 健康檢查處理器
type Handler struct {
	config *config.Config
	queue  *pipeline.Manager
}

// NewHandler 創建健康檢查處理器
func NewHandler(cfg *config.Config, queue *pipeline.Manager) *Handler {
	return &Handler{config: cfg, queue: queue}
}

// HealthCheck 健康檢查
func (h *Handler) HealthCheck(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.config.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"heap_alloc": memStats.HeapAlloc,
			"num_gc":     memStats.NumGC,
			"go_version": runtime.Version(),
		},
	}
	if h.queue != nil {
		resp.Queue = h.queue.GetStatus()
	}
	c.JSON(http.StatusOK, resp)
}

// ReadinessCheck 就緒檢查：隊列滿載時回報未就緒
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.queue != nil {
		status := h.queue.GetStatus()
		if status.QueueLength >= status.MaxQueueSize {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"reason": "queue_full",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// LivenessCheck 存活檢查
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
