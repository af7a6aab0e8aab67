package api

import (
	"context"
	"net/http"
	"time"

	"recipe-ingest/internal/api/handlers/health"
	ingestHandler "recipe-ingest/internal/api/handlers/ingest"
	"recipe-ingest/internal/api/middleware"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/events"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/infrastructure/store"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// 請求超時
	timeoutDuration = 120 * time.Second
	// 請求體大小限制 (1MB)，任務請求都是小 JSON
	maxBodySize = 1 << 20
	// POST 去重視窗
	dedupWindow = 2 * time.Second
)

// Deps 路由依賴
type Deps struct {
	Queue       *pipeline.Manager
	Runner      *pipeline.Runner
	States      state.TaskStateStore
	Artifacts   store.ArtifactStore
	Broadcaster *events.Broadcaster
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Deps) (*gin.Engine, error) {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(maxBodySize))

	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	// 請求超時
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Request timeout",
				"code":  "REQUEST_TIMEOUT",
			})
			c.Abort()
		}
	})

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg, deps.Queue)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// 指標
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由組
	taskHandler := ingestHandler.NewHandler(deps.Queue, deps.Runner, deps.States, deps.Artifacts)
	eventsHandler := ingestHandler.NewEventsHandler(deps.States, deps.Broadcaster)

	api := router.Group("/api/v1")
	{
		api.POST("/ingest", middleware.Deduplication(dedupWindow), taskHandler.HandleIngest)

		taskGroup := api.Group("/tasks")
		{
			taskGroup.GET("/:id", taskHandler.HandleGetTask)
			taskGroup.GET("/:id/artifacts", taskHandler.HandleListArtifacts)
			taskGroup.GET("/:id/artifacts/:phase/:name", taskHandler.HandleGetArtifact)
			taskGroup.GET("/:id/events", eventsHandler.HandleEvents)
			taskGroup.POST("/:id/commit", taskHandler.HandleCommit)
			taskGroup.POST("/:id/reject", taskHandler.HandleReject)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.Int("queue_workers", cfg.Queue.Workers),
		zap.Duration("timeout", timeoutDuration),
		zap.Int64("max_body_size", maxBodySize),
	)

	return router, nil
}
