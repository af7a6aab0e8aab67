package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-ingest/internal/api"
	"recipe-ingest/internal/core/ai"
	"recipe-ingest/internal/core/ai/cache"
	"recipe-ingest/internal/core/extract"
	"recipe-ingest/internal/core/fetch"
	"recipe-ingest/internal/core/normalize"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/core/prompt"
	"recipe-ingest/internal/core/repair"
	"recipe-ingest/internal/core/similarity"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/events"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/infrastructure/store"
	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 載入 .env
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	// 載入設定
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.String("artifact_backend", cfg.Artifact.Backend),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	metrics.Init()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 快取與 AI 服務：配置了 redis 就用共享快取，否則用行程內快取
	var responseCache ai.ResponseCache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewService(&cfg.Cache)
		if err != nil {
			common.LogFatal("Failed to connect to Redis cache", zap.Error(err))
		}
		responseCache = redisCache
	} else {
		responseCache = cache.NewManager(cfg)
	}
	defer responseCache.Close()
	aiService := ai.NewService(cfg, responseCache)

	// 成品與狀態儲存
	artifacts, err := store.NewArtifactStore(rootCtx, &cfg.Artifact)
	if err != nil {
		common.LogFatal("Failed to initialize artifact store", zap.Error(err))
	}
	defer artifacts.Close()

	states := state.NewMemoryStateStore()
	recipes := pipeline.NewMemoryRecipeStore()
	broadcaster := events.NewBroadcaster()

	// 管線組件
	prompts := prompt.NewRegistry()
	analyzer := similarity.NewAnalyzer(&cfg.Similarity)
	runner := pipeline.NewRunner(cfg, pipeline.RunnerDeps{
		Fetcher:    fetch.NewFetcher(cfg),
		Extractor:  extract.NewOrchestrator(extract.NewLLMExtractor(cfg, aiService, prompts)),
		Analyzer:   analyzer,
		Repairer:   repair.NewService(cfg, aiService, prompts, analyzer),
		Normalizer: normalize.NewEngine(cfg, aiService, prompts),
		States:     states,
		Artifacts:  artifacts,
		Events:     broadcaster,
		Recipes:    recipes,
	})

	// 任務隊列
	queue := pipeline.NewManager(cfg, runner)
	queue.Start(rootCtx)
	defer queue.Close()

	// 審核逾期清理
	if cfg.Sweep.Enabled {
		sweeper := pipeline.NewSweeper(&cfg.Sweep, states)
		go sweeper.Run(rootCtx)
	}

	// 設置路由
	router, err := api.SetupRouter(cfg, api.Deps{
		Queue:       queue,
		Runner:      runner,
		States:      states,
		Artifacts:   artifacts,
		Broadcaster: broadcaster,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogError("Failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	common.LogInfo("Server exited")
}
