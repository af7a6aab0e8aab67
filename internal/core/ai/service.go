package ai

import (
	"context"
	"time"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"
)

// ResponseCache LLM 回應快取。行程內的 CacheManager 與
// redis 的 cache.Service 都滿足這個介面。
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Service LLM 服務：快取 + OpenRouter 後端。實作 Backend 介面。
type Service struct {
	config  *config.Config
	backend Backend
	cache   ResponseCache
}

// NewService 創建 LLM 服務
func NewService(cfg *config.Config, responseCache ResponseCache) *Service {
	return &Service{
		config:  cfg,
		backend: NewOpenRouterClient(cfg),
		cache:   responseCache,
	}
}

// NewServiceWithBackend 以自訂後端創建 LLM 服務（測試用）
func NewServiceWithBackend(cfg *config.Config, backend Backend, responseCache ResponseCache) *Service {
	return &Service{
		config:  cfg,
		backend: backend,
		cache:   responseCache,
	}
}

// Chat 送出請求；相同請求內容命中快取時不再呼叫後端
func (s *Service) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	key := s.cacheKey(req)

	if s.config.Cache.Enabled && s.cache != nil {
		if val, err := s.cache.Get(ctx, key); err == nil && val != "" {
			common.LogCacheHit("llm", key)
			return val, nil
		}
		common.LogCacheMiss("llm", key)
	}

	start := time.Now()
	content, err := s.backend.Chat(ctx, req)
	common.LogLLMCall("chat", time.Since(start), err)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("chat", "error").Inc()
		return "", err
	}
	metrics.LLMCalls.WithLabelValues("chat", "ok").Inc()

	if s.config.Cache.Enabled && s.cache != nil {
		_ = s.cache.Set(ctx, key, content)
	}

	return content, nil
}

// cacheKey 以完整請求內容的哈希作為快取鍵；
// 序列化失敗時退回拼接訊息內容
func (s *Service) cacheKey(req *ChatRequest) string {
	if data, err := common.ToJSON(req); err == nil {
		return common.HashString(data)
	}
	joined := req.SystemPrompt
	for _, m := range req.Messages {
		joined += "\x00" + m.Role + "\x00" + m.Content
	}
	return common.HashString(joined)
}
