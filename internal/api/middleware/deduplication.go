package middleware

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"recipe-ingest/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deduplication 請求去重中間件：短時間內相同內容的 POST 直接退回，
// 避免同一個頁面被重複送進管線
func Deduplication(window time.Duration) gin.HandlerFunc {
	if window <= 0 {
		window = time.Second
	}

	var mu sync.Mutex
	seen := make(map[string]time.Time)

	// 過期指紋的背景清理
	go func() {
		ticker := time.NewTicker(10 * window)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now()
			mu.Lock()
			for k, t := range seen {
				if now.Sub(t) > window {
					delete(seen, k)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		fingerprint := c.Request.Method + ":" + c.Request.URL.Path
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				common.LogError("Failed to read request body", zap.Error(err))
				c.Next()
				return
			}
			fingerprint += ":" + common.HashContent(body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		now := time.Now()
		mu.Lock()
		last, exists := seen[fingerprint]
		if exists && now.Sub(last) <= window {
			mu.Unlock()
			common.LogInfo("重複請求已退回",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "重複請求，請稍後再試",
			})
			return
		}
		seen[fingerprint] = now
		mu.Unlock()

		c.Next()
	}
}
