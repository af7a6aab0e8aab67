package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"recipe-ingest/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsCacheTTL = 30 * time.Minute

// robotsEntry 快取的 robots.txt 解析結果
type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// RobotsChecker robots.txt 檢查器，按主機快取解析結果
type RobotsChecker struct {
	client    *resty.Client
	userAgent string
	mu        sync.Mutex
	cache     map[string]robotsEntry
	now       func() time.Time
}

// NewRobotsChecker 創建 robots.txt 檢查器
func NewRobotsChecker(client *resty.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]robotsEntry),
		now:       time.Now,
	}
}

// Allowed 判斷 userAgent 是否允許抓取該 URL。
// robots.txt 無法取得或無法解析時不否決抓取。
func (r *RobotsChecker) Allowed(ctx context.Context, u *url.URL) bool {
	data := r.robotsFor(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, r.userAgent)
}

// robotsFor 取得該主機的 robots 資料，必要時重新抓取
func (r *RobotsChecker) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host

	r.mu.Lock()
	entry, ok := r.cache[origin]
	r.mu.Unlock()
	if ok && r.now().Sub(entry.fetchedAt) < robotsCacheTTL {
		return entry.data
	}

	resp, err := r.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/robots.txt", origin))
	if err != nil {
		common.LogDebug("robots.txt 抓取失敗",
			zap.String("origin", origin),
			zap.Error(err),
		)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Body())
	if err != nil {
		common.LogDebug("robots.txt 解析失敗",
			zap.String("origin", origin),
			zap.Error(err),
		)
		return nil
	}

	r.mu.Lock()
	r.cache[origin] = robotsEntry{data: data, fetchedAt: r.now()}
	r.mu.Unlock()

	return data
}
