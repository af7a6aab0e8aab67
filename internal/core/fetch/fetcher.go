package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Result 抓取結果
type Result struct {
	Text        string // 回應本文
	FinalURL    string // 重導向後的最終 URL
	StatusCode  int
	ContentType string
}

// Fetcher 網路抓取器：URL 驗證、SSRF 篩查、熔斷、
// 串流讀取上限與指數退避重試
type Fetcher struct {
	config   *config.Config
	client   *resty.Client
	breaker  *Breaker
	resolver Resolver
	robots   *RobotsChecker
}

// NewFetcher 創建抓取器
func NewFetcher(cfg *config.Config) *Fetcher {
	f := &Fetcher{
		config:   cfg,
		breaker:  NewBreaker(cfg.Fetcher.BreakerThreshold, cfg.Fetcher.BreakerWindow, cfg.Fetcher.BreakerCooldown),
		resolver: net.DefaultResolver,
	}

	client := resty.New().
		SetTimeout(cfg.Fetcher.Timeout).
		SetHeader("User-Agent", cfg.Fetcher.UserAgent).
		SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(cfg.Fetcher.MaxRedirects),
			// 每一個重導向跳點都重新套用網路政策，
			// 防止公開主機重導向到內部位址
			resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to unsupported scheme %s", req.URL.Scheme)
				}
				return ScreenHost(req.Context(), f.resolver, req.URL.Hostname())
			}),
		)
	f.client = client

	if cfg.Fetcher.RespectRobots {
		f.robots = NewRobotsChecker(client, cfg.Fetcher.UserAgent)
	}

	return f
}

// SetResolver 替換 DNS 解析器（測試用）
func (f *Fetcher) SetResolver(r Resolver) {
	f.resolver = r
}

// Breaker 取得熔斷器（健康檢查 / 測試用）
func (f *Fetcher) Breaker() *Breaker {
	return f.breaker
}

// Fetch 抓取 URL。所有 I/O 前置檢查（URL 格式、熔斷、SSRF、robots）
// 失敗時不會發出任何 HTTP 請求。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("invalid_url").Inc()
		return nil, err
	}
	host := u.Hostname()

	// 熔斷檢查
	if !f.breaker.Allow(host) {
		metrics.FetchTotal.WithLabelValues("circuit_open").Inc()
		return nil, common.NewError(common.ErrCodeCircuitOpen,
			fmt.Sprintf("主機 %s 熔斷中", host), http.StatusServiceUnavailable, nil)
	}

	// SSRF 篩查
	if err := ScreenHost(ctx, f.resolver, host); err != nil {
		metrics.FetchTotal.WithLabelValues("ssrf_blocked").Inc()
		return nil, err
	}

	// robots.txt 否決（選用）
	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		metrics.FetchTotal.WithLabelValues("ssrf_blocked").Inc()
		return nil, common.NewError(common.ErrCodeSSRFBlocked,
			fmt.Sprintf("robots.txt 不允許抓取 %s", u.Path), http.StatusForbidden, nil)
	}

	// 重試迴圈：指數退避、等待期間可取消
	attempts := f.config.Fetcher.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	wait := f.config.Fetcher.RetryWaitMin
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, retryable, err := f.doOnce(ctx, u)
		if err == nil {
			f.breaker.RecordSuccess(host)
			metrics.FetchTotal.WithLabelValues("success").Inc()
			return result, nil
		}

		// 終態錯誤（太大、4xx、取消）不重試
		if !retryable {
			if common.ErrorCode(err) == common.ErrCodeContentTooLarge {
				metrics.FetchTotal.WithLabelValues("too_large").Inc()
				return nil, err
			}
			metrics.FetchTotal.WithLabelValues("exhausted_retries").Inc()
			return nil, err
		}

		f.breaker.RecordFailure(host)
		lastErr = err
		common.LogWarn("抓取失敗，準備重試",
			zap.String("host", host),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		if attempt == attempts {
			break
		}

		// 退避等待；ctx 取消時立即中止
		select {
		case <-ctx.Done():
			metrics.FetchTotal.WithLabelValues("exhausted_retries").Inc()
			return nil, common.NewError(common.ErrCodeMaxRetriesExceeded,
				"抓取已取消", http.StatusBadGateway, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
		if wait > f.config.Fetcher.RetryWaitMax {
			wait = f.config.Fetcher.RetryWaitMax
		}
	}

	metrics.FetchTotal.WithLabelValues("exhausted_retries").Inc()
	return nil, common.NewError(common.ErrCodeMaxRetriesExceeded,
		fmt.Sprintf("主機 %s 重試 %d 次後放棄", host, attempts), http.StatusBadGateway, lastErr)
}

// doOnce 發出一次請求。回傳 (結果, 是否可重試, 錯誤)。
func (f *Fetcher) doOnce(ctx context.Context, u *url.URL) (*Result, bool, error) {
	maxBytes := f.config.Fetcher.MaxBodyBytes

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, common.NewError(common.ErrCodeMaxRetriesExceeded, "抓取已取消", http.StatusBadGateway, ctx.Err())
		}
		// 連線錯誤 / 逾時：可重試
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	status := resp.StatusCode()

	// 5xx 可重試、其餘 4xx 終態
	if status >= 500 {
		return nil, true, fmt.Errorf("server error: status %d", status)
	}
	if status >= 400 {
		return nil, false, common.NewError(common.ErrCodeMaxRetriesExceeded,
			fmt.Sprintf("伺服器回應 %d", status), http.StatusBadGateway, nil)
	}

	// content-length 預檢
	if cl := resp.RawResponse.ContentLength; cl > maxBytes {
		return nil, false, common.NewError(common.ErrCodeContentTooLarge,
			fmt.Sprintf("內容長度 %d 超過上限 %d", cl, maxBytes), http.StatusBadGateway, nil)
	}

	// 串流讀取：多讀一個位元組以偵測超限，不靜默截斷
	body, err := io.ReadAll(io.LimitReader(raw, maxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, common.NewError(common.ErrCodeMaxRetriesExceeded, "抓取已取消", http.StatusBadGateway, ctx.Err())
		}
		return nil, true, fmt.Errorf("read body failed: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, false, common.NewError(common.ErrCodeContentTooLarge,
			fmt.Sprintf("回應本文超過上限 %d", maxBytes), http.StatusBadGateway, nil)
	}

	finalURL := u.String()
	if resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &Result{
		Text:        string(body),
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: resp.Header().Get("Content-Type"),
	}, false, nil
}
