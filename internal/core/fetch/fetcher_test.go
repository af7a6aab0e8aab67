package fetch

import (
	"context"
	"testing"
	"time"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Fetcher: config.FetcherConfig{
			Timeout:          5 * time.Second,
			MaxBodyBytes:     1 << 20,
			MaxRetries:       2,
			RetryWaitMin:     time.Millisecond,
			RetryWaitMax:     10 * time.Millisecond,
			MaxRedirects:     5,
			UserAgent:        "recipe-ingest-test/1.0",
			BreakerThreshold: 3,
			BreakerWindow:    time.Minute,
			BreakerCooldown:  time.Minute,
		},
	}
}

func TestFetchRejectsBeforeAnyIO(t *testing.T) {
	f := NewFetcher(testConfig())
	// 避免測試打到真實 DNS
	f.SetResolver(&fakeResolver{addrs: map[string][]string{}})

	tests := []struct {
		name     string
		url      string
		wantCode string
	}{
		{"空 URL", "", common.ErrCodeMissingURL},
		{"壞 scheme", "file:///etc/hosts", common.ErrCodeInvalidPayload},
		{"回送主機", "http://localhost/recipe", common.ErrCodeSSRFBlocked},
		{"私有位址", "http://192.168.0.10/recipe", common.ErrCodeSSRFBlocked},
		{"無解析結果", "https://nosuchhost.example.com/recipe", common.ErrCodeSSRFBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.url)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, common.ErrorCode(err))
		})
	}
}

func TestFetchCircuitOpen(t *testing.T) {
	f := NewFetcher(testConfig())
	f.SetResolver(&fakeResolver{addrs: map[string][]string{
		"flaky.example.com": {"93.184.216.34"},
	}})

	// 先把熔斷器打開
	for i := 0; i < 3; i++ {
		f.Breaker().RecordFailure("flaky.example.com")
	}

	_, err := f.Fetch(context.Background(), "https://flaky.example.com/recipe")
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeCircuitOpen, common.ErrorCode(err))
}

func TestFetchCancelledContext(t *testing.T) {
	f := NewFetcher(testConfig())
	f.SetResolver(&fakeResolver{addrs: map[string][]string{
		"slow.example.com": {"93.184.216.34"},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://slow.example.com/recipe")
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeMaxRetriesExceeded, common.ErrorCode(err))
}
