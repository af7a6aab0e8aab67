package fetch

import (
	"sync"
	"time"

	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"

	"go.uber.org/zap"
)

// breakerState 熔斷器狀態
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// hostState 單一主機的失敗視窗。不做持久化：
// 行程重啟後由後續失敗重新累積即可。
type hostState struct {
	failures  []time.Time
	state     breakerState
	openSince time.Time
}

// Breaker 按主機熔斷：滾動視窗內失敗達到門檻即開路，
// 冷卻期過後樂觀重置
type Breaker struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time // 測試時可替換
}

// NewBreaker 創建熔斷器
func NewBreaker(threshold int, window, cooldown time.Duration) *Breaker {
	return &Breaker{
		hosts:     make(map[string]*hostState),
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow 檢查是否允許對主機發出請求。
// 開路且冷卻期已過時樂觀重置並放行。
func (b *Breaker) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs, ok := b.hosts[host]
	if !ok {
		return true
	}

	if hs.state == breakerOpen {
		if b.now().Sub(hs.openSince) >= b.cooldown {
			// 冷卻期結束：樂觀重置
			hs.state = breakerClosed
			hs.failures = nil
			common.LogInfo("熔斷器重置",
				zap.String("host", host),
			)
			return true
		}
		return false
	}
	return true
}

// RecordFailure 記錄一次失敗；視窗內失敗達到門檻時開路
func (b *Breaker) RecordFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	hs, ok := b.hosts[host]
	if !ok {
		hs = &hostState{}
		b.hosts[host] = hs
	}
	if hs.state == breakerOpen {
		return
	}

	// 先追加再修剪視窗
	hs.failures = append(hs.failures, now)
	cutoff := now.Add(-b.window)
	pruned := hs.failures[:0]
	for _, t := range hs.failures {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	hs.failures = pruned

	if len(hs.failures) >= b.threshold {
		hs.state = breakerOpen
		hs.openSince = now
		hs.failures = nil
		metrics.BreakerTrips.Inc()
		common.LogWarn("熔斷器開路",
			zap.String("host", host),
			zap.Int("threshold", b.threshold),
			zap.Duration("cooldown", b.cooldown),
		)
	}
}

// RecordSuccess 記錄一次成功，清空該主機的失敗視窗
func (b *Breaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hs, ok := b.hosts[host]; ok {
		hs.failures = nil
		hs.state = breakerClosed
	}
}
