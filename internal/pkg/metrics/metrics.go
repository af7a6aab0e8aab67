package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FetchTotal 抓取結果計數（label: outcome）
	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recipe_ingest",
		Name:      "fetch_total",
		Help:      "Total fetch attempts by terminal outcome.",
	}, []string{"outcome"})

	// BreakerTrips 熔斷器跳閘計數
	BreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recipe_ingest",
		Name:      "circuit_breaker_trips_total",
		Help:      "Total circuit breaker open transitions.",
	})

	// LLMCalls LLM 調用計數（label: phase, status）
	LLMCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recipe_ingest",
		Name:      "llm_calls_total",
		Help:      "Total LLM backend calls by phase and status.",
	}, []string{"phase", "status"})

	// PhaseDuration 管線階段耗時
	PhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recipe_ingest",
		Name:      "phase_duration_seconds",
		Help:      "Pipeline phase durations.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"phase"})

	// TasksCompleted 任務終態計數（label: status）
	TasksCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recipe_ingest",
		Name:      "tasks_completed_total",
		Help:      "Total pipeline tasks reaching a terminal status.",
	}, []string{"status"})

	// SimilarityViolations 相似度違規計數
	SimilarityViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recipe_ingest",
		Name:      "similarity_violations_total",
		Help:      "Total similarity reports flagged as policy violations.",
	})
)

// Init 註冊所有收集器；由 main 呼叫一次
func Init() {
	prometheus.MustRegister(
		FetchTotal,
		BreakerTrips,
		LLMCalls,
		PhaseDuration,
		TasksCompleted,
		SimilarityViolations,
	)
}
