package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImageryCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afolu_imagery_calls_total",
			Help: "Total imagery provider API calls",
		},
		[]string{"provider", "endpoint", "status"},
	)

	ImageryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afolu_imagery_latency_seconds",
			Help:    "Imagery provider call latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "endpoint"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afolu_llm_calls_total",
			Help: "Total narrative generation calls",
		},
		[]string{"model", "status"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afolu_llm_tokens_total",
			Help: "Total tokens consumed by narrative generation",
		},
		[]string{"model"},
	)

	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afolu_analyses_total",
			Help: "Total analyses run",
		},
		[]string{"provider", "status"},
	)

	ReportsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afolu_reports_exported_total",
			Help: "Total reports exported",
		},
		[]string{"format"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afolu_cache_lookups_total",
			Help: "Imagery cache lookups",
		},
		[]string{"result"},
	)
)
