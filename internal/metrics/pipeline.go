package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "search_requests_total",
			Help:      "Total number of search pipeline invocations",
		},
		[]string{"mode", "status"}, // status: success / degraded / failed / rejected
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"}, // dense_search / keyword_search / fusion / rerank
	)

	BranchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "branch_failures_total",
			Help:      "Total retrieval branch failures",
		},
		[]string{"branch", "reason"}, // reason: timeout / error
	)

	RerankFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "rerank_fallbacks_total",
			Help:      "Total rerank failures served with fused ordering",
		},
	)

	TraceStoreDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragline",
			Name:      "trace_store_depth",
			Help:      "Number of traces retained in the ring buffer",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(BranchFailuresTotal)
	prometheus.MustRegister(RerankFallbacksTotal)
	prometheus.MustRegister(TraceStoreDepth)
	pipelineMetricsRegistered = true
}
