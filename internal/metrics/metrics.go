package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_agent_invocations_total",
			Help: "Pipeline invocations by resolve mode and outcome status",
		},
		[]string{"mode", "status"},
	)

	InvocationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_agent_invocation_errors_total",
			Help: "Failed pipeline invocations by error kind",
		},
		[]string{"mode", "kind"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_agent_invocation_duration_seconds",
			Help:    "End-to-end duration of one pipeline invocation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"mode"},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "search_agent_external_call_duration_seconds",
			Help: "Duration of calls to the language model and the analytics service",
		},
		[]string{"service", "result"},
	)

	RowsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_agent_rows_returned",
			Help:    "Rows returned per analytics query",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 25000},
		},
	)

	DefaultedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_agent_defaulted_fields_total",
			Help: "Row fields that were missing or out of range and replaced during normalization",
		},
		[]string{"field", "reason"},
	)
)

// ObserveCall records one external call. result is "ok" or an error kind.
func ObserveCall(service, result string, started time.Time) {
	ExternalCallDuration.WithLabelValues(service, result).Observe(time.Since(started).Seconds())
}
