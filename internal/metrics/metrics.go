package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tenantpal"

var (
	capabilityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_requests_total",
			Help:      "Total number of embedding and chat capability calls",
		},
		[]string{"kind", "model", "status"},
	)

	capabilityRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_request_duration_seconds",
			Help:      "Capability call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "model"},
	)

	stageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"task", "status"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"task"},
	)

	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Corpus ingestions by outcome",
		},
		[]string{"status"},
	)

	ingestedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks written to collections",
		},
	)
)

func init() {
	prometheus.MustRegister(capabilityRequestsTotal)
	prometheus.MustRegister(capabilityRequestDuration)
	prometheus.MustRegister(stageRunsTotal)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(ingestTotal)
	prometheus.MustRegister(ingestedChunksTotal)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCapabilityCall records one embedding or chat round-trip.
func ObserveCapabilityCall(kind, model string, start time.Time, err error) {
	capabilityRequestsTotal.WithLabelValues(kind, model, statusLabel(err)).Inc()
	capabilityRequestDuration.WithLabelValues(kind, model).Observe(time.Since(start).Seconds())
}

// ObserveStage records one pipeline stage execution.
func ObserveStage(task string, start time.Time, err error) {
	stageRunsTotal.WithLabelValues(task, statusLabel(err)).Inc()
	stageDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

// ObserveIngest records the outcome of one ingestion. status is "created",
// "skipped" or "error".
func ObserveIngest(status string, chunks int) {
	ingestTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		ingestedChunksTotal.Add(float64(chunks))
	}
}
