// Package metrics exposes Prometheus instrumentation for retrieval, training
// and upstream calls. Values can be written to a node_exporter textfile
// after a CLI run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobmatch_retrieval_duration_seconds",
			Help:    "Duration of recommendation calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction", "outcome"},
	)

	HardFilterRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmatch_hard_filter_rejections_total",
			Help: "Pairs rejected by each hard filter gate",
		},
		[]string{"gate"},
	)

	InvalidInputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmatch_invalid_inputs_total",
			Help: "Pool members excluded because of invalid input",
		},
		[]string{"entity"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobmatch_embedding_cache_hits_total",
			Help: "Entity embeddings served from cache",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobmatch_embedding_cache_misses_total",
			Help: "Entity embeddings computed by a tower",
		},
	)

	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmatch_upstream_calls_total",
			Help: "Calls to external services",
		},
		[]string{"service", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobmatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	TrainingLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobmatch_training_loss",
			Help: "Loss of the last training step",
		},
	)

	TrainingSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmatch_training_steps_total",
			Help: "Training steps by outcome",
		},
		[]string{"outcome"},
	)

	ValidationNDCG = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobmatch_validation_ndcg",
			Help: "Mean NDCG@K on the validation split after the last epoch",
		},
	)
)

// RecordRetrieval observes a recommendation call.
func RecordRetrieval(direction string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RetrievalDuration.WithLabelValues(direction, outcome).Observe(duration.Seconds())
}

// RecordUpstream counts a call to an external service.
func RecordUpstream(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamCalls.WithLabelValues(service, outcome).Inc()
}

// RecordCache counts an embedding cache lookup.
func RecordCache(hit bool) {
	if hit {
		EmbeddingCacheHits.Inc()
		return
	}
	EmbeddingCacheMisses.Inc()
}

// WriteTextfile dumps the default registry in the Prometheus text format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
