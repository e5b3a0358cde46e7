package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var pageRendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plansets_page_renders_total",
	Help: "Page render requests labelled by result (hit, miss, error).",
}, []string{"result"})

var documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plansets_documents_total",
	Help: "Documents reaching a terminal extraction state, labelled by outcome.",
}, []string{"outcome"})

var serviceRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "plansets_service_retries_total",
	Help: "Retried external service calls, labelled by step.",
}, []string{"step"})

var inFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "plansets_service_in_flight",
	Help: "External service requests currently in flight.",
})

var checkpointWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "plansets_checkpoint_writes_total",
	Help: "Checkpoint snapshots written.",
})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "plansets_dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"step"})

func CaptureRender(result string) {
	pageRendersTotal.WithLabelValues(result).Inc()
}

func CaptureOutcome(outcome string) {
	documentsTotal.WithLabelValues(outcome).Inc()
}

func CaptureRetry(step string) {
	serviceRetriesTotal.WithLabelValues(step).Inc()
}

func CaptureCheckpointWrite() {
	checkpointWritesTotal.Inc()
}

func IncrementInFlight() {
	inFlightRequests.Inc()
}

func DecrementInFlight() {
	inFlightRequests.Dec()
}

func CaptureExecutionMetrics(step string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(step).Observe(elapsed.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
