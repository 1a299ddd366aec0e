// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Aggregation metrics
	SourceCalls           *prometheus.CounterVec
	SourceFailures        *prometheus.CounterVec
	ObservationsCommitted prometheus.Counter
	RecordsDropped        prometheus.Counter
	ParseSkips            *prometheus.CounterVec
	SourceCallLatency     *prometheus.HistogramVec
	AggregationDuration   prometheus.Histogram

	// Forecast metrics
	ModelsTrained     prometheus.Counter
	TrainingDuration  prometheus.Histogram
	PredictionsServed prometheus.Counter
	InsufficientData  prometheus.Counter

	// Deal ranking metrics
	DealQueries prometheus.Counter

	// Scheduler metrics
	RefreshPasses         *prometheus.CounterVec
	ProductsRefreshed     prometheus.Counter
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "smartcart"
	}

	return &Metrics{
		// Aggregation metrics
		SourceCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "source_calls_total",
			Help:      "Total number of source calls by source and outcome",
		}, []string{"source", "outcome"}),
		SourceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "source_failures_total",
			Help:      "Total number of failed source calls by source and reason",
		}, []string{"source", "reason"}),
		ObservationsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "observations_committed_total",
			Help:      "Total number of price observations committed",
		}),
		RecordsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "records_dropped_total",
			Help:      "Total number of raw records dropped by normalization",
		}),
		ParseSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "parse_skips_total",
			Help:      "Total number of malformed entries skipped inside source payloads",
		}, []string{"source"}),
		SourceCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "source_call_duration_seconds",
			Help:      "Source call latency by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		AggregationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "pass_duration_seconds",
			Help:      "Full aggregation pass latency",
			Buckets:   prometheus.DefBuckets,
		}),

		// Forecast metrics
		ModelsTrained: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "models_trained_total",
			Help:      "Total number of forecast models trained",
		}),
		TrainingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "training_duration_seconds",
			Help:      "Model training latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		PredictionsServed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "predictions_served_total",
			Help:      "Total number of prediction requests served",
		}),
		InsufficientData: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "insufficient_data_total",
			Help:      "Total number of prediction requests declined for short history",
		}),

		// Deal ranking metrics
		DealQueries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deals",
			Name:      "queries_total",
			Help:      "Total number of deal ranking queries",
		}),

		// Scheduler metrics
		RefreshPasses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "refresh_passes_total",
			Help:      "Total number of refresh passes by status",
		}, []string{"status"}),
		ProductsRefreshed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "products_refreshed_total",
			Help:      "Total number of products refreshed by the scheduler",
		}),
		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_successful_refresh_timestamp_seconds",
			Help:      "Unix timestamp of the last successful refresh pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSourceCall records one source call outcome with its latency.
func RecordSourceCall(source, outcome string, seconds float64) {
	DefaultMetrics.SourceCalls.WithLabelValues(source, outcome).Inc()
	DefaultMetrics.SourceCallLatency.WithLabelValues(source).Observe(seconds)
}

// RecordSourceFailure records one classified source failure.
func RecordSourceFailure(source, reason string) {
	DefaultMetrics.SourceFailures.WithLabelValues(source, reason).Inc()
}

// RecordCommit records the outcome of one normalization commit.
func RecordCommit(committed, dropped int) {
	DefaultMetrics.ObservationsCommitted.Add(float64(committed))
	DefaultMetrics.RecordsDropped.Add(float64(dropped))
}

// RecordParseSkips records malformed entries skipped inside a payload.
func RecordParseSkips(source string, count int) {
	DefaultMetrics.ParseSkips.WithLabelValues(source).Add(float64(count))
}

// RecordAggregationPass records the latency of a full aggregation pass.
func RecordAggregationPass(seconds float64) {
	DefaultMetrics.AggregationDuration.Observe(seconds)
}

// RecordModelTrained records one completed training run.
func RecordModelTrained(seconds float64) {
	DefaultMetrics.ModelsTrained.Inc()
	DefaultMetrics.TrainingDuration.Observe(seconds)
}

// RecordPrediction records one prediction request outcome.
func RecordPrediction(insufficient bool) {
	if insufficient {
		DefaultMetrics.InsufficientData.Inc()
		return
	}
	DefaultMetrics.PredictionsServed.Inc()
}

// RecordDealQuery increments the deal query counter.
func RecordDealQuery() {
	DefaultMetrics.DealQueries.Inc()
}

// RecordRefreshPass records one scheduler pass.
func RecordRefreshPass(status string, products int) {
	DefaultMetrics.RefreshPasses.WithLabelValues(status).Inc()
	if status == "ok" {
		DefaultMetrics.ProductsRefreshed.Add(float64(products))
	}
}

// SetLastSuccessfulRefresh updates the last successful refresh gauge.
func SetLastSuccessfulRefresh(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulRefresh.Set(unixSeconds)
}
