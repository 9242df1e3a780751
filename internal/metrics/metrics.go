// Package metrics provides Prometheus metrics for the flow anomaly service.
// It covers the prediction path (volume, failures per stage, latency, score distribution),
// drift signals (unknown categories, dropped columns, feature mean shift) and the age of the
// bundle being served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Prediction metrics
	Predictions        prometheus.Counter     // Total number of successful predictions
	PredictionFailures *prometheus.CounterVec // Prediction failures by pipeline stage
	PredictionLatency  prometheus.Histogram   // End-to-end latency of one prediction
	PredictionScores   prometheus.Histogram   // Distribution of anomaly scores
	Anomalies          prometheus.Counter     // Predictions labelled anomalous

	// Drift metrics
	UnknownCategories *prometheus.CounterVec // Categorical values absent from the encoding table
	DroppedColumns    prometheus.Counter     // Extra input columns dropped by the assembler
	DriftScore        *prometheus.GaugeVec   // Window mean shift per feature, in training std units

	// Bundle and batch metrics
	BundleAge  prometheus.Gauge   // Age of the served bundle in seconds
	BatchRows  prometheus.Counter // Rows scored by batch inference
	HTTPErrors *prometheus.CounterVec
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "flow_predictions_total",
			Help: "Total number of flow predictions made",
		}),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_prediction_failures_total",
			Help: "Total number of failed predictions by pipeline stage",
		}, []string{"stage"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flow_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (transform and classify)",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flow_anomaly_scores",
			Help:    "Distribution of anomaly scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Anomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "flow_anomalies_total",
			Help: "Total number of flows predicted anomalous",
		}),
		UnknownCategories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_unknown_categories_total",
			Help: "Categorical values not seen during training, by column",
		}, []string{"column"}),
		DroppedColumns: factory.NewCounter(prometheus.CounterOpts{
			Name: "flow_dropped_columns_total",
			Help: "Input columns not in the feature schema that were dropped",
		}),
		DriftScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flow_feature_drift_score",
			Help: "Shift of the recent window mean from the training mean, in training standard deviations",
		}, []string{"column"}),
		BundleAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flow_bundle_age_seconds",
			Help: "Age of the served model bundle in seconds",
		}),
		BatchRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "flow_batch_rows_total",
			Help: "Total number of rows scored by batch inference",
		}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_http_errors_total",
			Help: "HTTP error responses by status code",
		}, []string{"code"}),
	}
}
