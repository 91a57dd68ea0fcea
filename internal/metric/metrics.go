package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the assembler's pipeline instrumentation.
type Metrics struct {
	MappingsLoaded   *prometheus.CounterVec
	MappingsInferred prometheus.Counter
	MappingsFiltered *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	InferenceRounds  prometheus.Histogram
	SourceFailures   *prometheus.CounterVec
}

// NewMetrics creates the metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		MappingsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sma",
				Subsystem: "pipeline",
				Name:      "mappings_loaded_total",
				Help:      "Mappings loaded from configured sources",
			},
			[]string{"source_kind"},
		),
		MappingsInferred: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sma",
				Subsystem: "pipeline",
				Name:      "mappings_inferred_total",
				Help:      "Mappings produced by inference rules",
			},
		),
		MappingsFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sma",
				Subsystem: "pipeline",
				Name:      "mappings_filtered_total",
				Help:      "Mappings dropped by filters",
			},
			[]string{"filter"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sma",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration per pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"stage"},
		),
		InferenceRounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sma",
				Subsystem: "inference",
				Name:      "rounds",
				Help:      "Inference rounds executed per run",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		SourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sma",
				Subsystem: "sources",
				Name:      "failures_total",
				Help:      "Source adapter failures by error code",
			},
			[]string{"code"},
		),
	}
}

// Register registers every metric with a registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.MappingsLoaded,
		m.MappingsInferred,
		m.MappingsFiltered,
		m.StageDuration,
		m.InferenceRounds,
		m.SourceFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
