// Package metrics exports Prometheus collectors for generation and push runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ankiforge"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CardsGenerated    *prometheus.CounterVec
	LLMFailures       *prometheus.CounterVec
	Documents         *prometheus.CounterVec
	PushCards         *prometheus.CounterVec
	ConfiguredWorkers prometheus.Gauge
	PushSuccessRatio  prometheus.Gauge
	RunDuration       *prometheus.HistogramVec
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CardsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cards_generated_total",
				Help:      "Card drafts generated by strategy",
			},
			[]string{"strategy"},
		),
		LLMFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_failures_total",
				Help:      "Failed completion attempts by kind",
			},
			[]string{"kind"},
		),
		Documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_total",
				Help:      "Documents processed by outcome",
			},
			[]string{"status"},
		),
		PushCards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_cards_total",
				Help:      "Cards pushed to AnkiConnect by update mode and outcome",
			},
			[]string{"mode", "status"},
		),
		ConfiguredWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "configured_workers",
				Help:      "Worker count the next generation run starts with",
			},
		),
		PushSuccessRatio: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "push_success_ratio",
				Help:      "Succeeded/total ratio of the last push",
			},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_run_duration_seconds",
				Help:      "Generation run duration in seconds by final state",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"state"},
		),
	}
}

// RecordCards adds n generated drafts for strategy.
func (m *Metrics) RecordCards(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CardsGenerated.WithLabelValues(strategy).Add(float64(n))
}

// RecordLLMFailure counts one failed completion attempt.
func (m *Metrics) RecordLLMFailure(kind string) {
	if m == nil {
		return
	}
	m.LLMFailures.WithLabelValues(kind).Inc()
}

// RecordDocument counts one finished document.
func (m *Metrics) RecordDocument(status string) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(status).Inc()
}

// RecordRun observes a finished generation run.
func (m *Metrics) RecordRun(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(state).Observe(d.Seconds())
}

// SetConfiguredWorkers records the adaptive worker count.
func (m *Metrics) SetConfiguredWorkers(n int) {
	if m == nil {
		return
	}
	m.ConfiguredWorkers.Set(float64(n))
}

// RecordPush records the outcome counts of one push.
func (m *Metrics) RecordPush(mode string, succeeded, failed int, ratio float64) {
	if m == nil {
		return
	}
	m.PushCards.WithLabelValues(mode, "success").Add(float64(succeeded))
	m.PushCards.WithLabelValues(mode, "failure").Add(float64(failed))
	m.PushSuccessRatio.Set(ratio)
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
