// Package metrics exposes Prometheus metrics for sync passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass describes one finished sync pass.
type Pass struct {
	// FailedPhase is empty when the pass succeeded.
	FailedPhase string
	Duration    time.Duration
	Pushed      int
	PushFailed  int
	Pulled      int
	Inserted    int
	Pruned      int
}

// SyncMetrics contains Prometheus metrics for the sync engine.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	registry *prometheus.Registry

	passesTotal  *prometheus.CounterVec
	actionsTotal *prometheus.CounterVec
	passDuration prometheus.Histogram
	notesGauge   prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

// NewSyncMetrics creates the sync metrics and registers them on registry.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{
		registry: registry,
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notesync_passes_total",
				Help: "Total number of full sync passes",
			},
			[]string{"status", "phase"}, // status: success, error
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notesync_actions_total",
				Help: "Notes reconciled by sync passes",
			},
			[]string{"action"}, // push, push_failed, pull, insert, prune
		),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notesync_pass_duration_seconds",
			Help:    "Time taken by a full sync pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		notesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notesync_notes",
			Help: "Number of notes in the local index",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notesync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync pass",
		}),
	}
	for _, c := range []prometheus.Collector{m.passesTotal, m.actionsTotal, m.passDuration, m.notesGauge, m.lastSuccess} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObservePass records the outcome of one sync pass.
func (m *SyncMetrics) ObservePass(p Pass) {
	if m == nil {
		return
	}
	status, phase := "success", "none"
	if p.FailedPhase != "" {
		status, phase = "error", p.FailedPhase
	}
	m.passesTotal.WithLabelValues(status, phase).Inc()
	m.passDuration.Observe(p.Duration.Seconds())
	m.actionsTotal.WithLabelValues("push").Add(float64(p.Pushed))
	m.actionsTotal.WithLabelValues("push_failed").Add(float64(p.PushFailed))
	m.actionsTotal.WithLabelValues("pull").Add(float64(p.Pulled))
	m.actionsTotal.WithLabelValues("insert").Add(float64(p.Inserted))
	m.actionsTotal.WithLabelValues("prune").Add(float64(p.Pruned))
	if p.FailedPhase == "" {
		m.lastSuccess.SetToCurrentTime()
	}
}

// SetNotes records the current size of the note index.
func (m *SyncMetrics) SetNotes(n int) {
	if m == nil {
		return
	}
	m.notesGauge.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
