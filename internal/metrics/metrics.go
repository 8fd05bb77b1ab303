// Package metrics exposes Prometheus collectors for sync runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	blocks   prometheus.Gauge
	sessions prometheus.Gauge
	probes   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confsync_sync_runs_total",
			Help: "Sync runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "confsync_sync_duration_seconds",
			Help:    "Wall time of completed sync runs.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		blocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confsync_blocks",
			Help: "Blocks written by the last successful run.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confsync_sessions",
			Help: "Sessions written by the last successful run.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confsync_meeting_probes_total",
			Help: "Agenda availability probes by result.",
		}, []string{"available"}),
	}
	m.registry.MustRegister(m.runs, m.duration, m.blocks, m.sessions, m.probes)
	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration, blocks, sessions int) {
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if outcome == "success" {
		m.blocks.Set(float64(blocks))
		m.sessions.Set(float64(sessions))
	}
}

// ObserveProbe records one availability probe.
func (m *Metrics) ObserveProbe(_ string, available bool) {
	m.probes.WithLabelValues(strconv.FormatBool(available)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
