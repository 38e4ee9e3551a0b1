// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	eventsApplied *prometheus.CounterVec
	eventsDropped prometheus.Counter
	liveViews     prometheus.Gauge
	submissions   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_response_events_applied_total",
			Help: "Change events applied to live views, by kind.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_response_events_dropped_total",
			Help: "Malformed change events dropped by live views.",
		}),
		liveViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_response_views",
			Help: "Open live dashboard views.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_response_submissions_total",
			Help: "Submitted responses, by question type.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.eventsApplied,
		m.eventsDropped,
		m.liveViews,
		m.submissions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) EventApplied(kind string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) ViewOpened() {
	if m == nil {
		return
	}
	m.liveViews.Inc()
}

func (m *Metrics) ViewClosed() {
	if m == nil {
		return
	}
	m.liveViews.Dec()
}

func (m *Metrics) Submitted(questionType string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(questionType).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
