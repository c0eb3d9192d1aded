// Package metrics provides Prometheus metrics for the capture pipeline and
// the classification transports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus collectors for scan operations. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	captureCyclesTotal     *prometheus.CounterVec
	transportAttemptsTotal *prometheus.CounterVec
	classifyDuration       prometheus.Histogram
	scanSavesTotal         *prometheus.CounterVec
	activeSessions         prometheus.Gauge
}

// New creates and registers the metrics on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.captureCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avotex_capture_cycles_total",
			Help: "Total number of capture cycles by outcome",
		},
		[]string{"outcome"}, // outcome: succeeded, failed, skipped
	)

	m.transportAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avotex_transport_attempts_total",
			Help: "Total number of classifier submissions by transport and status",
		},
		[]string{"transport", "status"}, // status: ok, error, invalid
	)

	m.classifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "avotex_classify_duration_seconds",
			Help: "Time taken to obtain a prediction across all transports",
			// 50ms to ~50s
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 11),
		},
	)

	m.scanSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avotex_scan_saves_total",
			Help: "Total number of scan persistence attempts by status",
		},
		[]string{"status"}, // status: success, error, skipped
	)

	m.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avotex_active_sessions",
			Help: "Number of connected websocket sessions",
		},
	)
}

// Registry returns the registry the metrics were registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Describe implements the prometheus.Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.captureCyclesTotal.Describe(ch)
	m.transportAttemptsTotal.Describe(ch)
	m.classifyDuration.Describe(ch)
	m.scanSavesTotal.Describe(ch)
	m.activeSessions.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.captureCyclesTotal.Collect(ch)
	m.transportAttemptsTotal.Collect(ch)
	m.classifyDuration.Collect(ch)
	m.scanSavesTotal.Collect(ch)
	m.activeSessions.Collect(ch)
}

// CaptureCycle records the outcome of one capture cycle.
func (m *Metrics) CaptureCycle(outcome string) {
	if m == nil {
		return
	}
	m.captureCyclesTotal.WithLabelValues(outcome).Inc()
}

// TransportAttempt records one classifier submission.
func (m *Metrics) TransportAttempt(transport, status string) {
	if m == nil {
		return
	}
	m.transportAttemptsTotal.WithLabelValues(transport, status).Inc()
}

// ClassifyDuration records how long a classification took.
func (m *Metrics) ClassifyDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.classifyDuration.Observe(d.Seconds())
}

// ScanSave records a persistence attempt.
func (m *Metrics) ScanSave(status string) {
	if m == nil {
		return
	}
	m.scanSavesTotal.WithLabelValues(status).Inc()
}

// SessionOpened and SessionClosed track connected clients.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
