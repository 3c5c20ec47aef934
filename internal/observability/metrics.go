// Package observability exposes the host's prometheus metrics on a private
// registry. The embedded build records metrics but never serves them; the
// standalone binary exposes the registry over HTTP when configured.
//
// Realtime code does not touch prometheus directly. The audio thread bumps
// plain atomic counters; the idle thread folds them into the registry.
package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metric families of one engine instance.
type Metrics struct {
	registry *prometheus.Registry

	CycleDuration   prometheus.Histogram
	Xruns           prometheus.Counter
	BridgeTimeouts  prometheus.Counter
	BridgeCrashes   prometheus.Counter
	RingOverflows   prometheus.Counter
	ActivePlugins   prometheus.Gauge
	UICommandErrors prometheus.Counter

	// RT-side counters, folded into the prometheus counters on idle.
	rtXruns         atomic.Uint64
	rtRingOverflows atomic.Uint64
	foldedXruns     uint64
	foldedOverflows uint64
}

// NewMetrics creates the metric families and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rackbay",
			Name:      "cycle_duration_seconds",
			Help:      "Audio cycle processing duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Xruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rackbay",
			Name:      "xruns_total",
			Help:      "Cycles that overran their deadline or were silenced.",
		}),
		BridgeTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rackbay",
			Name:      "bridge_timeouts_total",
			Help:      "Bridge client semaphore waits that expired.",
		}),
		BridgeCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rackbay",
			Name:      "bridge_crashes_total",
			Help:      "Bridge worker processes that died unexpectedly.",
		}),
		RingOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rackbay",
			Name:      "ring_overflows_total",
			Help:      "Ring buffer frames dropped for lack of space.",
		}),
		ActivePlugins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rackbay",
			Name:      "active_plugins",
			Help:      "Plugins currently active in the engine.",
		}),
		UICommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rackbay",
			Name:      "ui_command_errors_total",
			Help:      "UI pipe commands that failed.",
		}),
	}

	m.registry.MustRegister(
		m.CycleDuration, m.Xruns, m.BridgeTimeouts, m.BridgeCrashes,
		m.RingOverflows, m.ActivePlugins, m.UICommandErrors,
	)
	return m
}

// Registry returns the private registry for HTTP exposure.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RTXrun records an xrun from the audio thread. Allocation free.
func (m *Metrics) RTXrun() {
	m.rtXruns.Add(1)
}

// RTRingOverflow records a dropped ring frame from the audio thread.
func (m *Metrics) RTRingOverflow() {
	m.rtRingOverflows.Add(1)
}

// RTXrunCount reads the RT-side xrun counter.
func (m *Metrics) RTXrunCount() uint64 {
	return m.rtXruns.Load()
}

// FoldRT moves the RT-side counters into the prometheus families. Called
// from the idle thread.
func (m *Metrics) FoldRT() {
	if v := m.rtXruns.Load(); v > m.foldedXruns {
		m.Xruns.Add(float64(v - m.foldedXruns))
		m.foldedXruns = v
	}
	if v := m.rtRingOverflows.Load(); v > m.foldedOverflows {
		m.RingOverflows.Add(float64(v - m.foldedOverflows))
		m.foldedOverflows = v
	}
}
