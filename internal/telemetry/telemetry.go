// Package telemetry wires structured logging and Prometheus metrics for
// the daemon, grounded in the teacher's zap-based logger setup
// (paviko-rovo-bridge's internal/log package) and the pack's
// prometheus/client_golang usage (SPEC_FULL.md AMBIENT STACK).
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewLogger builds the daemon's zap logger. debug switches between the
// production and development encoder presets, mirroring the teacher's
// verbosity flag.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Metrics holds the daemon's Prometheus collectors (SPEC_FULL.md §4.7).
type Metrics struct {
	BundlesByPriority *prometheus.GaugeVec
	SchedulerPicks    *prometheus.CounterVec
	ViewTickDuration  *prometheus.HistogramVec
}

// NewMetrics registers the daemon's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BundlesByPriority: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bundlequeue_bundles_total",
			Help: "Number of registered bundles by priority.",
		}, []string{"priority"}),
		SchedulerPicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bundlequeue_scheduler_picks_total",
			Help: "Auto-search scheduler picks by outcome.",
		}, []string{"outcome"}),
		ViewTickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bundlequeue_view_tick_duration_seconds",
			Help:    "Wall time spent in one view controller tick.",
			Buckets: prometheus.DefBuckets,
		}, []string{"view"}),
	}
}

// ObserveTick records the duration of a single view tick.
func (m *Metrics) ObserveTick(view string, d time.Duration) {
	if m == nil {
		return
	}
	m.ViewTickDuration.WithLabelValues(view).Observe(d.Seconds())
}

// RecordPick records a scheduler outcome ("auto", "recent", or "none").
func (m *Metrics) RecordPick(outcome string) {
	if m == nil {
		return
	}
	m.SchedulerPicks.WithLabelValues(outcome).Inc()
}

// SetBundleCount reports the live bundle count for one priority band.
func (m *Metrics) SetBundleCount(priority string, count int) {
	if m == nil {
		return
	}
	m.BundlesByPriority.WithLabelValues(priority).Set(float64(count))
}

// Handler serves /metrics for a given registry (or the default one if reg
// is nil).
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
