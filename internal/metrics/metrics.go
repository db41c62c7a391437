package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every series.
type Config struct {
	ServiceName string
	Environment string
}

// LedgerMetrics captures transition and mirror health. A nil *LedgerMetrics is a no-op.
type LedgerMetrics struct {
	transitions    *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	conflicts      prometheus.Counter
	duration       *prometheus.HistogramVec
	mirrorAttempts *prometheus.CounterVec
	mirrorLag      prometheus.Histogram
}

// New registers ledger metrics on registerer (DefaultRegisterer when nil).
func New(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "supplychain-ledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &LedgerMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_transitions_total",
			Help:        "Accepted ledger transitions by action.",
			ConstLabels: constLabels,
		}, []string{"action"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_rejections_total",
			Help:        "Rejected ledger requests by operation and error kind.",
			ConstLabels: constLabels,
		}, []string{"operation", "kind"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_version_conflicts_total",
			Help:        "Lost compare-and-set races that were retried.",
			ConstLabels: constLabels,
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ledger_operation_duration_seconds",
			Help:        "Ledger write latency including the DB transaction.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		mirrorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_mirror_attempts_total",
			Help:        "External mirror append attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		mirrorLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ledger_mirror_lag_seconds",
			Help:        "Delay between a transition and its mirror append.",
			Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(m.transitions, m.rejections, m.conflicts, m.duration, m.mirrorAttempts, m.mirrorLag)
	return m
}

func (m *LedgerMetrics) TransitionAccepted(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

func (m *LedgerMetrics) Rejected(operation, kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, kind).Inc()
}

func (m *LedgerMetrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *LedgerMetrics) ObserveDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(seconds)
}

// MirrorAttempt records one outbox delivery; outcome is done, retry or dead.
func (m *LedgerMetrics) MirrorAttempt(outcome string) {
	if m == nil {
		return
	}
	m.mirrorAttempts.WithLabelValues(outcome).Inc()
}

func (m *LedgerMetrics) ObserveMirrorLag(seconds float64) {
	if m == nil {
		return
	}
	m.mirrorLag.Observe(seconds)
}
