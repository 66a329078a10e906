package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"arc-framework/dbboot/internal/extension"
)

// Metrics holds the Prometheus collectors for bootstrap runs. A nil *Metrics
// records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
	lockWait  prometheus.Histogram
	reindexes *prometheus.CounterVec
	upgrades  *prometheus.CounterVec
}

// NewMetrics creates the bootstrap collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbboot_bootstrap_runs_total",
			Help: "Bootstrap attempts by outcome and failed phase.",
		}, []string{"status", "phase"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbboot_bootstrap_duration_seconds",
			Help:    "Wall time of a bootstrap attempt, lock wait included.",
			Buckets: buckets,
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbboot_lock_wait_seconds",
			Help:    "Time spent waiting for the migration lock.",
			Buckets: buckets,
		}),
		reindexes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbboot_reindex_total",
			Help: "Vector indexes rebuilt during bootstrap.",
		}, []string{"index"}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbboot_extension_upgrades_total",
			Help: "Automatic extension upgrade attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.runs, m.duration, m.lockWait, m.reindexes, m.upgrades)
	return m
}

func (m *Metrics) observeRun(res *BootstrapResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(res.Status, string(res.FailedPhase)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) observeReindex(index extension.Index) {
	if m == nil {
		return
	}
	m.reindexes.WithLabelValues(string(index)).Inc()
}

func (m *Metrics) observeUpgrade(result string) {
	if m == nil {
		return
	}
	m.upgrades.WithLabelValues(result).Inc()
}
