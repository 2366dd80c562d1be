package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instrumentation on its own registry so
// embedding hosts never collide with the default one.
type Metrics struct {
	registry *prometheus.Registry

	ValidationIssues *prometheus.CounterVec
	RecoveryResults  *prometheus.CounterVec
	CrashesRecorded  prometheus.Counter
	StartupChecks    *prometheus.CounterVec
	SafeModeActive   prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ValidationIssues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bootguard_validation_issues_total",
			Help: "Validation issues found, by category and severity",
		}, []string{"component", "severity"}),
		RecoveryResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bootguard_recovery_results_total",
			Help: "Recovery operation results, by action and outcome",
		}, []string{"action", "outcome"}),
		CrashesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "bootguard_crashes_recorded_total",
			Help: "Crash reports recorded in the analytics store",
		}),
		StartupChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bootguard_startup_checks_total",
			Help: "Startup checks run, by overall result",
		}, []string{"result"}),
		SafeModeActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bootguard_safe_mode_active",
			Help: "Whether safe mode is currently active (0 or 1)",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
