package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modguard/modguard/pkg/domain"
)

// PromMetrics holds the Prometheus collectors served by watch mode.
type PromMetrics struct {
	checksTotal     *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	lastViolations  prometheus.Gauge
	lastModules     prometheus.Gauge
	lastEdges       prometheus.Gauge
	configReloads   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPromMetrics creates a metrics instance with its own registry.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()

	m := &PromMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_checks_total",
				Help: "Total check runs by outcome",
			},
			[]string{"outcome"},
		),
		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_violations_total",
				Help: "Total violations by reason code",
			},
			[]string{"reason"},
		),
		lastViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modguard_last_check_violations",
			Help: "Violations found by the most recent check run",
		}),
		lastModules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modguard_last_check_modules",
			Help: "Modules evaluated by the most recent check run",
		}),
		lastEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modguard_last_check_edges",
			Help: "Edges evaluated by the most recent check run",
		}),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_config_reloads_total",
				Help: "Config reload attempts by status",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.checksTotal,
		m.violationsTotal,
		m.lastViolations,
		m.lastModules,
		m.lastEdges,
		m.configReloads,
	)
	return m
}

// ObserveReport records one finished check run.
func (m *PromMetrics) ObserveReport(rep *domain.CheckReport) {
	outcome := "clean"
	if !rep.Clean() {
		outcome = "violations"
	}
	m.checksTotal.WithLabelValues(outcome).Inc()
	for _, v := range rep.Violations {
		m.violationsTotal.WithLabelValues(string(v.Decision.Reason)).Inc()
	}
	m.lastViolations.Set(float64(len(rep.Violations)))
	m.lastModules.Set(float64(rep.Modules))
	m.lastEdges.Set(float64(rep.Edges))
}

// ObserveReload records a config reload attempt.
func (m *PromMetrics) ObserveReload(ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
