// Package metrics provides Prometheus metrics for the guard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the guard.
type Metrics struct {
	ActionDelay       prometheus.Histogram
	SignalsTotal      *prometheus.CounterVec
	AlertLevel        prometheus.Gauge
	CooldownActive    prometheus.Gauge
	WarningCount      prometheus.Gauge
	DecisionsTotal    *prometheus.CounterVec
	ResponsesTotal    *prometheus.CounterVec
	NotifyErrorsTotal prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ActionDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "guard_action_delay_seconds",
				Help:    "Computed delay before the next action.",
				Buckets: []float64{15, 30, 45, 60, 90, 120, 180, 300, 600},
			},
		),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guard_signals_total",
				Help: "Detection signals by tier and severity.",
			},
			[]string{"tier", "level"},
		),
		AlertLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guard_alert_level",
				Help: "Aggregate alert level of the latest scan (0=none .. 4=critical).",
			},
		),
		CooldownActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guard_cooldown_active",
				Help: "1 while a cooldown is in effect.",
			},
		),
		WarningCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guard_warning_count",
				Help: "Cumulative platform warnings recorded for the account.",
			},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guard_decisions_total",
				Help: "Action permission decisions by action kind and result.",
			},
			[]string{"kind", "result"},
		),
		ResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guard_responses_total",
				Help: "Responses executed by alert level.",
			},
			[]string{"level"},
		),
		NotifyErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "guard_notify_errors_total",
				Help: "Alert deliveries that failed.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guard_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guard_api_request_duration_seconds",
				Help:    "API request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ActionDelay)
	reg.MustRegister(m.SignalsTotal)
	reg.MustRegister(m.AlertLevel)
	reg.MustRegister(m.CooldownActive)
	reg.MustRegister(m.WarningCount)
	reg.MustRegister(m.DecisionsTotal)
	reg.MustRegister(m.ResponsesTotal)
	reg.MustRegister(m.NotifyErrorsTotal)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.RequestDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry (tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDelay records a computed action delay.
func (m *Metrics) ObserveDelay(seconds float64) {
	m.ActionDelay.Observe(seconds)
}

// RecordSignal increments the signal counter.
func (m *Metrics) RecordSignal(tier, level string) {
	m.SignalsTotal.WithLabelValues(tier, level).Inc()
}

// SetAlertLevel sets the aggregate level gauge.
func (m *Metrics) SetAlertLevel(level int) {
	m.AlertLevel.Set(float64(level))
}

// SetCooldown updates the cooldown gauges.
func (m *Metrics) SetCooldown(active bool, warnings int) {
	v := 0.0
	if active {
		v = 1
	}
	m.CooldownActive.Set(v)
	m.WarningCount.Set(float64(warnings))
}

// RecordDecision increments the decision counter.
func (m *Metrics) RecordDecision(kind string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.DecisionsTotal.WithLabelValues(kind, result).Inc()
}

// RecordResponse increments the response counter.
func (m *Metrics) RecordResponse(level string) {
	m.ResponsesTotal.WithLabelValues(level).Inc()
}

// RecordNotifyError increments the notification failure counter.
func (m *Metrics) RecordNotifyError() {
	m.NotifyErrorsTotal.Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveDuration records API request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
