// Package metrics exposes prometheus counters for account operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const OutcomeOK = "ok"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	OperationsTotal           *prometheus.CounterVec
	TokensIssuedTotal         *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	SessionsCreatedTotal      prometheus.Counter
	ServiceKeyChecksTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_operations_total",
				Help: "Total number of account operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_tokens_issued_total",
				Help: "Total number of single-use tokens issued by purpose",
			},
			[]string{"purpose"},
		),
		NotificationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_notification_failures_total",
				Help: "Total number of token notifications that could not be delivered",
			},
			[]string{"purpose"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "account_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		ServiceKeyChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_service_key_checks_total",
				Help: "Total number of service key checks by calling service, scope and outcome",
			},
			[]string{"service", "scope", "outcome"},
		),
	}

	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.TokensIssuedTotal)
	reg.MustRegister(m.NotificationFailuresTotal)
	reg.MustRegister(m.SessionsCreatedTotal)
	reg.MustRegister(m.ServiceKeyChecksTotal)

	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) TokenIssued(purpose string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(purpose).Inc()
}

func (m *Metrics) NotificationFailed(purpose string) {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.WithLabelValues(purpose).Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
}

// ServiceKeyChecked audits one key check. service is empty when the key was not recognized.
func (m *Metrics) ServiceKeyChecked(service, scope, outcome string) {
	if m == nil {
		return
	}
	if service == "" {
		service = "unknown"
	}
	m.ServiceKeyChecksTotal.WithLabelValues(service, scope, outcome).Inc()
}
