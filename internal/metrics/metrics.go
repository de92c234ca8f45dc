// Package metrics содержит счётчики Prometheus сервиса платного доступа.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Значения меток событий вебхука.
const (
	KindPreCheckout = "pre_checkout"
	KindSettlement  = "settlement"
	KindUnknown     = "unknown"

	OutcomeApproved = "approved"
	OutcomeDeclined = "declined"
	OutcomeGranted  = "granted"
	OutcomeRejected = "rejected"
	OutcomeIgnored  = "ignored"
	OutcomeError    = "error"

	SourceWebhook = "webhook"
	SourceManual  = "manual"
)

// Metrics хранит счётчики сервиса. Методы безопасны для nil-получателя.
type Metrics struct {
	invoices      *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	authFailures  prometheus.Counter
	grants        *prometheus.CounterVec
}

// New создаёт счётчики и регистрирует их в registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paywall_invoices_created_total",
			Help: "Invoice creation attempts by result.",
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paywall_webhook_events_total",
			Help: "Webhook updates by kind and outcome.",
		}, []string{"kind", "outcome"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paywall_auth_failures_total",
			Help: "Rejected authentication envelopes.",
		}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paywall_entitlements_granted_total",
			Help: "Entitlement grants by source, including idempotent repeats.",
		}, []string{"source"}),
	}

	registerer.MustRegister(m.invoices, m.webhookEvents, m.authFailures, m.grants)

	return m
}

// InvoiceCreated учитывает попытку выставления счёта.
func (m *Metrics) InvoiceCreated(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.invoices.WithLabelValues(result).Inc()
}

// WebhookEvent учитывает обработанное обновление.
func (m *Metrics) WebhookEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// AuthFailure учитывает отклонённый конверт.
func (m *Metrics) AuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

// Granted учитывает выдачу права доступа.
func (m *Metrics) Granted(source string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(source).Inc()
}
