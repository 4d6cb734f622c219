package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts checkout and webhook outcomes.
type SettlementMetrics struct {
	checkouts        *prometheus.CounterVec
	conflictRetries  *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	internalFailures *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement collectors on reg. A nil
// registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_checkouts_total",
		Help: "Checkout attempts by payment path and result.",
	}, []string{"path", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_conflict_retries_total",
		Help: "Transactions re-executed after a transient storage conflict.",
	}, []string{"path"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_webhook_events_total",
		Help: "Gateway events by type and reconciliation status.",
	}, []string{"event_type", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_internal_failures_total",
		Help: "Swallowed settlement failures by source and kind.",
	}, []string{"source", "kind"})
	reg.MustRegister(checkouts, retries, webhooks, failures)
	return &SettlementMetrics{
		checkouts:        checkouts,
		conflictRetries:  retries,
		webhookEvents:    webhooks,
		internalFailures: failures,
	}
}

// IncCheckout records one checkout outcome, e.g. ("cod", "success").
func (m *SettlementMetrics) IncCheckout(path, result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(labelValue(path), labelValue(result)).Inc()
}

func (m *SettlementMetrics) IncConflictRetry(path string) {
	if m == nil || m.conflictRetries == nil {
		return
	}
	m.conflictRetries.WithLabelValues(labelValue(path)).Inc()
}

func (m *SettlementMetrics) IncWebhookEvent(eventType, status string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(labelValue(eventType), labelValue(status)).Inc()
}

func (m *SettlementMetrics) IncInternalFailure(source, kind string) {
	if m == nil || m.internalFailures == nil {
		return
	}
	m.internalFailures.WithLabelValues(labelValue(source), labelValue(kind)).Inc()
}
