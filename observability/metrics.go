package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type governanceMetrics struct {
	evaluations    *prometheus.CounterVec
	evalLatency    *prometheus.HistogramVec
	trustChecks    *prometheus.CounterVec
	budgetChecks   *prometheus.CounterVec
	consentChecks  *prometheus.CounterVec
	chainAppends   prometheus.Counter
	chainTamper    prometheus.Counter
	auditRecords   prometheus.Counter
	envelopeSpent  *prometheus.GaugeVec
	envelopeLimit  *prometheus.GaugeVec
	decayEvents    *prometheus.CounterVec
}

var (
	governanceOnce sync.Once
	governanceReg  *governanceMetrics
)

// Governance returns the lazily-initialised metrics registry used by the
// governance engine and its collaborators.
func Governance() *governanceMetrics {
	governanceOnce.Do(func() {
		governanceReg = &governanceMetrics{
			evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "governance",
				Name:      "evaluations_total",
				Help:      "Total evaluations processed by the governance engine, segmented by outcome.",
			}, []string{"outcome"}),
			evalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "trustgate",
				Subsystem: "governance",
				Name:      "evaluation_duration_seconds",
				Help:      "Latency distribution for a full governance evaluation pipeline run.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			trustChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "trust",
				Name:      "checks_total",
				Help:      "Total trust-level checks segmented by permitted/denied.",
			}, []string{"result"}),
			budgetChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "budget",
				Name:      "checks_total",
				Help:      "Total budget checks segmented by category and reason.",
			}, []string{"category", "reason"}),
			consentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "consent",
				Name:      "checks_total",
				Help:      "Total consent checks segmented by granted/denied.",
			}, []string{"result"}),
			chainAppends: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "audit",
				Name:      "chain_appends_total",
				Help:      "Total records appended to the hash chain.",
			}),
			chainTamper: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "audit",
				Name:      "chain_verify_failures_total",
				Help:      "Total chain verification runs that reported a broken link.",
			}),
			auditRecords: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "audit",
				Name:      "records_total",
				Help:      "Total audit records persisted to the store.",
			}),
			envelopeSpent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "trustgate",
				Subsystem: "budget",
				Name:      "envelope_spent",
				Help:      "Current spent amount per budget category for the active period.",
			}, []string{"category"}),
			envelopeLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "trustgate",
				Subsystem: "budget",
				Name:      "envelope_limit",
				Help:      "Configured limit per budget category for the active period.",
			}, []string{"category"}),
			decayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustgate",
				Subsystem: "trust",
				Name:      "decay_events_total",
				Help:      "Total trust-decay history entries recorded, segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			governanceReg.evaluations,
			governanceReg.evalLatency,
			governanceReg.trustChecks,
			governanceReg.budgetChecks,
			governanceReg.consentChecks,
			governanceReg.chainAppends,
			governanceReg.chainTamper,
			governanceReg.auditRecords,
			governanceReg.envelopeSpent,
			governanceReg.envelopeLimit,
			governanceReg.decayEvents,
		)
	})
	return governanceReg
}

// ObserveEvaluation records the outcome and latency of one engine evaluation.
func (m *governanceMetrics) ObserveEvaluation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	outcome = normalizeLabel(outcome, "unknown")
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evalLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTrustCheck increments the trust-check counter for permitted/denied.
func (m *governanceMetrics) RecordTrustCheck(permitted bool) {
	if m == nil {
		return
	}
	m.trustChecks.WithLabelValues(resultLabel(permitted)).Inc()
}

// RecordBudgetCheck increments the budget-check counter for a category and reason.
func (m *governanceMetrics) RecordBudgetCheck(category, reason string) {
	if m == nil {
		return
	}
	m.budgetChecks.WithLabelValues(normalizeLabel(category, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordConsentCheck increments the consent-check counter for granted/denied.
func (m *governanceMetrics) RecordConsentCheck(granted bool) {
	if m == nil {
		return
	}
	m.consentChecks.WithLabelValues(resultLabel(granted)).Inc()
}

// RecordChainAppend increments the hash-chain append counter.
func (m *governanceMetrics) RecordChainAppend() {
	if m == nil {
		return
	}
	m.chainAppends.Inc()
	m.auditRecords.Inc()
}

// RecordChainTamper increments the counter tracking detected chain breaks.
func (m *governanceMetrics) RecordChainTamper() {
	if m == nil {
		return
	}
	m.chainTamper.Inc()
}

// SetEnvelopeGauges updates the spent/limit gauges for a budget category.
func (m *governanceMetrics) SetEnvelopeGauges(category string, spent, limit float64) {
	if m == nil {
		return
	}
	label := normalizeLabel(category, "unknown")
	m.envelopeSpent.WithLabelValues(label).Set(spent)
	m.envelopeLimit.WithLabelValues(label).Set(limit)
}

// RecordDecayEvent increments the decay-history counter for a decay kind.
func (m *governanceMetrics) RecordDecayEvent(kind string) {
	if m == nil {
		return
	}
	m.decayEvents.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "permitted"
	}
	return "denied"
}

func normalizeLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
