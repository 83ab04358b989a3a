package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// VerificationTotal counts verification calls against the backend by result.
	VerificationTotal *prometheus.CounterVec
	// ConfirmAttemptTotal counts confirmation attempts by path and result.
	ConfirmAttemptTotal *prometheus.CounterVec
	// OrchestratorOutcomeTotal counts terminal orchestrator outcomes per store.
	OrchestratorOutcomeTotal *prometheus.CounterVec
	// PollDuration records how long a poll loop ran before resolving, in milliseconds.
	PollDuration *prometheus.HistogramVec
	// PollAttempts records the number of verification calls a poll loop consumed.
	PollAttempts *prometheus.HistogramVec
	// ReconcileTotal counts background reconciliation runs by result.
	ReconcileTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout/order-creation outcomes.
	CheckoutTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		VerificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verification_total",
			Help:      "Count of payment verification calls by status.",
		}, []string{"status", "result"})
		ConfirmAttemptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirm_attempt_total",
			Help:      "Count of confirmation attempts by path (callback/reference) and result.",
		}, []string{"path", "result"})
		OrchestratorOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_orchestrator_outcome_total",
			Help:      "Terminal orchestrator outcomes by kind.",
		}, []string{"outcome", "store"})
		PollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_poll_duration_ms",
			Help:      "Duration of verification poll loops in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		}, []string{"result"})
		PollAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_poll_attempts",
			Help:      "Verification calls consumed per poll loop.",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15},
		}, []string{"result"})
		ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Background reconciliation runs by result.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkout order-creation outcomes.",
		}, []string{"mode", "result"})

		mustRegisterCollector(reg, VerificationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VerificationTotal = v
			}
		})
		mustRegisterCollector(reg, ConfirmAttemptTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ConfirmAttemptTotal = v
			}
		})
		mustRegisterCollector(reg, OrchestratorOutcomeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrchestratorOutcomeTotal = v
			}
		})
		mustRegisterCollector(reg, PollDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PollDuration = v
			}
		})
		mustRegisterCollector(reg, PollAttempts, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PollAttempts = v
			}
		})
		mustRegisterCollector(reg, ReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
