package obs

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PricingMetrics groups Prometheus collectors for cart pricing.
type PricingMetrics struct {
	Passes       *prometheus.CounterVec
	RuleOutcomes *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Consumed     *prometheus.CounterVec
}

// NewPricingMetrics registers and returns pricing collectors. Collectors
// already registered under the same name are reused.
func NewPricingMetrics(namespace string, reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PricingMetrics{
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_passes_total",
			Help:      "Count of cart pricing passes by operation and result.",
		}, []string{"operation", "result"}),
		RuleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_rule_outcomes_total",
			Help:      "Count of cart rules evaluated during pricing, by kind and whether they applied.",
		}, []string{"kind", "scope", "applied"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_duration_ms",
			Help:      "Latency of a pricing operation in milliseconds, collaborator lookups included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"operation"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_rule_consumptions_total",
			Help:      "Count of cart rule usage consumptions at checkout by result.",
		}, []string{"result"}),
	}
	m.Passes = registerCounter(reg, m.Passes)
	m.RuleOutcomes = registerCounter(reg, m.RuleOutcomes)
	m.Duration = registerHistogram(reg, m.Duration)
	m.Consumed = registerCounter(reg, m.Consumed)
	return m
}

// ObservePass records one pricing operation. A nil receiver is a no-op.
func (m *PricingMetrics) ObservePass(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Passes.WithLabelValues(operation, result).Inc()
	m.Duration.WithLabelValues(operation).Observe(DurationMillis(d))
}

// ObserveRule records one rule outcome. A nil receiver is a no-op.
func (m *PricingMetrics) ObserveRule(kind, scope string, applied bool) {
	if m == nil {
		return
	}
	m.RuleOutcomes.WithLabelValues(kind, scope, fmt.Sprint(applied)).Inc()
}

// ObserveConsumption records a checkout consumption attempt. A nil receiver
// is a no-op.
func (m *PricingMetrics) ObserveConsumption(result string) {
	if m == nil {
		return
	}
	m.Consumed.WithLabelValues(result).Inc()
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register counter: %w", err))
	}
	return c
}

func registerHistogram(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register histogram: %w", err))
	}
	return h
}
