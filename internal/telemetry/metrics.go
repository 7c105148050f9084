package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the coach's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	guardDecisions   *prometheus.CounterVec
	guardIssues      *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	generation       *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	rateLimited      prometheus.Counter
	breakerState     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach",
			Name:      "guard_decisions_total",
			Help:      "Guard decisions by action.",
		}, []string{"action"}),
		guardIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach",
			Name:      "guard_issues_total",
			Help:      "Guard issues raised, by issue.",
		}, []string{"issue"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach",
			Name:      "stage_transitions_total",
			Help:      "Resolved stage changes.",
		}, []string{"from", "to"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coach",
			Name:      "generation_duration_seconds",
			Help:      "Latency of text generation calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach",
			Name:      "fallback_replies_total",
			Help:      "Canned fallback replies sent after a generation failure, by error type.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coach",
			Name:      "rate_limited_total",
			Help:      "Messages rejected by the per-user rate limiter.",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coach",
			Name:      "generator_circuit_open",
			Help:      "1 while the generator circuit breaker is open.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.guardDecisions, m.guardIssues, m.stageTransitions, m.generation,
		m.fallbacks, m.rateLimited, m.breakerState,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// GuardDecision counts one guard verdict and its issues.
func (m *Metrics) GuardDecision(action string, issues []string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(action).Inc()
	for _, issue := range issues {
		m.guardIssues.WithLabelValues(issue).Inc()
	}
}

// StageTransition counts a stage change. Equal stages are ignored.
func (m *Metrics) StageTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.stageTransitions.WithLabelValues(from, to).Inc()
}

// Generation observes one generator call.
func (m *Metrics) Generation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.generation.WithLabelValues(outcome).Observe(d.Seconds())
}

// Fallback counts a fallback reply.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// RateLimited counts a rate-limited message.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// BreakerOpen records the circuit breaker state.
func (m *Metrics) BreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
		return
	}
	m.breakerState.Set(0)
}
