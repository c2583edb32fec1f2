// Package metrics exposes prometheus instrumentation for the rate limiter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetrics holds the limiter's prometheus collectors. One instance
// is shared by every middleware; per-limiter series are split by label so
// that registering twice is never necessary.
type RateLimitMetrics struct {
	requestsTotal  *prometheus.CounterVec
	cooldownsTotal *prometheus.CounterVec
}

// NewRateLimitMetrics creates the collectors and registers them with reg.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	m := &RateLimitMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_requests_total",
			Help: "Admission checks by limiter and outcome (allowed, denied, skipped, error)",
		}, []string{"limiter", "outcome"}),
		cooldownsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_cooldowns_total",
			Help: "Number of times an identifier entered cooldown, by limiter",
		}, []string{"limiter"}),
	}
	reg.MustRegister(m.requestsTotal, m.cooldownsTotal)
	return m
}

// RecordRequest counts one admission check outcome.
func (m *RateLimitMetrics) RecordRequest(limiter string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.requestsTotal.WithLabelValues(limiter, outcome).Inc()
}

// RecordSkipped counts a request that bypassed limiting entirely.
func (m *RateLimitMetrics) RecordSkipped(limiter string) {
	m.requestsTotal.WithLabelValues(limiter, "skipped").Inc()
}

// RecordError counts a request denied because the admission check failed.
func (m *RateLimitMetrics) RecordError(limiter string) {
	m.requestsTotal.WithLabelValues(limiter, "error").Inc()
}

// RecordCooldown counts an identifier entering cooldown.
func (m *RateLimitMetrics) RecordCooldown(limiter string) {
	m.cooldownsTotal.WithLabelValues(limiter).Inc()
}
