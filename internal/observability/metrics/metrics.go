package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuthMetrics exposes counters/histograms for the auth and route-gate flows.
type AuthMetrics struct {
	signInTotal     *prometheus.CounterVec
	guardTotal      *prometheus.CounterVec
	callbackLatency *prometheus.HistogramVec
	sessionInits    *prometheus.CounterVec
}

func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		signInTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carelink",
			Subsystem: "auth",
			Name:      "sign_in_total",
			Help:      "Total sign-in attempts by flow and outcome",
		}, []string{"flow", "status"}),
		guardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carelink",
			Subsystem: "auth",
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by outcome",
		}, []string{"decision"}),
		callbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carelink",
			Subsystem: "auth",
			Name:      "callback_latency_seconds",
			Help:      "Latency of OAuth callback processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		sessionInits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carelink",
			Subsystem: "auth",
			Name:      "session_init_total",
			Help:      "Session initializer outcomes",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.signInTotal, m.guardTotal, m.callbackLatency, m.sessionInits)
	return m
}

func (m *AuthMetrics) ObserveSignIn(flow, status string) {
	if m == nil {
		return
	}
	m.signInTotal.WithLabelValues(flow, status).Inc()
}

func (m *AuthMetrics) ObserveGuard(decision string) {
	if m == nil {
		return
	}
	m.guardTotal.WithLabelValues(decision).Inc()
}

func (m *AuthMetrics) ObserveCallbackLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.callbackLatency.WithLabelValues(status).Observe(seconds)
}

func (m *AuthMetrics) ObserveSessionInit(outcome string) {
	if m == nil {
		return
	}
	m.sessionInits.WithLabelValues(outcome).Inc()
}
