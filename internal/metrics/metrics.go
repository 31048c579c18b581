// Package metrics exposes identity and access counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeLocked    = "locked"
	OutcomeInactive  = "inactive"
	OutcomeSuspended = "suspended"
)

type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	Lockouts        prometheus.Counter
	RefreshTokens   *prometheus.CounterVec
	GuardRejections *prometheus.CounterVec
	TokensPurged    prometheus.Counter
	SocketClients   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg gets a private registry,
// which keeps tests independent of the process-wide default.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iam_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iam_account_lockouts_total",
			Help: "Accounts locked after repeated failures.",
		}),
		RefreshTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iam_refresh_tokens_total",
			Help: "Refresh token operations by result.",
		}, []string{"result"}),
		GuardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iam_guard_rejections_total",
			Help: "Mutations rejected by the system entity guard.",
		}, []string{"entity"}),
		TokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iam_refresh_tokens_purged_total",
			Help: "Expired refresh tokens removed by the janitor.",
		}),
		SocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iam_websocket_clients",
			Help: "Connected back office websocket clients.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.LoginAttempts, m.Lockouts, m.RefreshTokens, m.GuardRejections, m.TokensPurged, m.SocketClients)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) Token(result string) {
	if m == nil {
		return
	}
	m.RefreshTokens.WithLabelValues(result).Inc()
}

// Tokens counts n refresh token operations at once.
func (m *Metrics) Tokens(result string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RefreshTokens.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) GuardRejected(entity string) {
	if m == nil {
		return
	}
	m.GuardRejections.WithLabelValues(entity).Inc()
}

func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensPurged.Add(float64(n))
}

func (m *Metrics) SocketConnected(delta int) {
	if m == nil {
		return
	}
	m.SocketClients.Add(float64(delta))
}
