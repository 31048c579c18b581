package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(nil)
	m.Login(OutcomeFailure)
	m.Login(OutcomeFailure)
	m.Login(OutcomeSuccess)
	m.Lockout()
	m.GuardRejected("role")
	m.Purged(3)
	m.Purged(0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(OutcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Lockouts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues("role")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.TokensPurged))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Login(OutcomeSuccess)
		m.Token("issued")
		m.Lockout()
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New(nil)
	m.Token("rotated")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `iam_refresh_tokens_total{result="rotated"} 1`)
}
