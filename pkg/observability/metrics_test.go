package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveExchange(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveExchange("success", 10*time.Millisecond)
	m.ObserveExchange("forbidden", time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("forbidden")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TokensMinted))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveIdPRequest("ok", time.Millisecond)
	m.IncAuditFailure()
	m.IncLastLoginFailure()
	m.IncLastLoginFailure()
	m.IncRateLimited("memory")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IdPRequestsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditFailuresTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LastLoginFailuresTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("memory")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExchange("success", time.Second)
		m.ObserveIdPRequest("error", time.Second)
		m.IncAuditFailure()
		m.IncLastLoginFailure()
		m.IncRateLimited("redis")
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/oidc", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/auth/oidc", "401")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.IncAuditFailure()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "oidc_gateway_audit_failures_total 1"))
}
