package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Token exchange metrics
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration prometheus.Histogram
	TokensMinted     prometheus.Counter

	// Identity provider metrics
	IdPRequestsTotal   *prometheus.CounterVec
	IdPRequestDuration prometheus.Histogram

	// Side effects that are allowed to fail
	AuditFailuresTotal     prometheus.Counter
	LastLoginFailuresTotal prometheus.Counter

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oidc_gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oidc_gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oidc_gateway_exchanges_total",
				Help: "Token exchanges by outcome",
			},
			[]string{"outcome"},
		),
		ExchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oidc_gateway_exchange_duration_seconds",
				Help:    "End to end token exchange duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		TokensMinted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oidc_gateway_tokens_minted_total",
				Help: "Session tokens issued",
			},
		),

		IdPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oidc_gateway_idp_requests_total",
				Help: "Userinfo requests sent to the identity provider",
			},
			[]string{"status"},
		),
		IdPRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oidc_gateway_idp_request_duration_seconds",
				Help:    "Userinfo request duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		AuditFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oidc_gateway_audit_failures_total",
				Help: "Audit events that could not be recorded",
			},
		),
		LastLoginFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oidc_gateway_last_login_failures_total",
				Help: "Last-login updates that failed",
			},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oidc_gateway_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ExchangesTotal,
		m.ExchangeDuration,
		m.TokensMinted,
		m.IdPRequestsTotal,
		m.IdPRequestDuration,
		m.AuditFailuresTotal,
		m.LastLoginFailuresTotal,
		m.RateLimitedTotal,
	)

	return m
}

// ObserveIdPRequest records one userinfo round trip
func (m *Metrics) ObserveIdPRequest(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.IdPRequestsTotal.WithLabelValues(status).Inc()
	m.IdPRequestDuration.Observe(duration.Seconds())
}

// ObserveExchange records the outcome of one exchange
func (m *Metrics) ObserveExchange(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
	m.ExchangeDuration.Observe(duration.Seconds())
	if outcome == "success" {
		m.TokensMinted.Inc()
	}
}

// IncAuditFailure counts a failed audit emission
func (m *Metrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.Inc()
}

// IncLastLoginFailure counts a failed last-login update
func (m *Metrics) IncLastLoginFailure() {
	if m == nil {
		return
	}
	m.LastLoginFailuresTotal.Inc()
}

// IncRateLimited counts a request rejected by the named limiter
func (m *Metrics) IncRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
