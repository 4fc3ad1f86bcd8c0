// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for the token gateway.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("login", "alice").Info("token issued")
//
// Request-scoped logging picks up the request ID, login and trace IDs:
//
//	observability.FromContext(ctx).Warn("audit emission failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveExchange("success", time.Since(start))
//
// All Metrics methods are safe to call on a nil receiver.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "oidc-gateway",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
