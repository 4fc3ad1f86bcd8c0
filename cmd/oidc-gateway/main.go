package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/accounts"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/audit"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/authz"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/config"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/entitlements"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/gateway"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/identity"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/middleware"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/session"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/storage"
)

// version is set at build time
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Gateway exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := storage.OpenPostgres(ctx, storage.ConnectionConfig{
		URL:         cfg.Storage.PostgresURL,
		MaxConns:    cfg.Storage.PostgresMaxConns,
		MinConns:    cfg.Storage.PostgresMaxIdleConns,
		MaxLifetime: cfg.Storage.PostgresConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	logger.Info("Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.OpenRedis(ctx, storage.RedisConfig{
			URL:      cfg.Storage.RedisURL,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return err
		}
		logger.Info("Connected to Redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	service, emitter, err := buildService(ctx, cfg, db, metrics, logger)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	gateway.NewHandlers(service, cfg.Server.AuthorizeEndpointEnabled).RegisterRoutes(router)

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	chain := []func(http.Handler) http.Handler{
		httputil.TrustedProxyMiddleware(proxies),
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(cfg.CORS.AllowedOrigins),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	}
	if cfg.Observability.MetricsEnabled {
		chain = append(chain, observability.HTTPMetricsMiddleware(metrics))
	}
	if cfg.RateLimit.Enabled {
		limiter, err := buildRateLimiter(cfg, redisClient, metrics)
		if err != nil {
			return err
		}
		chain = append(chain, limiter)
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      httputil.Chain(chain...)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthChecker.SetVersion(version)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, healthChecker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return emitter.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Exchange endpoint listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health endpoint listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	g.Go(func() error {
		defer observability.RecoverPanic(logger, "shutdown")
		<-gctx.Done()
		logger.Info("Shutting down gateway")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s failed: %w", server.Addr, err)
	}
	return nil
}

func buildService(ctx context.Context, cfg *config.Config, db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) (*gateway.Service, audit.Emitter, error) {
	resolver, err := identity.NewResolver(identity.Config{
		UserInfoURL: cfg.OIDC.UserInfoURL,
		Timeout:     cfg.OIDC.Timeout,
		Fields: identity.FieldMapping{
			Subject:       cfg.OIDC.SubField,
			Name:          cfg.OIDC.NameField,
			Login:         cfg.OIDC.LoginField,
			Email:         cfg.OIDC.EmailField,
			EmailVerified: cfg.OIDC.EmailVerifiedField,
			Groups:        cfg.OIDC.GroupsClaim,
		},
	}, metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create identity resolver: %w", err)
	}

	accountStore := accounts.NewPostgresStore(db)
	evaluator := authz.NewEvaluator(authz.Policy{
		AllowedGroups:  cfg.OIDC.AllowedGroups,
		AllowedDomains: cfg.OIDC.AllowedDomains,
		AdminGroup:     cfg.OIDC.AdminGroup,
		GroupRoles:     cfg.OIDC.GroupRoles,
	}, accountStore)

	lookup := entitlements.NewPostgresLookup(db, entitlements.Config{
		AdminRoles:    cfg.Entitlements.AdminRoles,
		UserRoles:     cfg.Entitlements.UserRoles,
		GuestRoles:    cfg.Entitlements.GuestRoles,
		AdminUsers:    cfg.Entitlements.AdminUsers,
		CustomerViews: cfg.Entitlements.CustomerViews,
	})
	if err := lookup.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare entitlement tables: %w", err)
	}

	emitter, err := buildAuditEmitter(ctx, cfg.Audit, db, logger)
	if err != nil {
		return nil, nil, err
	}

	minter, err := session.NewJWTMinter([]byte(cfg.Session.Secret), cfg.Session.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session minter: %w", err)
	}

	service, err := gateway.NewService(gateway.Config{
		Resolver:  resolver,
		Evaluator: evaluator,
		Accounts:  accountStore,
		Scopes:    lookup,
		Customers: lookup,
		Audit:     emitter,
		Minter:    minter,
		Lifetime:  cfg.Session.Lifetime,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gateway service: %w", err)
	}
	return service, emitter, nil
}

func buildAuditEmitter(ctx context.Context, cfg config.AuditConfig, db *sql.DB, logger *observability.Logger) (audit.Emitter, error) {
	var emitters []audit.Emitter
	for _, sink := range cfg.Sinks {
		switch strings.ToLower(sink) {
		case "db":
			dbEmitter, err := audit.NewDBEmitter(ctx, db)
			if err != nil {
				return nil, fmt.Errorf("failed to create database audit sink: %w", err)
			}
			emitters = append(emitters, dbEmitter)
		case "log":
			emitters = append(emitters, audit.NewLogEmitter(logger))
		default:
			return nil, fmt.Errorf("unknown audit sink %q", sink)
		}
	}
	if len(emitters) == 0 {
		return audit.NopEmitter{}, nil
	}
	return audit.NewMultiEmitter(emitters...), nil
}

func buildRateLimiter(cfg *config.Config, redisClient *redis.Client, metrics *observability.Metrics) (func(http.Handler) http.Handler, error) {
	limits := &middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		MaxClients:        cfg.RateLimit.MaxClients,
	}

	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, middleware.DistributedConfigFrom(limits), "", metrics).Handler, nil
	}

	limiter, err := middleware.NewRateLimiter(limits, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return limiter.Handler, nil
}
