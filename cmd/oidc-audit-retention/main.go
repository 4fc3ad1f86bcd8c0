package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/audit"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/storage"
)

// Config holds the retention job configuration
type Config struct {
	DBConnectionString string
	Retention          time.Duration
	Schedule           string
	RunOnce            bool
	LogLevel           string
}

// Audit retention job: periodically deletes login audit events older than the retention window
func main() {
	config := parseFlags()

	logger := setupLogger(config.LogLevel)
	logger.Info("Starting OIDC gateway audit retention job")

	db, err := storage.OpenPostgres(context.Background(), storage.ConnectionConfig{
		URL:         config.DBConnectionString,
		MaxConns:    2,
		MinConns:    1,
		MaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	emitter, err := audit.NewDBEmitter(context.Background(), db)
	if err != nil {
		logger.Fatalf("Failed to open audit table: %v", err)
	}

	if config.RunOnce {
		if err := runCleanup(emitter, config.Retention, logger); err != nil {
			logger.Fatalf("Cleanup failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(config.Schedule, func() {
		if err := runCleanup(emitter, config.Retention, logger); err != nil {
			logger.Errorf("Cleanup failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule cleanup: %v", err)
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"schedule":  config.Schedule,
		"retention": config.Retention,
	}).Info("Audit retention job scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	logger.Info("Audit retention job stopped")
}

func runCleanup(emitter *audit.DBEmitter, retention time.Duration, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := emitter.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	logger.WithField("deleted", deleted).Info("Deleted expired audit events")
	return nil
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.DBConnectionString, "db", os.Getenv("GATEWAY_POSTGRES_URL"), "Database connection string")
	flag.DurationVar(&config.Retention, "retention", getEnvDuration("GATEWAY_AUDIT_RETENTION", 90*24*time.Hour), "Delete audit events older than this")
	flag.StringVar(&config.Schedule, "schedule", getEnv("GATEWAY_AUDIT_CLEANUP_SCHEDULE", "@daily"), "Cron schedule for cleanup")
	flag.BoolVar(&config.RunOnce, "run-once", false, "Run cleanup once and exit")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	return config
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
