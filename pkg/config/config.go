package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file
const ConfigFileEnv = "GATEWAY_CONFIG_FILE"

const minSecretLength = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	OIDC          OIDCConfig
	Session       SessionConfig
	Entitlements  EntitlementsConfig
	Storage       StorageConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Mounts POST /auth/oidc/authorize
	AuthorizeEndpointEnabled bool

	// Proxy addresses or CIDR ranges whose forwarding headers are honoured
	TrustedProxies []string
}

// OIDCConfig describes the identity provider and the admission policy
type OIDCConfig struct {
	UserInfoURL string
	Timeout     time.Duration

	SubField           string
	NameField          string
	LoginField         string
	EmailField         string
	EmailVerifiedField string
	GroupsClaim        string

	AllowedGroups  []string
	AllowedDomains []string
	AdminGroup     string
	GroupRoles     map[string]string
}

// SessionConfig holds session token settings
type SessionConfig struct {
	Secret   string
	Issuer   string
	Lifetime time.Duration
}

// EntitlementsConfig holds scope and customer lookup settings
type EntitlementsConfig struct {
	AdminRoles    []string
	UserRoles     []string
	GuestRoles    []string
	AdminUsers    []string
	CustomerViews bool
}

// StorageConfig holds database and cache connection settings
type StorageConfig struct {
	PostgresURL             string
	PostgresMaxConns        int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// AuditConfig selects audit sinks and retention
type AuditConfig struct {
	Sinks           []string
	Retention       time.Duration
	CleanupSchedule string
}

// RateLimitConfig holds exchange rate limiting settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond int
	Burst             int
	MaxClients        int
}

// CORSConfig holds cross-origin settings for the exchange endpoint
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from the optional YAML file named by
// GATEWAY_CONFIG_FILE and from environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	l := &loader{}
	if path := os.Getenv(ConfigFileEnv); path != "" {
		fileLoader, err := readFile(path)
		if err != nil {
			return nil, err
		}
		l = fileLoader
	}

	cfg := &Config{
		Server:        l.loadServerConfig(),
		OIDC:          l.loadOIDCConfig(),
		Session:       l.loadSessionConfig(),
		Entitlements:  l.loadEntitlementsConfig(),
		Storage:       l.loadStorageConfig(),
		Audit:         l.loadAuditConfig(),
		RateLimit:     l.loadRateLimitConfig(),
		CORS:          l.loadCORSConfig(),
		Observability: l.loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (l *loader) loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:                     l.getEnv("GATEWAY_HOST", "0.0.0.0"),
		Port:                     l.getEnv("GATEWAY_PORT", "8080"),
		ReadTimeout:              l.getEnvDuration("GATEWAY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:             l.getEnvDuration("GATEWAY_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:              l.getEnvDuration("GATEWAY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:          l.getEnvDuration("GATEWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:             int64(l.getEnvInt("GATEWAY_MAX_BODY_BYTES", 1<<20)),
		HealthPort:               l.getEnv("GATEWAY_HEALTH_PORT", "9090"),
		AuthorizeEndpointEnabled: l.getEnvBool("AUTHORIZE_ENDPOINT_ENABLED", false),
		TrustedProxies:           l.getEnvList("GATEWAY_TRUSTED_PROXIES", nil),
	}
}

func (l *loader) loadOIDCConfig() OIDCConfig {
	return OIDCConfig{
		UserInfoURL:        l.getEnv("OIDC_USERINFO_URL", ""),
		Timeout:            l.getEnvDuration("IDP_TIMEOUT", 10*time.Second),
		SubField:           l.getEnv("USERINFO_SUB_FIELD", "sub"),
		NameField:          l.getEnv("USERINFO_NAME_FIELD", "name"),
		LoginField:         l.getEnv("USERINFO_LOGIN_FIELD", "preferred_username"),
		EmailField:         l.getEnv("USERINFO_EMAIL_FIELD", "email"),
		EmailVerifiedField: l.getEnv("USERINFO_EMAIL_VERIFIED_FIELD", "email_verified"),
		GroupsClaim:        l.getEnv("OIDC_GROUPS_CLAIM", "groups"),
		AllowedGroups:      l.getEnvList("ALLOWED_OIDC_GROUPS", nil),
		AllowedDomains:     l.getEnvList("ALLOWED_EMAIL_DOMAINS", nil),
		AdminGroup:         l.getEnv("ADMIN_GROUP", ""),
		GroupRoles:         l.getEnvMap("GROUP_TO_ROLE_MAPPING"),
	}
}

func (l *loader) loadSessionConfig() SessionConfig {
	return SessionConfig{
		Secret:   l.getEnv("GATEWAY_SESSION_SECRET", ""),
		Issuer:   l.getEnv("GATEWAY_SESSION_ISSUER", "alerta"),
		Lifetime: time.Duration(l.getEnvInt("TOKEN_LIFETIME", 86400*14)) * time.Second,
	}
}

func (l *loader) loadEntitlementsConfig() EntitlementsConfig {
	return EntitlementsConfig{
		AdminRoles:    l.getEnvList("ADMIN_ROLES", []string{"admin"}),
		UserRoles:     l.getEnvList("USER_ROLES", []string{"user"}),
		GuestRoles:    l.getEnvList("GUEST_ROLES", []string{"guest"}),
		AdminUsers:    l.getEnvList("ADMIN_USERS", nil),
		CustomerViews: l.getEnvBool("CUSTOMER_VIEWS", false),
	}
}

func (l *loader) loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:             l.getEnv("GATEWAY_POSTGRES_URL", ""),
		PostgresMaxConns:        l.getEnvInt("GATEWAY_POSTGRES_MAX_CONNS", 20),
		PostgresMaxIdleConns:    l.getEnvInt("GATEWAY_POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnMaxLifetime: l.getEnvDuration("GATEWAY_POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		RedisURL:                l.getEnv("GATEWAY_REDIS_URL", ""),
		RedisPassword:           l.getEnv("GATEWAY_REDIS_PASSWORD", ""),
		RedisDB:                 l.getEnvInt("GATEWAY_REDIS_DB", 0),
	}
}

func (l *loader) loadAuditConfig() AuditConfig {
	return AuditConfig{
		Sinks:           l.getEnvList("GATEWAY_AUDIT_SINKS", []string{"log"}),
		Retention:       l.getEnvDuration("GATEWAY_AUDIT_RETENTION", 90*24*time.Hour),
		CleanupSchedule: l.getEnv("GATEWAY_AUDIT_CLEANUP_SCHEDULE", "@daily"),
	}
}

func (l *loader) loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           l.getEnvBool("GATEWAY_RATE_LIMIT_ENABLED", true),
		RequestsPerSecond: l.getEnvInt("GATEWAY_RATE_LIMIT_RPS", 10),
		Burst:             l.getEnvInt("GATEWAY_RATE_LIMIT_BURST", 20),
		MaxClients:        l.getEnvInt("GATEWAY_RATE_LIMIT_MAX_CLIENTS", 10000),
	}
}

func (l *loader) loadCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: l.getEnvList("GATEWAY_CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func (l *loader) loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(l.getEnv("GATEWAY_LOG_LEVEL", "info")),
		MetricsEnabled:     l.getEnvBool("GATEWAY_METRICS_ENABLED", true),
		OTelEnabled:        l.getEnvBool("GATEWAY_OTEL_ENABLED", false),
		OTelEndpoint:       l.getEnv("GATEWAY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    l.getEnv("GATEWAY_OTEL_SERVICE_NAME", "oidc-gateway"),
		OTelServiceVersion: l.getEnv("GATEWAY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       l.getEnvBool("GATEWAY_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	if c.OIDC.UserInfoURL == "" {
		return fmt.Errorf("OIDC_USERINFO_URL is required")
	}
	u, err := url.Parse(c.OIDC.UserInfoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("OIDC_USERINFO_URL must be an absolute http(s) URL: %q", c.OIDC.UserInfoURL)
	}
	if c.OIDC.Timeout <= 0 {
		return fmt.Errorf("IDP_TIMEOUT must be positive")
	}
	if c.OIDC.SubField == "" || c.OIDC.LoginField == "" || c.OIDC.EmailField == "" {
		return fmt.Errorf("userinfo field names must not be empty")
	}

	if len(c.Session.Secret) < minSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("TOKEN_LIFETIME must be positive")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	for _, sink := range c.Audit.Sinks {
		switch sink {
		case "db", "log":
		default:
			return fmt.Errorf("invalid audit sink: %s (must be db or log)", sink)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit requests per second and burst must be positive")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// loader resolves keys from the environment first and the config file second.
// File lists and maps keep their structure so separators inside values survive.
type loader struct {
	file  map[string]string
	lists map[string][]string
	maps  map[string]map[string]string
}

// readFile reads a flat YAML document keyed by the environment variable names.
// Values are scalars, lists of scalars or maps of scalars.
func readFile(path string) (*loader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	l := &loader{
		file:  make(map[string]string),
		lists: make(map[string][]string),
		maps:  make(map[string]map[string]string),
	}
	for key, value := range raw {
		switch v := value.(type) {
		case []interface{}:
			items := make([]string, 0, len(v))
			for _, item := range v {
				s, err := scalar(item)
				if err != nil {
					return nil, fmt.Errorf("config file key %s: %w", key, err)
				}
				if s = strings.TrimSpace(s); s != "" {
					items = append(items, s)
				}
			}
			l.lists[key] = items
		case map[string]interface{}:
			pairs := make(map[string]string, len(v))
			for k, item := range v {
				s, err := scalar(item)
				if err != nil {
					return nil, fmt.Errorf("config file key %s.%s: %w", key, k, err)
				}
				pairs[k] = s
			}
			l.maps[key] = pairs
		default:
			s, err := scalar(v)
			if err != nil {
				return nil, fmt.Errorf("config file key %s: %w", key, err)
			}
			l.file[key] = s
		}
	}
	return l, nil
}

func scalar(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool, int, int64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

func (l *loader) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return l.file[key]
}

// getEnv returns an environment variable value or a default
func (l *loader) getEnv(key, defaultValue string) string {
	if value := l.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func (l *loader) getEnvBool(key string, defaultValue bool) bool {
	if value := l.lookup(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func (l *loader) getEnvInt(key string, defaultValue int) int {
	if value := l.lookup(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func (l *loader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := l.lookup(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated list from the environment, or the
// list given in the config file. Blank items are dropped.
func (l *loader) getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		if items, ok := l.lists[key]; ok {
			return items
		}
		value = l.file[key]
	}
	if value == "" {
		return defaultValue
	}
	return splitList(value)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvMap returns a map from the config file or the environment. An
// environment value is either a JSON object or key=value pairs separated by
// commas; only the JSON form can carry keys containing ',' or '='.
// Pairs with an empty key or value are ignored.
func (l *loader) getEnvMap(key string) map[string]string {
	result := make(map[string]string)
	value := os.Getenv(key)
	if value == "" {
		if pairs, ok := l.maps[key]; ok {
			for k, v := range pairs {
				addPair(result, k, v)
			}
			return result
		}
		value = l.file[key]
	}

	if strings.HasPrefix(strings.TrimSpace(value), "{") {
		var pairs map[string]string
		if err := yaml.Unmarshal([]byte(value), &pairs); err == nil {
			for k, v := range pairs {
				addPair(result, k, v)
			}
			return result
		}
	}

	for _, pair := range splitList(value) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		addPair(result, k, v)
	}
	return result
}

func addPair(result map[string]string, k, v string) {
	k, v = strings.TrimSpace(k), strings.TrimSpace(v)
	if k == "" || v == "" {
		return
	}
	result[k] = v
}
