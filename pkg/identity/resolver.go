package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// Config configures the userinfo resolver
type Config struct {
	UserInfoURL string
	Timeout     time.Duration
	Fields      FieldMapping

	// Transport overrides the outbound round tripper; nil uses http.DefaultTransport
	Transport http.RoundTripper
}

// Resolver turns an access token into an Identity by calling the IdP userinfo endpoint
type Resolver struct {
	userInfoURL string
	client      *http.Client
	timeout     time.Duration
	fields      FieldMapping
	metrics     *observability.Metrics
}

// NewResolver creates a resolver for a single userinfo endpoint. No discovery
// request is made; metrics may be nil.
func NewResolver(cfg Config, metrics *observability.Metrics) (*Resolver, error) {
	if cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("userinfo URL is required")
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(base),
	}

	return &Resolver{
		userInfoURL: cfg.UserInfoURL,
		client:      client,
		timeout:     cfg.Timeout,
		fields:      cfg.Fields,
		metrics:     metrics,
	}, nil
}

// Resolve fetches the userinfo document for accessToken and maps it.
// Every failure wraps ErrProviderUnavailable; the call is never retried.
func (r *Resolver) Resolve(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, span := observability.Tracer().Start(ctx, "identity.Resolve")
	defer span.End()

	start := time.Now()
	claims, err := r.fetchClaims(ctx, accessToken)
	if err != nil {
		r.metrics.ObserveIdPRequest("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "userinfo request failed")
		observability.FromContext(ctx).WithError(err).Error("Failed to get user info from OIDC provider")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	r.metrics.ObserveIdPRequest("ok", time.Since(start))

	identity := MapClaims(claims, r.fields)
	span.SetAttributes(
		attribute.String("identity.login", identity.Login),
		attribute.Int("identity.groups", len(identity.Groups)),
	)
	return identity, nil
}

// fetchClaims decodes the userinfo body as a plain claim map. Field shapes
// are left to MapClaims.
func (r *Resolver) fetchClaims(ctx context.Context, accessToken string) (map[string]interface{}, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, r.client), tokenSource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("user info request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var claims map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return claims, nil
}
