package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/accounts"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/audit"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/authz"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/entitlements"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/identity"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/session"
)

// IdentityResolver turns an access token into an identity
type IdentityResolver interface {
	Resolve(ctx context.Context, accessToken string) (*identity.Identity, error)
}

// ExchangeRequest is the body of POST /auth/oidc
type ExchangeRequest struct {
	AccessToken string `json:"access_token"`
}

// ExchangeResponse carries the minted session token
type ExchangeResponse struct {
	Token string `json:"token"`
}

// AuthorizeRequest is the body of POST /auth/oidc/authorize
type AuthorizeRequest struct {
	Username string `json:"username"`
}

// Config wires the collaborators of a Service
type Config struct {
	Resolver  IdentityResolver
	Evaluator *authz.Evaluator
	Accounts  accounts.Store
	Scopes    entitlements.ScopeLookup
	Customers entitlements.CustomerLookup
	Audit     audit.Emitter
	Minter    session.Minter

	// Lifetime of minted session tokens
	Lifetime time.Duration
	// Clock defaults to time.Now
	Clock   func() time.Time
	Metrics *observability.Metrics
}

// Service exchanges IdP access tokens for session tokens. It keeps no
// per-request state and is safe for concurrent use.
type Service struct {
	resolver  IdentityResolver
	evaluator *authz.Evaluator
	accounts  accounts.Store
	scopes    entitlements.ScopeLookup
	customers entitlements.CustomerLookup
	audit     audit.Emitter
	minter    session.Minter
	lifetime  time.Duration
	now       func() time.Time
	metrics   *observability.Metrics
}

// NewService creates a new exchange service
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("identity resolver is required")
	case cfg.Evaluator == nil:
		return nil, fmt.Errorf("authorization evaluator is required")
	case cfg.Accounts == nil:
		return nil, fmt.Errorf("account store is required")
	case cfg.Scopes == nil || cfg.Customers == nil:
		return nil, fmt.Errorf("entitlement lookups are required")
	case cfg.Minter == nil:
		return nil, fmt.Errorf("session minter is required")
	case cfg.Lifetime <= 0:
		return nil, fmt.Errorf("session lifetime must be positive")
	}

	emitter := cfg.Audit
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		resolver:  cfg.Resolver,
		evaluator: cfg.Evaluator,
		accounts:  cfg.Accounts,
		scopes:    cfg.Scopes,
		customers: cfg.Customers,
		audit:     emitter,
		minter:    cfg.Minter,
		lifetime:  cfg.Lifetime,
		now:       now,
		metrics:   cfg.Metrics,
	}, nil
}

// Exchange validates an access token with the identity provider, applies the
// admission policy, looks up entitlements and mints a session token. Steps
// run in order and the first failure ends the exchange. Last-login and audit
// side effects are best effort and are not rolled back.
func (s *Service) Exchange(ctx context.Context, req *ExchangeRequest, info audit.RequestInfo) (resp *ExchangeResponse, err error) {
	ctx, span := observability.Tracer().Start(ctx, "gateway.Exchange")
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveExchange(outcome, time.Since(start))
	}()

	logger := observability.FromContext(ctx)

	if req == nil || req.AccessToken == "" {
		return nil, newError(KindBadRequest, "Missing access token", nil)
	}

	id, err := s.resolver.Resolve(ctx, req.AccessToken)
	if err != nil {
		if errors.Is(err, identity.ErrUnresolvable) {
			return nil, newError(KindInvalidCredential, "Invalid access token", err)
		}
		logger.WithError(err).Warn("userinfo request failed")
		return nil, newError(KindIdentityProviderUnavailable, "Failed to get user info", err)
	}
	if err := id.Validate(); err != nil {
		return nil, newError(KindInvalidCredential, "Invalid access token", err)
	}

	login := id.Login
	ctx = observability.WithLogin(ctx, login)
	logger = logger.WithField("login", login)
	span.SetAttributes(attribute.String("enduser.id", login))

	account, err := s.accounts.FindByLogin(ctx, login)
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		// unknown to the platform; the identity provider is authoritative
		account = nil
	case err != nil:
		logger.WithError(err).Error("account lookup failed")
		return nil, newError(KindInternal, "Failed to look up user", err)
	case !account.IsActive():
		return nil, newError(KindForbidden, fmt.Sprintf("User %s is not active", login),
			fmt.Errorf("%w: %s", authz.ErrAccountInactive, login))
	}

	decision, err := s.evaluator.Admit(id)
	if err != nil {
		logger.WithField("groups", id.Groups).Info("login rejected by allow-lists")
		return nil, newError(KindForbidden, fmt.Sprintf("User %s is not authorized", login), err)
	}
	span.SetAttributes(attribute.String("gateway.admission_gate", string(decision.Gate)))

	roles := s.evaluator.DeriveRoles(id)

	ent, err := s.lookupEntitlements(ctx, id, roles)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if account != nil {
		if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
			s.metrics.IncLastLoginFailure()
			logger.WithError(err).Warn("failed to record last login")
		}
	}

	event := audit.NewLoginEvent(now, login, id.ID, ent.Customers, ent.Scopes, roles, id.Groups, info)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.metrics.IncAuditFailure()
		logger.WithError(err).Warn("failed to emit audit event")
	}

	claims := &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
		Name:              id.Name,
		PreferredUsername: login,
		Provider:          session.Provider,
		Customers:         ent.Customers,
		Scope:             session.SpaceDelimited(ent.Scopes),
		Roles:             roles,
		Groups:            id.Groups,
		Email:             id.Email,
		EmailVerified:     id.EmailVerified,
	}

	token, err := s.minter.Mint(ctx, claims)
	if err != nil {
		logger.WithError(err).Error("failed to mint session token")
		return nil, newError(KindInternal, "Failed to create session token", err)
	}

	logger.WithFields(map[string]interface{}{
		"roles":  roles,
		"scopes": ent.Scopes,
	}).Info("session issued")

	return &ExchangeResponse{Token: token}, nil
}

// Authorize checks a platform username against account status and the
// allow-lists without contacting the identity provider
func (s *Service) Authorize(ctx context.Context, username string) error {
	ctx, span := observability.Tracer().Start(ctx, "gateway.Authorize")
	defer span.End()

	if username == "" {
		return newError(KindBadRequest, "Missing username", nil)
	}

	err := s.evaluator.Authorize(ctx, username)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authz.ErrAccountNotFound):
		return newError(KindNotFound, "User not found", err)
	case errors.Is(err, authz.ErrAccountInactive):
		return newError(KindForbidden, fmt.Sprintf("User %s is not active", username), err)
	case errors.Is(err, authz.ErrNotAuthorized):
		return newError(KindForbidden, fmt.Sprintf("User %s is not authorized", username), err)
	default:
		span.RecordError(err)
		observability.FromContext(ctx).WithError(err).Error("authorize failed")
		return newError(KindInternal, "Failed to authorize user", err)
	}
}

// lookupEntitlements resolves scopes from roles and groups, and customers
// from groups and the email domain
func (s *Service) lookupEntitlements(ctx context.Context, id *identity.Identity, roles []string) (entitlements.Set, error) {
	logger := observability.FromContext(ctx)

	scopes, err := s.scopes.Scopes(ctx, id.Login, concat(roles, id.Groups))
	if err != nil {
		logger.WithError(err).Error("scope lookup failed")
		return entitlements.Set{}, newError(KindInternal, "Failed to look up permissions", err)
	}

	customerKeys := concat(id.Groups)
	if domain := id.Domain(); domain != "" {
		customerKeys = append(customerKeys, domain)
	}
	customers, err := s.customers.Customers(ctx, id.Login, customerKeys)
	if errors.Is(err, entitlements.ErrNoCustomerMatch) {
		return entitlements.Set{}, newError(KindForbidden,
			fmt.Sprintf("No customer lookup configured for user %s or '%s'", id.Login, strings.Join(customerKeys, ", ")), err)
	}
	if err != nil {
		logger.WithError(err).Error("customer lookup failed")
		return entitlements.Set{}, newError(KindInternal, "Failed to look up customers", err)
	}
	if customers == nil {
		customers = []string{}
	}

	return entitlements.Set{Scopes: scopes, Customers: customers}, nil
}

func concat(lists ...[]string) []string {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	out := make([]string, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
