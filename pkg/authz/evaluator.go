package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/accounts"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/identity"
)

// Decision is the outcome of admission for one identity
type Decision struct {
	Admitted bool
	Gate     Gate
	Roles    []string
}

// Evaluator applies a Policy. It holds no per-request state and is safe for
// concurrent use.
type Evaluator struct {
	policy   Policy
	groups   gate
	domains  gate
	accounts accounts.Store
}

// NewEvaluator creates an evaluator. The accounts store is only needed by Authorize.
func NewEvaluator(policy Policy, store accounts.Store) *Evaluator {
	p := policy.clone()
	return &Evaluator{
		policy:   p,
		groups:   newGate(p.AllowedGroups),
		domains:  newGate(p.AllowedDomains),
		accounts: store,
	}
}

// Admit checks the group and domain allow-lists. A user is admitted when
// any enabled gate passes, or when no gate is enabled. Roles are not
// consulted, so admission is independent of role derivation.
func (e *Evaluator) Admit(id *identity.Identity) (Decision, error) {
	via := e.admit(id.Groups, id.Domain())
	if via == "" {
		return Decision{}, fmt.Errorf("%w: %s", ErrNotAuthorized, id.Login)
	}
	return Decision{Admitted: true, Gate: via}, nil
}

func (e *Evaluator) admit(groups []string, domain string) Gate {
	if !e.groups.enabled() && !e.domains.enabled() {
		return GateNone
	}
	if e.groups.enabled() && e.groups.admits(groups...) {
		return GateGroup
	}
	if e.domains.enabled() && e.domains.admits(domain) {
		return GateDomain
	}
	return ""
}

// DeriveRoles appends roles to id.Roles: "admin" for members of the admin
// group, then the mapped role of each group in order. Mapped roles may repeat;
// "admin" is added at most once.
func (e *Evaluator) DeriveRoles(id *identity.Identity) []string {
	roles := append([]string{}, id.Roles...)
	hasAdmin := contains(roles, AdminRole)

	if e.policy.AdminGroup != "" && id.HasGroup(e.policy.AdminGroup) && !hasAdmin {
		roles = append(roles, AdminRole)
		hasAdmin = true
	}

	for _, group := range id.Groups {
		role, ok := e.policy.GroupRoles[group]
		if !ok {
			continue
		}
		if role == AdminRole {
			if hasAdmin {
				continue
			}
			hasAdmin = true
		}
		roles = append(roles, role)
	}

	id.Roles = roles
	return roles
}

// Evaluate admits id and, when admitted, derives its roles
func (e *Evaluator) Evaluate(id *identity.Identity) (Decision, error) {
	decision, err := e.Admit(id)
	if err != nil {
		return decision, err
	}
	decision.Roles = e.DeriveRoles(id)
	return decision, nil
}

// Authorize checks a username against the account store and the allow-lists
// using the stored account's groups and email domain.
func (e *Evaluator) Authorize(ctx context.Context, username string) error {
	if e.accounts == nil {
		return fmt.Errorf("account store not configured")
	}

	account, err := e.accounts.FindByLogin(ctx, username)
	if errors.Is(err, accounts.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}

	if !account.IsActive() {
		return fmt.Errorf("%w: %s", ErrAccountInactive, username)
	}

	if e.admit(account.Groups, account.Domain()) == "" {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, username)
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
