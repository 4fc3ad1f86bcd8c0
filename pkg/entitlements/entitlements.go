package entitlements

import (
	"context"
	"sort"
)

const (
	ScopeAdmin      = "admin"
	ScopeRead       = "read"
	ScopeWrite      = "write"
	ScopeReadAlerts = "read:alerts"

	// AllCustomers bound to a match removes the customer restriction
	AllCustomers = "*"
)

var (
	adminScopes = []string{ScopeAdmin, ScopeRead, ScopeWrite}
	userScopes  = []string{ScopeRead, ScopeWrite}
	guestScopes = []string{ScopeReadAlerts}
)

// ScopeLookup resolves permission scopes for a login and its roles
type ScopeLookup interface {
	Scopes(ctx context.Context, login string, roles []string) ([]string, error)
}

// CustomerLookup resolves customer bindings for a login and its groups
type CustomerLookup interface {
	Customers(ctx context.Context, login string, groups []string) ([]string, error)
}

// Set is the entitlement part of a session
type Set struct {
	Scopes    []string
	Customers []string
}

// Config selects the built-in role classes and customer views
type Config struct {
	AdminRoles    []string
	UserRoles     []string
	GuestRoles    []string
	AdminUsers    []string
	CustomerViews bool
}

func (c Config) isAdmin(login string, roles []string) bool {
	return containsAny(c.AdminUsers, login) || containsAny(c.AdminRoles, roles...)
}

func containsAny(list []string, values ...string) bool {
	for _, v := range values {
		for _, item := range list {
			if item == v {
				return true
			}
		}
	}
	return false
}

// normalize sorts and de-duplicates values. The result is never nil.
func normalize(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}
