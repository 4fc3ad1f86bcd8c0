package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/accounts"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/identity"
)

type fakeStore struct {
	accounts map[string]*accounts.Account
	err      error
}

func (f *fakeStore) FindByLogin(ctx context.Context, login string) (*accounts.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[login]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accounts.ErrNotFound, login)
	}
	return a, nil
}

func (f *fakeStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return nil
}

func user(groups []string, email string) *identity.Identity {
	return &identity.Identity{Login: "alice", Email: email, Groups: groups, Roles: []string{}}
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		identity *identity.Identity
		want     Gate
		wantErr  bool
	}{
		{"no gates", Policy{}, user(nil, ""), GateNone, false},
		{"group gate passes", Policy{AllowedGroups: []string{"eng"}}, user([]string{"eng"}, "a@example.com"), GateGroup, false},
		{"group gate fails with domains disabled", Policy{AllowedGroups: []string{"eng"}}, user([]string{"sales"}, "a@example.com"), "", true},
		{"domain gate passes", Policy{AllowedDomains: []string{"example.com"}}, user(nil, "a@example.com"), GateDomain, false},
		{"domain gate fails", Policy{AllowedDomains: []string{"example.com"}}, user(nil, "a@other.org"), "", true},
		{"domain gate fails without email", Policy{AllowedDomains: []string{"example.com"}}, user(nil, ""), "", true},
		{"either gate is enough", Policy{AllowedGroups: []string{"eng"}, AllowedDomains: []string{"example.com"}}, user([]string{"sales"}, "a@example.com"), GateDomain, false},
		{"both gates fail", Policy{AllowedGroups: []string{"eng"}, AllowedDomains: []string{"example.com"}}, user([]string{"sales"}, "a@other.org"), "", true},
		{"group wildcard", Policy{AllowedGroups: []string{"*"}}, user(nil, ""), GateGroup, false},
		{"domain wildcard", Policy{AllowedDomains: []string{"*"}, AllowedGroups: []string{"eng"}}, user(nil, ""), GateDomain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := NewEvaluator(tt.policy, nil).Admit(tt.identity)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotAuthorized)
				assert.False(t, decision.Admitted)
				return
			}
			require.NoError(t, err)
			assert.True(t, decision.Admitted)
			assert.Equal(t, tt.want, decision.Gate)
		})
	}
}

func TestAdmit_IgnoresRoles(t *testing.T) {
	e := NewEvaluator(Policy{AllowedGroups: []string{"admin"}}, nil)
	id := user([]string{"sales"}, "")
	id.Roles = []string{"admin"}

	_, err := e.Admit(id)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestDeriveRoles(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		groups []string
		want   []string
	}{
		{
			name:   "duplicates from mapping are kept",
			policy: Policy{GroupRoles: map[string]string{"eng": "developer", "ops": "developer"}},
			groups: []string{"eng", "ops"},
			want:   []string{"developer", "developer"},
		},
		{
			name:   "admin group first then mapping in group order",
			policy: Policy{AdminGroup: "root", GroupRoles: map[string]string{"eng": "developer", "ops": "operator"}},
			groups: []string{"ops", "root", "eng"},
			want:   []string{"admin", "operator", "developer"},
		},
		{
			name:   "admin exactly once when mapping also grants admin",
			policy: Policy{AdminGroup: "root", GroupRoles: map[string]string{"root": "admin", "sre": "admin", "eng": "developer"}},
			groups: []string{"root", "sre", "eng"},
			want:   []string{"admin", "developer"},
		},
		{
			name:   "admin from mapping only once",
			policy: Policy{GroupRoles: map[string]string{"a": "admin", "b": "admin"}},
			groups: []string{"a", "b"},
			want:   []string{"admin"},
		},
		{
			name:   "no mapping",
			policy: Policy{},
			groups: []string{"eng"},
			want:   []string{},
		},
		{
			name:   "empty admin group never matches",
			policy: Policy{},
			groups: []string{""},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := user(tt.groups, "")
			roles := NewEvaluator(tt.policy, nil).DeriveRoles(id)
			assert.Equal(t, tt.want, roles)
			assert.Equal(t, tt.want, id.Roles)
		})
	}
}

func TestDeriveRoles_AdminCountProperty(t *testing.T) {
	groupSets := [][]string{
		{"root"},
		{"root", "eng", "ops"},
		{"eng", "root", "sre", "root"},
		{"sre", "sre", "root"},
	}
	e := NewEvaluator(Policy{
		AdminGroup: "root",
		GroupRoles: map[string]string{"eng": "developer", "ops": "developer", "sre": "admin", "root": "admin"},
	}, nil)

	for _, groups := range groupSets {
		roles := e.DeriveRoles(user(groups, ""))
		count := 0
		for _, r := range roles {
			if r == AdminRole {
				count++
			}
		}
		assert.Equal(t, 1, count, "groups %v produced roles %v", groups, roles)
	}
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator(Policy{
		AllowedGroups: []string{"eng"},
		GroupRoles:    map[string]string{"eng": "developer"},
	}, nil)

	decision, err := e.Evaluate(user([]string{"eng"}, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"developer"}, decision.Roles)

	id := user([]string{"sales"}, "")
	_, err = e.Evaluate(id)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Empty(t, id.Roles)
}

func TestNewEvaluator_CopiesPolicy(t *testing.T) {
	policy := Policy{AllowedGroups: []string{"eng"}, GroupRoles: map[string]string{"eng": "developer"}}
	e := NewEvaluator(policy, nil)

	policy.AllowedGroups[0] = "sales"
	policy.GroupRoles["eng"] = "admin"

	_, err := e.Admit(user([]string{"eng"}, ""))
	assert.NoError(t, err)
	assert.Equal(t, []string{"developer"}, e.DeriveRoles(user([]string{"eng"}, "")))
}

func TestAuthorize(t *testing.T) {
	store := &fakeStore{accounts: map[string]*accounts.Account{
		"alice": {ID: "1", Login: "alice", Email: "alice@example.com", Status: accounts.StatusActive, Groups: []string{"eng"}},
		"bob":   {ID: "2", Login: "bob", Email: "bob@example.com", Status: accounts.StatusInactive, Groups: []string{"eng"}},
		"carol": {ID: "3", Login: "carol", Email: "carol@other.org", Status: accounts.StatusActive, Groups: []string{"sales"}},
		"dave":  {ID: "4", Login: "dave", Email: "dave@example.com", Status: accounts.StatusUnknown},
	}}
	e := NewEvaluator(Policy{AllowedGroups: []string{"eng"}, AllowedDomains: []string{"partner.io"}}, store)

	tests := []struct {
		username string
		want     error
	}{
		{"alice", nil},
		{"bob", ErrAccountInactive},
		{"carol", ErrNotAuthorized},
		{"dave", ErrAccountInactive},
		{"ghost", ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			err := e.Authorize(context.Background(), tt.username)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthorize_StoreError(t *testing.T) {
	storeErr := errors.New("database down")
	e := NewEvaluator(Policy{}, &fakeStore{err: storeErr})

	err := e.Authorize(context.Background(), "alice")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
}

func TestAuthorize_NoStore(t *testing.T) {
	assert.Error(t, NewEvaluator(Policy{}, nil).Authorize(context.Background(), "alice"))
}
