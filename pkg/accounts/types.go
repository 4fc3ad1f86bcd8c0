package accounts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no account matches the login
var ErrNotFound = errors.New("account not found")

// Status is the lifecycle state of a platform account
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusUnknown  Status = "unknown"
)

// Account is a platform user record. The gateway reads it and only ever
// writes LastLogin.
type Account struct {
	ID        string
	Login     string
	Name      string
	Email     string
	Status    Status
	Roles     []string
	Groups    []string
	LastLogin *time.Time
}

// IsActive reports whether the account may log in
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// Domain returns the email domain of the account
func (a *Account) Domain() string {
	for i := len(a.Email) - 1; i >= 0; i-- {
		if a.Email[i] == '@' {
			return a.Email[i+1:]
		}
	}
	return ""
}

// Store looks up accounts and records logins
type Store interface {
	FindByLogin(ctx context.Context, login string) (*Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
