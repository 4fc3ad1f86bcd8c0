package identity

import (
	"fmt"
	"strings"
)

// Identity is the normalized view of one IdP user for the duration of an exchange
type Identity struct {
	ID            string
	Name          string
	Login         string
	Email         string
	EmailVerified bool
	Groups        []string
	Roles         []string
}

// Domain returns the part of the email after the last '@', or "" without one
func (i *Identity) Domain() string {
	at := strings.LastIndex(i.Email, "@")
	if at < 0 {
		return ""
	}
	return i.Email[at+1:]
}

// Validate reports ErrUnresolvable when the identity has no login
func (i *Identity) Validate() error {
	if i == nil || i.Login == "" {
		return fmt.Errorf("%w: neither login nor email claim present", ErrUnresolvable)
	}
	return nil
}

// HasGroup reports whether the identity belongs to group
func (i *Identity) HasGroup(group string) bool {
	for _, g := range i.Groups {
		if g == group {
			return true
		}
	}
	return false
}
