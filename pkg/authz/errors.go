package authz

import "errors"

var (
	// ErrNotAuthorized means neither the group nor the domain allow-list admitted the user
	ErrNotAuthorized = errors.New("not authorized")

	// ErrAccountInactive means the platform account exists but is not active
	ErrAccountInactive = errors.New("account is not active")

	// ErrAccountNotFound means no platform account matches the username
	ErrAccountNotFound = errors.New("account not found")
)
