package identity

import "errors"

var (
	// ErrProviderUnavailable means the userinfo call failed: transport error,
	// non-200 status or an undecodable body. Callers may retry the whole exchange.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrUnresolvable means the claims do not identify a user (no login and no email)
	ErrUnresolvable = errors.New("identity could not be resolved")
)
