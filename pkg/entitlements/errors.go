package entitlements

import "errors"

// ErrNoCustomerMatch means customer views are on and no customer binding
// matches the login or any of its groups
var ErrNoCustomerMatch = errors.New("no customer match")
