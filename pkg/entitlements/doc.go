// Package entitlements resolves the scopes and customer bindings placed in a
// session token.
//
// Scopes come from the built-in role classes (admin, user, guest) plus rows
// of the permissions table matching a role or group. Customers come from rows
// of the customers table matching the login, a group or the email domain, and
// are only enforced when customer views are enabled.
package entitlements
