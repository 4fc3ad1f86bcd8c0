// Package session mints the platform session token returned by a successful
// exchange. Tokens are HS256 JWTs carrying identity, roles, groups, scopes
// and customers.
package session
