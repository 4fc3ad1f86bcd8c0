// Package identity resolves an OAuth2 access token into a normalized Identity
// by calling the identity provider's userinfo endpoint.
//
// Claim names are configurable through FieldMapping. The login falls back to
// the email claim, groups default to an empty list and email_verified
// defaults to whether an email is present.
package identity
