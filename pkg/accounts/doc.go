// Package accounts reads platform user accounts by login and records the
// last successful login. Accounts are owned by the platform; the gateway
// never creates or deletes them.
package accounts
