package entitlements

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS permissions (
	match TEXT NOT NULL,
	scope TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS customers (
	match TEXT NOT NULL,
	customer TEXT NOT NULL
)`

// PostgresLookup reads role scopes and customer bindings from SQL tables.
// Queries use only portable SQL so the same code runs against SQLite.
// Results are never cached.
type PostgresLookup struct {
	db  *sql.DB
	cfg Config
}

// NewPostgresLookup creates a lookup over db
func NewPostgresLookup(db *sql.DB, cfg Config) *PostgresLookup {
	return &PostgresLookup{db: db, cfg: cfg}
}

// EnsureSchema creates the permissions and customers tables when missing
func (l *PostgresLookup) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create entitlement tables: %w", err)
		}
	}
	return nil
}

// Scopes returns the sorted scopes for login and roles. Admin users and admin
// roles get the admin scopes, user and guest roles get their defaults, and
// every role adds the scopes stored for it.
func (l *PostgresLookup) Scopes(ctx context.Context, login string, roles []string) ([]string, error) {
	if l.cfg.isAdmin(login, roles) {
		return normalize(adminScopes), nil
	}

	var scopes []string
	for _, role := range roles {
		if containsAny(l.cfg.UserRoles, role) {
			scopes = append(scopes, userScopes...)
		}
		if containsAny(l.cfg.GuestRoles, role) {
			scopes = append(scopes, guestScopes...)
		}
	}

	stored, err := l.queryMatches(ctx, "SELECT scope FROM permissions WHERE match IN (%s)", roles)
	if err != nil {
		return nil, fmt.Errorf("failed to look up scopes: %w", err)
	}
	return normalize(append(scopes, stored...)), nil
}

// Customers returns the customers bound to login or any of groups. Without
// customer views, for admin users, or when "*" is bound, the result is empty
// meaning no restriction.
func (l *PostgresLookup) Customers(ctx context.Context, login string, groups []string) ([]string, error) {
	if !l.cfg.CustomerViews || containsAny(l.cfg.AdminUsers, login) {
		return []string{}, nil
	}

	matches := append([]string{login}, groups...)
	customers, err := l.queryMatches(ctx, "SELECT customer FROM customers WHERE match IN (%s)", matches)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customers: %w", err)
	}
	if len(customers) == 0 {
		return nil, fmt.Errorf("%w: no customer lookup configured for user %s or '%s'",
			ErrNoCustomerMatch, login, strings.Join(groups, ", "))
	}
	if containsAny(customers, AllCustomers) {
		return []string{}, nil
	}
	return normalize(customers), nil
}

// queryMatches runs query with an IN list of numbered placeholders
func (l *PostgresLookup) queryMatches(ctx context.Context, query string, matches []string) ([]string, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(matches))
	args := make([]interface{}, len(matches))
	for i, m := range matches {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = m
	}

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(query, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
