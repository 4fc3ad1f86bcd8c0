package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore reads accounts from the platform's users and groups tables
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new account store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByLogin retrieves an account by login or email, preferring an exact login match
func (s *PostgresStore) FindByLogin(ctx context.Context, login string) (*Account, error) {
	query := `
		SELECT id, login, name, email, status, roles, last_login
		FROM users
		WHERE login = $1 OR email = $1
		ORDER BY (login = $1) DESC
		LIMIT 1
	`

	var account Account
	var name, email, status sql.NullString
	var lastLogin sql.NullTime

	err := s.db.QueryRowContext(ctx, query, login).Scan(
		&account.ID,
		&account.Login,
		&name,
		&email,
		&status,
		pq.Array(&account.Roles),
		&lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, login)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.Name = name.String
	account.Email = email.String
	account.Status = parseStatus(status.String)
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLogin = &t
	}

	groups, err := s.groupsFor(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.Groups = groups

	return &account, nil
}

func (s *PostgresStore) groupsFor(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM groups WHERE $1 = ANY(users) ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account groups: %w", err)
	}
	defer rows.Close()

	groups := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, name)
	}
	return groups, rows.Err()
}

// UpdateLastLogin records a successful login
func (s *PostgresStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $2, update_time = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func parseStatus(s string) Status {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s)
	default:
		return StatusUnknown
	}
}
