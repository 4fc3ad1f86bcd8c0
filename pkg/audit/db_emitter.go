package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DBEmitter stores audit events in PostgreSQL
type DBEmitter struct {
	db *sql.DB
}

// NewDBEmitter creates a database emitter and ensures its table exists
func NewDBEmitter(ctx context.Context, db *sql.DB) (*DBEmitter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	emitter := &DBEmitter{db: db}
	if err := emitter.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure auth_audit table: %w", err)
	}
	return emitter, nil
}

func (e *DBEmitter) ensureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS auth_audit (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		message TEXT,
		username VARCHAR(255),
		resource_id VARCHAR(255),
		resource_type VARCHAR(50),
		customers TEXT[],
		scopes TEXT[],
		roles TEXT[],
		groups TEXT[],
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auth_audit_timestamp ON auth_audit(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_auth_audit_username ON auth_audit(username);
	`

	_, err := e.db.ExecContext(ctx, query)
	return err
}

// Emit inserts the event and sets event.ID
func (e *DBEmitter) Emit(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO auth_audit (
			timestamp, event_type, message,
			username, resource_id, resource_type,
			customers, scopes, roles, groups,
			ip_address, user_agent, request_id, method, path
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		) RETURNING id
	`

	err := e.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), event.Message,
		event.Username, event.ResourceID, event.ResourceType,
		pq.Array(event.Customers), pq.Array(event.Scopes), pq.Array(event.Roles), pq.Array(event.Groups),
		event.Request.IPAddress, event.Request.UserAgent, event.Request.RequestID, event.Request.Method, event.Request.Path,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Cleanup removes events older than retention and returns how many were deleted
func (e *DBEmitter) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := time.Now().Add(-retention)

	result, err := e.db.ExecContext(ctx, "DELETE FROM auth_audit WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// Close does not close the shared database connection
func (e *DBEmitter) Close() error {
	return nil
}
