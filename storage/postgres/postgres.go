// Package postgres stores audit events in a PostgreSQL table, keeping a
// queryable projection of common fields alongside the full event as JSONB.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigil-systems/vigil/audit"
	"github.com/vigil-systems/vigil/common/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDuplicateEvent is returned when an event with the same event_id has
// already been stored.
var ErrDuplicateEvent = errors.New("event already stored")

// ErrEventNotFound is returned when a queried event does not exist.
var ErrEventNotFound = errors.New("event not found")

// Backend persists audit events to the audit_events table.
type Backend struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection. Migrations are
// not run here; call Migrate first or use the serve command, which does both.
func New(ctx context.Context, connString string) (*Backend, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Backend{pool: pool}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(connString string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string { return "postgres" }

// Store inserts the event. The full event travels as JSONB; the projected
// columns exist for indexing and filtering only.
func (b *Backend) Store(ctx context.Context, event *audit.AuditEvent) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	eventData, err := json.Marshal(event)
	if err != nil {
		return &audit.StorageError{Backend: "postgres", Err: fmt.Errorf("failed to marshal event: %w", err)}
	}

	var username, actorID, ipAddress string
	if event.Actor != nil {
		username = event.Actor.Username
		actorID = event.Actor.ID
		ipAddress = event.Actor.IPAddress
	}

	var sessionID, requestID string
	if event.Session != nil {
		sessionID = event.Session.SessionID
		requestID = event.Session.RequestID
	}

	var status string
	if event.Action.Result != nil {
		status = event.Action.Result.Status
	}

	var durationMS *float64
	if event.Performance != nil {
		durationMS = event.Performance.DurationMS
	}

	var errOccurred bool
	var errType, errMessage string
	if event.Error != nil {
		errOccurred = event.Error.Occurred
		errType = event.Error.Type
		errMessage = event.Error.Message
	}

	query := `
		INSERT INTO audit_events (
			event_id, timestamp, version, action_type, category, operation,
			username, actor_id, ip_address, session_id, request_id,
			status, duration_ms, error_occurred, error_type, error_message,
			event_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = b.pool.Exec(ctx, query,
		event.EventID, event.Timestamp, event.Version,
		event.Action.Type, event.Action.Category, event.Action.Operation,
		username, actorID, ipAddress, sessionID, requestID,
		status, durationMS, errOccurred, errType, errMessage,
		eventData,
	)

	if err != nil {
		// Unique constraint violation (23505) means the event was already
		// stored, likely a retried submission.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &audit.StorageError{Backend: "postgres", Err: ErrDuplicateEvent}
		}
		return &audit.StorageError{Backend: "postgres", Err: fmt.Errorf("failed to store event: %w", err)}
	}

	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// QueryFilter narrows Query and Count results. Zero values mean no
// constraint.
type QueryFilter struct {
	Category   string
	ActionType string
	Username   string
	Status     string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

const defaultQueryLimit = 100

// Query returns stored events matching the filter, newest first.
func (b *Backend) Query(ctx context.Context, filter QueryFilter) ([]*audit.AuditEvent, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	where, args := filter.clauses()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)
	limitArg := len(args)
	args = append(args, filter.Offset)
	offsetArg := len(args)

	query := fmt.Sprintf(`
		SELECT event_data
		FROM audit_events
		%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, where, limitArg, offsetArg)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*audit.AuditEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var event audit.AuditEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// GetEvent returns one stored event by its id.
func (b *Backend) GetEvent(ctx context.Context, eventID string) (*audit.AuditEvent, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT event_data FROM audit_events WHERE event_id = $1`

	var data []byte
	err := b.pool.QueryRow(ctx, query, eventID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	var event audit.AuditEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &event, nil
}

// Count returns the number of stored events matching the filter.
func (b *Backend) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	where, args := filter.clauses()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM audit_events %s`, where)

	var count int64
	if err := b.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// clauses builds the WHERE clause and its ordered arguments.
func (f QueryFilter) clauses() (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.ActionType != "" {
		add("action_type = $%d", f.ActionType)
	}
	if f.Username != "" {
		add("username = $%d", f.Username)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.Since.IsZero() {
		add("timestamp >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("timestamp <= $%d", f.Until)
	}

	if len(conditions) == 0 {
		return "", nil
	}

	where := "WHERE " + conditions[0]
	for _, cond := range conditions[1:] {
		where += " AND " + cond
	}
	return where, args
}
