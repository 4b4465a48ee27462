// Package store provides storage backends for statbot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/avelichko/statbot/internal/models"
	"github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// PostgresStore persists users, records and sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN and
// runs migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")

	return &PostgresStore{db: db}, nil
}

// FindActiveUser returns the active user for an external identity, or nil.
func (s *PostgresStore) FindActiveUser(ctx context.Context, externalID int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1 AND is_active AND deleted_at IS NULL`,
		externalID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindActiveUser failed", "error", err, "external_id", externalID)
		return nil, fmt.Errorf("failed to query user %d: %w", externalID, err)
	}
	return &u, nil
}

// CreateUser inserts a new active user, or fails with models.ErrUserExists.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (external_id, first_name, last_name, height, timezone, is_active, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7) RETURNING id`,
		user.ExternalID, user.FirstName, nilIfEmpty(user.LastName), user.Height, user.Timezone, now, now,
	).Scan(&user.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			slog.Warn("PostgresStore CreateUser duplicate active user", "external_id", user.ExternalID)
			return models.ErrUserExists
		}
		slog.Error("PostgresStore CreateUser failed", "error", err, "external_id", user.ExternalID)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.IsActive = true
	user.CreatedAt = now
	user.ModifiedAt = now
	slog.Debug("PostgresStore CreateUser succeeded", "id", user.ID, "external_id", user.ExternalID)
	return nil
}

// SaveRecord persists a finalized record in a single transaction.
func (s *PostgresStore) SaveRecord(ctx context.Context, record *models.Record) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = newRecordID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("PostgresStore SaveRecord begin failed", "error", err)
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, user_id, measured_at, weight, fat_percent, muscle_percent, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.UserID, record.MeasuredAt.UTC(), record.Weight,
		nilIfNilFloat(record.FatPercent), nilIfNilFloat(record.MusclePercent), now, now)
	if err != nil {
		slog.Error("PostgresStore SaveRecord insert failed", "error", err, "user_id", record.UserID)
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore SaveRecord commit failed", "error", err, "user_id", record.UserID)
		return fmt.Errorf("failed to commit record: %w", err)
	}
	record.CreatedAt = now
	record.ModifiedAt = now
	slog.Debug("PostgresStore SaveRecord succeeded", "id", record.ID, "user_id", record.UserID)
	return nil
}

// ListRecords returns the newest non-deleted records for a user.
func (s *PostgresStore) ListRecords(ctx context.Context, userID int64, limit int) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE user_id = $1 AND deleted_at IS NULL ORDER BY measured_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		slog.Error("PostgresStore ListRecords query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			slog.Error("PostgresStore ListRecords scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return records, nil
}

// GetSession returns the in-flight session for a user key, or nil.
func (s *PostgresStore) GetSession(ctx context.Context, userKey int64) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_key, dialog, step, fields, created_at, updated_at FROM sessions WHERE user_key = $1`,
		userKey)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "user_key", userKey)
		return nil, fmt.Errorf("failed to query session %d: %w", userKey, err)
	}
	return &sess, nil
}

// SaveSession creates or replaces the session for its user key.
func (s *PostgresStore) SaveSession(ctx context.Context, session models.Session) error {
	fields, err := marshalFields(session.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_key, dialog, step, fields, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_key) DO UPDATE SET dialog = EXCLUDED.dialog, step = EXCLUDED.step,
		 fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`,
		session.UserKey, session.Dialog, session.Step, nilIfEmpty(fields), now, now)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "user_key", session.UserKey)
		return fmt.Errorf("failed to save session %d: %w", session.UserKey, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "user_key", session.UserKey, "dialog", session.Dialog, "step", session.Step)
	return nil
}

// DeleteSession removes the session for a user key.
func (s *PostgresStore) DeleteSession(ctx context.Context, userKey int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_key = $1`, userKey)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "user_key", userKey)
		return fmt.Errorf("failed to delete session %d: %w", userKey, err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
