// Package store provides storage backends for statbot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/avelichko/statbot/internal/models"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists users, records and sessions in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database file; its directory is created when
// missing, and migrations run on every open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

const userColumns = "id, external_id, first_name, last_name, height, timezone, is_active, created_at, modified_at, deleted_at"

// FindActiveUser returns the active user for an external identity, or nil.
func (s *SQLiteStore) FindActiveUser(ctx context.Context, externalID int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ? AND is_active = 1 AND deleted_at IS NULL`,
		externalID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindActiveUser failed", "error", err, "external_id", externalID)
		return nil, fmt.Errorf("failed to query user %d: %w", externalID, err)
	}
	return &u, nil
}

// CreateUser inserts a new active user, or fails with models.ErrUserExists.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (external_id, first_name, last_name, height, timezone, is_active, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		user.ExternalID, user.FirstName, nilIfEmpty(user.LastName), user.Height, user.Timezone, now, now)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
			slog.Warn("SQLiteStore CreateUser duplicate active user", "external_id", user.ExternalID)
			return models.ErrUserExists
		}
		slog.Error("SQLiteStore CreateUser failed", "error", err, "external_id", user.ExternalID)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted user id: %w", err)
	}
	user.ID = id
	user.IsActive = true
	user.CreatedAt = now
	user.ModifiedAt = now
	slog.Debug("SQLiteStore CreateUser succeeded", "id", id, "external_id", user.ExternalID)
	return nil
}

// SaveRecord persists a finalized record in a single transaction.
func (s *SQLiteStore) SaveRecord(ctx context.Context, record *models.Record) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = newRecordID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("SQLiteStore SaveRecord begin failed", "error", err)
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, user_id, measured_at, weight, fat_percent, muscle_percent, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.UserID, record.MeasuredAt.UTC(), record.Weight,
		nilIfNilFloat(record.FatPercent), nilIfNilFloat(record.MusclePercent), now, now)
	if err != nil {
		slog.Error("SQLiteStore SaveRecord insert failed", "error", err, "user_id", record.UserID)
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore SaveRecord commit failed", "error", err, "user_id", record.UserID)
		return fmt.Errorf("failed to commit record: %w", err)
	}
	record.CreatedAt = now
	record.ModifiedAt = now
	slog.Debug("SQLiteStore SaveRecord succeeded", "id", record.ID, "user_id", record.UserID)
	return nil
}

const recordColumns = "id, user_id, measured_at, weight, fat_percent, muscle_percent, created_at, modified_at, deleted_at"

// ListRecords returns the newest non-deleted records for a user.
func (s *SQLiteStore) ListRecords(ctx context.Context, userID int64, limit int) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE user_id = ? AND deleted_at IS NULL ORDER BY measured_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		slog.Error("SQLiteStore ListRecords query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			slog.Error("SQLiteStore ListRecords scan failed", "error", err)
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
func (s *SQLiteStore) GetSession(ctx context.Context, userKey int64) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_key, dialog, step, fields, created_at, updated_at FROM sessions WHERE user_key = ?`,
		userKey)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "user_key", userKey)
		return nil, fmt.Errorf("failed to query session %d: %w", userKey, err)
	}
	return &sess, nil
}

// SaveSession creates or replaces the session for its user key.
func (s *SQLiteStore) SaveSession(ctx context.Context, session models.Session) error {
	fields, err := marshalFields(session.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_key, dialog, step, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_key) DO UPDATE SET dialog = excluded.dialog, step = excluded.step,
		 fields = excluded.fields, updated_at = excluded.updated_at`,
		session.UserKey, session.Dialog, session.Step, nilIfEmpty(fields), now, now)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "user_key", session.UserKey)
		return fmt.Errorf("failed to save session %d: %w", session.UserKey, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "user_key", session.UserKey, "dialog", session.Dialog, "step", session.Step)
	return nil
}

// DeleteSession removes the session for a user key.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userKey int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_key = ?`, userKey)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "user_key", userKey)
		return fmt.Errorf("failed to delete session %d: %w", userKey, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
