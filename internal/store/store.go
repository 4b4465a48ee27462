// Package store provides storage backends for statbot.
//
// It persists users, finalized measurement records and in-flight dialogue
// sessions. SQLite and PostgreSQL backends share one interface; an in-memory
// implementation backs the tests.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/avelichko/statbot/internal/models"
	"github.com/oklog/ulid/v2"
)

// Store is the repository interface consumed by the dialogue layer.
type Store interface {
	// FindActiveUser returns the active user for an external identity, or
	// nil when none exists.
	FindActiveUser(ctx context.Context, externalID int64) (*models.User, error)

	// CreateUser inserts a new active user, stamping timestamps and the
	// generated ID. Returns models.ErrUserExists when an active user for
	// the same external identity already exists.
	CreateUser(ctx context.Context, user *models.User) error

	// SaveRecord persists a finalized record in a single transaction,
	// stamping its ULID and timestamps.
	SaveRecord(ctx context.Context, record *models.Record) error

	// ListRecords returns the most recent non-deleted records for a user,
	// newest first.
	ListRecords(ctx context.Context, userID int64, limit int) ([]models.Record, error)

	// GetSession returns the in-flight dialogue session for a user key, or
	// nil when no dialogue is active.
	GetSession(ctx context.Context, userKey int64) (*models.Session, error)

	// SaveSession creates or replaces the session for its user key.
	SaveSession(ctx context.Context, session models.Session) error

	// DeleteSession removes the session for a user key. Deleting an absent
	// session is not an error.
	DeleteSession(ctx context.Context, userKey int64) error

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// newRecordID generates a lexicographically sortable record identifier.
func newRecordID() string {
	return ulid.Make().String()
}

// InMemoryStore is a Store kept entirely in process memory. It backs unit
// tests and has no durability.
type InMemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	users    []models.User
	records  []models.Record
	sessions map[int64]models.Session
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[int64]models.Session)}
}

// FindActiveUser returns the active user for an external identity, or nil.
func (s *InMemoryStore) FindActiveUser(ctx context.Context, externalID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		u := s.users[i]
		if u.ExternalID == externalID && u.IsActive && u.DeletedAt == nil {
			return &u, nil
		}
	}
	return nil, nil
}

// CreateUser inserts a new active user or fails with models.ErrUserExists.
func (s *InMemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == user.ExternalID && u.IsActive && u.DeletedAt == nil {
			return models.ErrUserExists
		}
	}
	s.nextID++
	now := time.Now().UTC()
	user.ID = s.nextID
	user.IsActive = true
	user.CreatedAt = now
	user.ModifiedAt = now
	s.users = append(s.users, *user)
	return nil
}

// SaveRecord persists a finalized record.
func (s *InMemoryStore) SaveRecord(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = newRecordID()
	}
	record.CreatedAt = now
	record.ModifiedAt = now
	s.records = append(s.records, *record)
	return nil
}

// ListRecords returns the newest records for a user.
func (s *InMemoryStore) ListRecords(ctx context.Context, userID int64, limit int) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Record
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[i]
		if r.UserID == userID && r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetSession returns the in-flight session for a user key, or nil.
func (s *InMemoryStore) GetSession(ctx context.Context, userKey int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userKey]
	if !ok {
		return nil, nil
	}
	// Copy the field map so callers cannot mutate stored state in place.
	cp := sess
	cp.Fields = make(map[models.FieldKey]string, len(sess.Fields))
	for k, v := range sess.Fields {
		cp.Fields[k] = v
	}
	return &cp, nil
}

// SaveSession creates or replaces the session for its user key.
func (s *InMemoryStore) SaveSession(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.sessions[session.UserKey]; ok {
		session.CreatedAt = existing.CreatedAt
	} else {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	s.sessions[session.UserKey] = session
	return nil
}

// DeleteSession removes the session for a user key.
func (s *InMemoryStore) DeleteSession(ctx context.Context, userKey int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userKey)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
