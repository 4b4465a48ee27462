package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avelichko/statbot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNilFloat unwraps an optional float for a nullable column.
func nilIfNilFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanUser scans a user row in the canonical column order.
func scanUser(row scanner) (models.User, error) {
	var u models.User
	var lastName sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.FirstName, &lastName, &u.Height, &u.Timezone,
		&u.IsActive, &u.CreatedAt, &u.ModifiedAt, &deletedAt,
	)
	if err != nil {
		return u, err
	}
	u.LastName = lastName.String
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return u, nil
}

// scanRecord scans a record row in the canonical column order.
func scanRecord(row scanner) (models.Record, error) {
	var r models.Record
	var fat, muscle sql.NullFloat64
	var deletedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.UserID, &r.MeasuredAt, &r.Weight, &fat, &muscle,
		&r.CreatedAt, &r.ModifiedAt, &deletedAt,
	)
	if err != nil {
		return r, err
	}
	if fat.Valid {
		r.FatPercent = &fat.Float64
	}
	if muscle.Valid {
		r.MusclePercent = &muscle.Float64
	}
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	return r, nil
}

// scanSession scans a session row, decoding the fields JSON column.
func scanSession(row scanner) (models.Session, error) {
	var s models.Session
	var fieldsJSON sql.NullString
	err := row.Scan(&s.UserKey, &s.Dialog, &s.Step, &fieldsJSON, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &s.Fields); err != nil {
			return s, fmt.Errorf("failed to decode session fields: %w", err)
		}
	}
	return s, nil
}

// marshalFields encodes the session field map for the fields JSON column.
func marshalFields(fields map[models.FieldKey]string) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode session fields: %w", err)
	}
	return string(data), nil
}
