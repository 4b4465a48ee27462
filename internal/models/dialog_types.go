// Package models defines dialogue type definitions to avoid circular imports.
package models

import "time"

// DialogKind identifies a specific multi-step dialogue.
type DialogKind string

// StepType represents a specific step within a dialogue.
type StepType string

// FieldKey represents a key for a value accumulated during a dialogue.
type FieldKey string

// Dialogue kind constants.
const (
	DialogOnboarding DialogKind = "onboarding"
	DialogRecord     DialogKind = "record"
)

// Step constants for the record-entry dialogue.
const (
	StepEnterTime          StepType = "ENTER_TIME"
	StepEnterWeight        StepType = "ENTER_WEIGHT"
	StepEnterFatPercent    StepType = "ENTER_FAT_PERCENT"
	StepEnterMusclePercent StepType = "ENTER_MUSCLE_PERCENT"
)

// Step constants for the onboarding dialogue.
const (
	StepEnterHeight   StepType = "ENTER_HEIGHT"
	StepEnterTimezone StepType = "ENTER_TIMEZONE"
)

// Field key constants.
const (
	FieldUserID        FieldKey = "user_id"
	FieldTimezone      FieldKey = "timezone"
	FieldMeasuredAt    FieldKey = "measured_at"
	FieldWeight        FieldKey = "weight"
	FieldFatPercent    FieldKey = "fat_percent"
	FieldMusclePercent FieldKey = "muscle_percent"
	FieldHeight        FieldKey = "height"
)

// FieldSkipped marks an optional field the user explicitly skipped. It is
// distinct from the key being absent, which means the step has not run yet.
const FieldSkipped = "skip"

// Session is the per-user dialogue state persisted between inbound events.
// Nothing survives an event except what is stored here.
type Session struct {
	UserKey   int64               `json:"user_key"`
	Dialog    DialogKind          `json:"dialog"`
	Step      StepType            `json:"step"`
	Fields    map[FieldKey]string `json:"fields,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Set stores a field value, allocating the map on first use.
func (s *Session) Set(key FieldKey, value string) {
	if s.Fields == nil {
		s.Fields = make(map[FieldKey]string)
	}
	s.Fields[key] = value
}

// Get returns a field value and whether it was present.
func (s *Session) Get(key FieldKey) (string, bool) {
	v, ok := s.Fields[key]
	return v, ok
}
