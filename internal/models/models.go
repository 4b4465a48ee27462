// Package models defines the core data structures for statbot.
//
// It includes the user and record entities, the persisted dialogue session,
// and the inbound event union shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Validation bounds applied to user-supplied measurements. The same limits
// are enforced per step and again when a record is assembled at commit time.
const (
	// DefaultWeightLowerLimit is the minimum accepted body weight in kg.
	DefaultWeightLowerLimit = 1.0
	// DefaultWeightUpperLimit is the maximum accepted body weight in kg.
	DefaultWeightUpperLimit = 500.0
	// DefaultHeightLowerLimit is the minimum accepted height in cm.
	DefaultHeightLowerLimit = 50.0
	// DefaultHeightUpperLimit is the maximum accepted height in cm.
	DefaultHeightUpperLimit = 300.0
)

// Error variables for better error handling and testability
var (
	ErrUserNotRegistered = errors.New("user is not registered")
	ErrUserExists        = errors.New("an active user already exists")
	ErrNoUser            = errors.New("event carries no user identity")
	ErrRecordInvalid     = errors.New("record failed validation")
)

// Limits bounds the measurements a dialogue accepts. A zero value is never
// used; construct with DefaultLimits and override from configuration.
type Limits struct {
	WeightMin float64
	WeightMax float64
	HeightMin float64
	HeightMax float64
}

// DefaultLimits returns the stock measurement bounds.
func DefaultLimits() Limits {
	return Limits{
		WeightMin: DefaultWeightLowerLimit,
		WeightMax: DefaultWeightUpperLimit,
		HeightMin: DefaultHeightLowerLimit,
		HeightMax: DefaultHeightUpperLimit,
	}
}

// User represents a registered participant. Exactly one active user may
// exist per external (chat platform) identity.
type User struct {
	ID         int64      `json:"id"`
	ExternalID int64      `json:"external_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name,omitempty"`
	Height     float64    `json:"height"`
	Timezone   string     `json:"timezone"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt time.Time  `json:"modified_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// FullName returns the display name composed from first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Record is a finalized body-stats measurement produced by a completed
// record-entry dialogue.
type Record struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"user_id"`
	MeasuredAt    time.Time  `json:"measured_at"`
	Weight        float64    `json:"weight"`
	FatPercent    *float64   `json:"fat_percent,omitempty"`
	MusclePercent *float64   `json:"muscle_percent,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ModifiedAt    time.Time  `json:"modified_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// FatWeight derives the absolute fat mass, or nil when the ratio was skipped.
func (r Record) FatWeight() *float64 {
	if r.FatPercent == nil {
		return nil
	}
	w := r.Weight * *r.FatPercent
	return &w
}

// MuscleWeight derives the absolute muscle mass, or nil when the ratio was skipped.
func (r Record) MuscleWeight() *float64 {
	if r.MusclePercent == nil {
		return nil
	}
	w := r.Weight * *r.MusclePercent
	return &w
}

// Summary renders the one-line description bound into the save confirmation.
func (r Record) Summary() string {
	s := fmt.Sprintf("weight: %.0f;", r.Weight)
	if fw := r.FatWeight(); fw != nil {
		s += fmt.Sprintf(" fat weight: %.0f;", *fw)
	}
	if mw := r.MuscleWeight(); mw != nil {
		s += fmt.Sprintf(" muscle weight: %.0f", *mw)
	}
	return s
}

// Validate re-checks the record as a unit against the given limits. Fields
// were each validated in isolation during the dialogue; this is the
// authoritative joint check performed at commit time.
func (r Record) Validate(limits Limits) error {
	if r.UserID <= 0 {
		return fmt.Errorf("%w: missing user id", ErrRecordInvalid)
	}
	if r.MeasuredAt.IsZero() {
		return fmt.Errorf("%w: missing measurement time", ErrRecordInvalid)
	}
	if r.Weight < limits.WeightMin || r.Weight > limits.WeightMax {
		return fmt.Errorf("%w: weight %.2f outside [%.0f, %.0f]", ErrRecordInvalid, r.Weight, limits.WeightMin, limits.WeightMax)
	}
	if r.FatPercent != nil && (*r.FatPercent < 0 || *r.FatPercent > 1) {
		return fmt.Errorf("%w: fat ratio %.4f outside [0, 1]", ErrRecordInvalid, *r.FatPercent)
	}
	if r.MusclePercent != nil && (*r.MusclePercent < 0 || *r.MusclePercent > 1) {
		return fmt.Errorf("%w: muscle ratio %.4f outside [0, 1]", ErrRecordInvalid, *r.MusclePercent)
	}
	return nil
}

// Button is a single interactive keyboard button carrying an opaque payload.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

/// Keyboard is an inline keyboard layout: rows of buttons.
type Keyboard [][]Button
