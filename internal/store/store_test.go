package store

import (
	"context"
	"errors"
	"testing"

	"github.com/avelichko/statbot/internal/models"
)

func TestInMemoryStoreUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	u, err := s.FindActiveUser(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Fatalf("expected no user, got %+v", u)
	}

	user := &models.User{ExternalID: 42, FirstName: "Ann", Height: 170, Timezone: "Europe/Kyiv"}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected assigned user id")
	}
	if user.CreatedAt.IsZero() || user.ModifiedAt.IsZero() {
		t.Error("expected stamped timestamps")
	}

	u, err = s.FindActiveUser(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.FirstName != "Ann" {
		t.Fatalf("expected to find Ann, got %+v", u)
	}
}

func TestInMemoryStoreDuplicateActiveUser(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if err := s.CreateUser(ctx, &models.User{ExternalID: 7, FirstName: "A", Height: 170, Timezone: "Etc/GMT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.CreateUser(ctx, &models.User{ExternalID: 7, FirstName: "B", Height: 180, Timezone: "Etc/GMT"})
	if !errors.Is(err, models.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
	// A different external identity is unaffected.
	if err := s.CreateUser(ctx, &models.User{ExternalID: 8, FirstName: "C", Height: 160, Timezone: "Etc/GMT"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInMemoryStoreRecords(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	fat := 0.2
	r := &models.Record{UserID: 1, Weight: 70, FatPercent: &fat}
	if err := s.SaveRecord(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID == "" {
		t.Error("expected generated record id")
	}
	if len(r.ID) != 26 {
		t.Errorf("expected 26-character ULID, got %q", r.ID)
	}

	if err := s.SaveRecord(ctx, &models.Record{UserID: 1, Weight: 71}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveRecord(ctx, &models.Record{UserID: 2, Weight: 90}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := s.ListRecords(ctx, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for user 1, got %d", len(records))
	}
	// Newest first.
	if records[0].Weight != 71 {
		t.Errorf("expected newest record first, got weight %.0f", records[0].Weight)
	}
}

func TestInMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	sess, err := s.GetSession(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected no session, got %+v", sess)
	}

	save := models.Session{UserKey: 5, Dialog: models.DialogRecord, Step: models.StepEnterWeight}
	save.Set(models.FieldUserID, "1")
	if err := s.SaveSession(ctx, save); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, err = s.GetSession(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess == nil || sess.Step != models.StepEnterWeight {
		t.Fatalf("expected stored session, got %+v", sess)
	}
	if v, _ := sess.Get(models.FieldUserID); v != "1" {
		t.Errorf("expected user_id field, got %q", v)
	}

	// Mutating the returned copy must not leak into the store.
	sess.Set(models.FieldWeight, "70")
	again, _ := s.GetSession(ctx, 5)
	if _, ok := again.Get(models.FieldWeight); ok {
		t.Error("mutation of returned session leaked into the store")
	}

	if err := s.DeleteSession(ctx, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, _ = s.GetSession(ctx, 5)
	if sess != nil {
		t.Error("expected session deleted")
	}
	// Deleting again is not an error.
	if err := s.DeleteSession(ctx, 5); err != nil {
		t.Errorf("unexpected error on double delete: %v", err)
	}
}

func TestMarshalFieldsRoundTrip(t *testing.T) {
	fields := map[models.FieldKey]string{
		models.FieldWeight:     "70.5",
		models.FieldFatPercent: models.FieldSkipped,
	}
	encoded, err := marshalFields(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if encoded == "" {
		t.Fatal("expected non-empty encoding")
	}

	empty, err := marshalFields(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty != "" {
		t.Errorf("expected empty string for nil fields, got %q", empty)
	}
}
