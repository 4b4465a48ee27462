package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/avelichko/statbot/internal/catalog"
	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
)

// testCatalog covers every message id the dialogues render.
func testCatalog() *catalog.Catalog {
	return catalog.New(map[string]string{
		msgStartHello:                "Hello, {{user}}",
		msgOnboardingHeight:          "What is your height?",
		msgOnboardingHeightInvalid:   "That does not look like a height, try again",
		msgOnboardingHeightRange:     "Height must be between {{min_height}} and {{max_height}}",
		msgOnboardingTimezone:        "Send your GMT offset or location",
		msgOnboardingTimezoneInvalid: "That does not look like a timezone, try again",
		msgOnboardingOffsetRange:     "Offset must be between -12 and +14",
		msgOnboardingLookupFailed:    "Could not resolve your timezone, try again",
		msgOnboardingDone:            "Welcome, {{user}}",
		msgRecordTime:                "Pick the measurement time",
		msgRecordTimeInvalid:         "Use the picker buttons to choose the time",
		msgRecordWeight:              "Enter your weight",
		msgRecordWeightInvalid:       "That does not look like a weight, try again",
		msgRecordWeightOutOfRange:    "Weight must be between {{min_weight}} and {{max_weight}}",
		msgRecordFat:                 "Enter your fat percentage or skip",
		msgRecordFatInvalid:          "That does not look like a percentage, try again",
		msgRecordMuscle:              "Enter your muscle percentage or skip",
		msgRecordMuscleInvalid:       "That does not look like a percentage, try again",
		msgRecordSaved:               "Saved: {{record_data}}",
		msgRecordInvalid:             "The record did not pass validation and was discarded",
	})
}

func textEvent(from int64, text string) models.Event {
	return models.Event{From: from, Kind: models.InputText, Text: text, FirstName: "Ann", Time: time.Now()}
}

func widgetEvent(from int64, token string) models.Event {
	return models.Event{From: from, Kind: models.InputWidget, Token: token, MessageID: 10, Time: time.Now()}
}

func locationEvent(from int64, lat, lon float64) models.Event {
	return models.Event{From: from, Kind: models.InputLocation, Latitude: lat, Longitude: lon, FirstName: "Ann", Time: time.Now()}
}

// mustSession loads the stored session and fails the test when absent.
func mustSession(t *testing.T, st store.Store, userKey int64) *models.Session {
	t.Helper()
	sess, err := st.GetSession(context.Background(), userKey)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if sess == nil {
		t.Fatalf("expected an active session for %d", userKey)
	}
	return sess
}

// registerUser seeds an active user and returns it.
func registerUser(t *testing.T, st store.Store, externalID int64, tz string) *models.User {
	t.Helper()
	user := &models.User{ExternalID: externalID, FirstName: "Ann", Height: 170, Timezone: tz}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}
