package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/avelichko/statbot/internal/catalog"
	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
	"github.com/avelichko/statbot/internal/timezone"
)

// Message ids used by the onboarding dialogue.
const (
	msgStartHello                = "start_hello"
	msgOnboardingHeight          = "onboarding_height"
	msgOnboardingHeightInvalid   = "onboarding_height_invalid"
	msgOnboardingHeightRange     = "onboarding_height_out_of_range"
	msgOnboardingTimezone        = "onboarding_timezone"
	msgOnboardingTimezoneInvalid = "onboarding_timezone_invalid"
	msgOnboardingOffsetRange     = "onboarding_timezone_offset_out_of_range"
	msgOnboardingLookupFailed    = "onboarding_timezone_lookup_failed"
	msgOnboardingDone            = "onboarding_done"
)

// OnboardingDialog registers a new user: height -> timezone -> create user.
type OnboardingDialog struct {
	machine
	catalog  *catalog.Catalog
	limits   models.Limits
	resolver timezone.Resolver
}

// NewOnboardingDialog wires the onboarding dialogue.
func NewOnboardingDialog(st store.Store, cat *catalog.Catalog, limits models.Limits, resolver timezone.Resolver) *OnboardingDialog {
	d := &OnboardingDialog{
		catalog:  cat,
		limits:   limits,
		resolver: resolver,
	}
	d.machine = machine{
		kind:  models.DialogOnboarding,
		store: st,
		steps: map[models.StepType]*stepRules{
			models.StepEnterHeight: {
				rules:    []rule{{match: matchDecimal, handle: d.handleHeight}},
				fallback: retryPrompt(cat, msgOnboardingHeightInvalid),
			},
			models.StepEnterTimezone: {
				rules: []rule{
					{match: matchGMTOffset, handle: d.handleGMTOffset},
					{match: matchCoordinates, handle: d.handleCoordinates},
				},
				fallback: retryPrompt(cat, msgOnboardingTimezoneInvalid),
			},
		},
	}
	return d
}

// Kind returns the dialogue kind this machine owns.
func (d *OnboardingDialog) Kind() models.DialogKind {
	return models.DialogOnboarding
}

// Start greets an already-registered sender, or begins the onboarding
// dialogue when no active user exists for the sender's identity.
func (d *OnboardingDialog) Start(ctx context.Context, ev models.Event) (Outcome, error) {
	user, err := d.store.FindActiveUser(ctx, ev.From)
	if err != nil {
		return Outcome{}, err
	}
	if user != nil {
		reply, err := d.catalog.Render(msgStartHello, map[string]string{"user": user.FullName()})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: reply, Done: true}, nil
	}

	sess := models.Session{
		UserKey: ev.From,
		Dialog:  models.DialogOnboarding,
		Step:    models.StepEnterHeight,
	}
	if err := d.store.SaveSession(ctx, sess); err != nil {
		return Outcome{}, fmt.Errorf("failed to start onboarding: %w", err)
	}

	reply, err := d.catalog.Render(msgOnboardingHeight, nil)
	if err != nil {
		return Outcome{}, err
	}
	slog.Info("Onboarding started", "user_key", ev.From)
	return Outcome{Reply: reply}, nil
}

// handleHeight validates a decimal height against the configured bounds.
func (d *OnboardingDialog) handleHeight(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	height, err := parseDecimal(ev.Text)
	if err != nil {
		return Outcome{}, err
	}
	if height < d.limits.HeightMin || height > d.limits.HeightMax {
		reply, err := d.catalog.Render(msgOnboardingHeightRange, map[string]string{
			"min_height": formatBound(d.limits.HeightMin),
			"max_height": formatBound(d.limits.HeightMax),
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: reply}, nil
	}

	sess.Set(models.FieldHeight, formatBound(height))
	sess.Step = models.StepEnterTimezone

	reply, err := d.catalog.Render(msgOnboardingTimezone, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply}, nil
}

// handleGMTOffset maps a typed whole-hour offset to a fixed-offset zone.
func (d *OnboardingDialog) handleGMTOffset(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	offset, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil {
		return Outcome{}, err
	}
	name, err := timezone.FromGMTOffset(offset)
	if err != nil {
		reply, rerr := d.catalog.Render(msgOnboardingOffsetRange, nil)
		if rerr != nil {
			return Outcome{}, rerr
		}
		return Outcome{Reply: reply}, nil
	}
	return d.createUser(ctx, sess, ev, name)
}

// handleCoordinates resolves a coordinate pair through the external lookup.
// A failed lookup is retryable: the user is re-prompted instead of being
// silently defaulted to UTC.
func (d *OnboardingDialog) handleCoordinates(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	lat, lon, err := parseCoordinates(ev)
	if err != nil {
		return Outcome{}, err
	}

	name, err := d.resolver.Resolve(ctx, lat, lon)
	if err != nil {
		var lookupErr *timezone.LookupError
		if errors.As(err, &lookupErr) {
			slog.Warn("Timezone lookup failed, re-prompting", "user_key", sess.UserKey, "status", lookupErr.Status)
			reply, rerr := d.catalog.Render(msgOnboardingLookupFailed, nil)
			if rerr != nil {
				return Outcome{}, rerr
			}
			return Outcome{Reply: reply}, nil
		}
		return Outcome{}, err
	}
	return d.createUser(ctx, sess, ev, name)
}

// createUser finishes onboarding by persisting the new user. A concurrent
// duplicate surfaces as models.ErrUserExists with the session cleared, so
// the loser of the race is not stuck in a dead dialogue.
func (d *OnboardingDialog) createUser(ctx context.Context, sess *models.Session, ev models.Event, tzName string) (Outcome, error) {
	if err := timezone.Validate(tzName); err != nil {
		return Outcome{}, fmt.Errorf("resolved timezone rejected: %w", err)
	}

	heightRaw, ok := sess.Get(models.FieldHeight)
	if !ok {
		return Outcome{}, fmt.Errorf("onboarding session for %d is missing its height", sess.UserKey)
	}
	height, err := strconv.ParseFloat(heightRaw, 64)
	if err != nil {
		return Outcome{}, fmt.Errorf("onboarding session for %d has bad height %q", sess.UserKey, heightRaw)
	}

	user := &models.User{
		ExternalID: ev.From,
		FirstName:  ev.FirstName,
		LastName:   ev.LastName,
		Height:     height,
		Timezone:   tzName,
	}
	if err := d.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrUserExists) {
			if derr := d.store.DeleteSession(ctx, sess.UserKey); derr != nil {
				slog.Error("Failed to clear session after duplicate user", "error", derr, "user_key", sess.UserKey)
			}
		}
		return Outcome{}, err
	}
	slog.Info("User registered", "user_key", ev.From, "user_id", user.ID, "timezone", tzName)

	reply, err := d.catalog.Render(msgOnboardingDone, map[string]string{"user": user.FullName()})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply, Done: true}, nil
}
