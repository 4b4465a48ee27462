// Package dialog implements the stateful dialogue session machines.
//
// A dialogue is a bounded multi-step data-collection conversation. All state
// between inbound events lives in the session store; the machines themselves
// are stateless and re-read the session on every event. Each step declares an
// ordered list of (matcher, handler) rules evaluated in declaration order,
// with a mandatory fallback that never mutates the session.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/avelichko/statbot/internal/catalog"
	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
)

// Outcome is the result of consuming one inbound event. Recoverable
// validation failures are ordinary outcomes carrying a retry prompt; only
// genuine faults travel on the error channel.
type Outcome struct {
	// Reply is the rendered text to send back, empty when nothing is sent.
	Reply string
	// Keyboard is an optional inline keyboard attached to Reply.
	Keyboard models.Keyboard
	// EditKeyboard, when set, re-renders the keyboard of the message the
	// event originated from instead of sending a new message.
	EditKeyboard models.Keyboard
	// Ignored marks an event the dialogue does not own (e.g. a widget token
	// with a foreign name). Nothing was changed and no reply is due.
	Ignored bool
	// Done marks the dialogue finished; the session has been cleared.
	Done bool
}

// Handler consumes an event for a session. It may mutate the session fields
// and step in place; the machine persists the session afterwards.
type Handler func(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error)

// Matcher reports whether a rule's handler accepts the event.
type Matcher func(ev models.Event) bool

// rule pairs a matcher with its handler. Rules are evaluated in the order
// they were declared; the first structural match wins.
type rule struct {
	match  Matcher
	handle Handler
}

// stepRules holds the ordered rules and the mandatory fallback for one step.
type stepRules struct {
	rules    []rule
	fallback Handler
}

// machine is the shared transition engine embedded by each dialogue kind.
type machine struct {
	kind  models.DialogKind
	store store.Store
	steps map[models.StepType]*stepRules
}

// Handle routes the event to the rules of the session's current step and
// persists the resulting session state. Fallback handlers and ignored events
// leave the stored session untouched.
func (m *machine) Handle(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	if sess == nil || sess.Dialog != m.kind {
		return Outcome{}, fmt.Errorf("session does not belong to dialogue %s", m.kind)
	}
	sr, ok := m.steps[sess.Step]
	if !ok {
		// An unknown step means corrupted state, not user error.
		return Outcome{}, fmt.Errorf("dialogue %s has no step %s", m.kind, sess.Step)
	}

	for _, r := range sr.rules {
		if !r.match(ev) {
			continue
		}
		outcome, err := r.handle(ctx, sess, ev)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Ignored {
			return outcome, nil
		}
		if outcome.Done {
			if err := m.store.DeleteSession(ctx, sess.UserKey); err != nil {
				return Outcome{}, fmt.Errorf("failed to clear session: %w", err)
			}
			slog.Info("Dialogue finished", "dialog", m.kind, "user_key", sess.UserKey)
			return outcome, nil
		}
		if err := m.store.SaveSession(ctx, *sess); err != nil {
			return Outcome{}, fmt.Errorf("failed to persist session: %w", err)
		}
		slog.Debug("Dialogue step handled", "dialog", m.kind, "user_key", sess.UserKey, "step", sess.Step)
		return outcome, nil
	}

	slog.Debug("Dialogue input did not match, falling back", "dialog", m.kind, "user_key", sess.UserKey, "step", sess.Step, "kind", ev.Kind)
	return sr.fallback(ctx, sess, ev)
}

// decimalPattern accepts a number with an optional comma or dot fraction.
var decimalPattern = regexp.MustCompile(`^\s*\d+([.,]\d+)?\s*$`)

// percentPattern accepts a whole percentage (one or two digits) or an
// already-fractional ratio below one.
var percentPattern = regexp.MustCompile(`^\d{1,2}$|^0[.,]\d{1,2}$`)

// gmtOffsetPattern accepts a signed small integer GMT offset.
var gmtOffsetPattern = regexp.MustCompile(`^\s*[+-]?\d{1,2}\s*$`)

// coordinatesPattern accepts a "lat, lon" decimal pair.
var coordinatesPattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)

func matchDecimal(ev models.Event) bool {
	return ev.Kind == models.InputText && decimalPattern.MatchString(ev.Text)
}

func matchPercent(ev models.Event) bool {
	return ev.Kind == models.InputText && percentPattern.MatchString(strings.TrimSpace(ev.Text))
}

func matchSkip(ev models.Event) bool {
	if ev.Kind != models.InputText {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(ev.Text))
	return text == "skip" || text == "/skip"
}

func matchGMTOffset(ev models.Event) bool {
	return ev.Kind == models.InputText && gmtOffsetPattern.MatchString(ev.Text)
}

func matchCoordinates(ev models.Event) bool {
	if ev.Kind == models.InputLocation {
		return true
	}
	return ev.Kind == models.InputText && coordinatesPattern.MatchString(ev.Text)
}

// parseDecimal converts a matched decimal string, accepting both separators.
func parseDecimal(text string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	return strconv.ParseFloat(normalized, 64)
}

// parsePercent converts a matched percentage. Values at or above one are
// whole percentages and get divided by 100; values below one are already
// fractional ratios.
func parsePercent(text string) (float64, error) {
	v, err := parseDecimal(text)
	if err != nil {
		return 0, err
	}
	if v >= 1 {
		v /= 100
	}
	return v, nil
}

// parseCoordinates extracts a latitude/longitude pair from the event.
func parseCoordinates(ev models.Event) (lat, lon float64, err error) {
	if ev.Kind == models.InputLocation {
		return ev.Latitude, ev.Longitude, nil
	}
	m := coordinatesPattern.FindStringSubmatch(ev.Text)
	if m == nil {
		return 0, 0, fmt.Errorf("text %q is not a coordinate pair", ev.Text)
	}
	lat, err = strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// formatBound renders a numeric limit for template bindings.
func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// retryPrompt builds a fallback handler that renders a fixed retry message
// without touching the session. Widget tokens reaching a fallback belong to
// someone else and are ignored rather than answered.
func retryPrompt(cat *catalog.Catalog, messageID string) Handler {
	return func(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
		if ev.Kind == models.InputWidget {
			return Outcome{Ignored: true}, nil
		}
		reply, err := cat.Render(messageID, nil)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: reply}, nil
	}
}
