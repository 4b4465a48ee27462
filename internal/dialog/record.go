package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/avelichko/statbot/internal/catalog"
	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
	"github.com/avelichko/statbot/internal/timepicker"
)

// Message ids used by the record-entry dialogue.
const (
	msgRecordTime             = "record_time"
	msgRecordTimeInvalid      = "record_time_invalid"
	msgRecordWeight           = "record_weight"
	msgRecordWeightInvalid    = "record_weight_invalid"
	msgRecordWeightOutOfRange = "record_weight_out_of_range"
	msgRecordFat              = "record_fat"
	msgRecordFatInvalid       = "record_fat_invalid"
	msgRecordMuscle           = "record_muscle"
	msgRecordMuscleInvalid    = "record_muscle_invalid"
	msgRecordSaved            = "record_saved"
	msgRecordInvalid          = "record_invalid"
)

// DefaultRecordPickerName identifies the record dialogue's time picker.
// Tokens carrying any other name are not this dialogue's to handle.
const DefaultRecordPickerName = "record"

// RecordDialog collects one body-stats measurement:
// time -> weight -> fat ratio -> muscle ratio -> commit.
type RecordDialog struct {
	machine
	catalog    *catalog.Catalog
	limits     models.Limits
	pickerName string
	now        func() time.Time
}

// NewRecordDialog wires the record-entry dialogue. pickerName scopes the
// time-picker widget to this dialogue instance; pass
// DefaultRecordPickerName unless several record dialogues coexist.
func NewRecordDialog(st store.Store, cat *catalog.Catalog, limits models.Limits, pickerName string) *RecordDialog {
	d := &RecordDialog{
		catalog:    cat,
		limits:     limits,
		pickerName: pickerName,
		now:        time.Now,
	}
	d.machine = machine{
		kind:  models.DialogRecord,
		store: st,
		steps: map[models.StepType]*stepRules{
			models.StepEnterTime: {
				rules:    []rule{{match: d.matchOwnToken, handle: d.handleTimeToken}},
				fallback: d.fallbackTime,
			},
			models.StepEnterWeight: {
				rules:    []rule{{match: matchDecimal, handle: d.handleWeight}},
				fallback: retryPrompt(cat, msgRecordWeightInvalid),
			},
			models.StepEnterFatPercent: {
				rules: []rule{
					{match: matchSkip, handle: d.handleFatSkip},
					{match: matchPercent, handle: d.handleFatPercent},
				},
				fallback: retryPrompt(cat, msgRecordFatInvalid),
			},
			models.StepEnterMusclePercent: {
				rules: []rule{
					{match: matchSkip, handle: d.handleMuscleSkip},
					{match: matchPercent, handle: d.handleMusclePercent},
				},
				fallback: retryPrompt(cat, msgRecordMuscleInvalid),
			},
		},
	}
	return d
}

// Kind returns the dialogue kind this machine owns.
func (d *RecordDialog) Kind() models.DialogKind {
	return models.DialogRecord
}

// Start begins a fresh record-entry dialogue for the sender, overwriting any
// dialogue already in flight. It fails with models.ErrUserNotRegistered when
// the sender has not completed onboarding.
func (d *RecordDialog) Start(ctx context.Context, ev models.Event) (Outcome, error) {
	user, err := d.store.FindActiveUser(ctx, ev.From)
	if err != nil {
		return Outcome{}, err
	}
	if user == nil {
		return Outcome{}, fmt.Errorf("cannot start record dialogue for %d: %w", ev.From, models.ErrUserNotRegistered)
	}

	sess := models.Session{
		UserKey: ev.From,
		Dialog:  models.DialogRecord,
		Step:    models.StepEnterTime,
	}
	sess.Set(models.FieldUserID, strconv.FormatInt(user.ID, 10))
	sess.Set(models.FieldTimezone, user.Timezone)
	if err := d.store.SaveSession(ctx, sess); err != nil {
		return Outcome{}, fmt.Errorf("failed to start record dialogue: %w", err)
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		return Outcome{}, fmt.Errorf("user %d has unloadable timezone %s: %w", user.ID, user.Timezone, err)
	}
	picker := timepicker.FromTime(d.pickerName, d.now().In(loc))

	reply, err := d.catalog.Render(msgRecordTime, nil)
	if err != nil {
		return Outcome{}, err
	}
	slog.Info("Record dialogue started", "user_key", ev.From, "user_id", user.ID)
	return Outcome{Reply: reply, Keyboard: timepicker.Keyboard(picker)}, nil
}

// matchOwnToken accepts widget tokens that decode and carry this dialogue's
// picker name. Foreign or malformed tokens are not a match.
func (d *RecordDialog) matchOwnToken(ev models.Event) bool {
	if ev.Kind != models.InputWidget {
		return false
	}
	v, err := timepicker.Decode(ev.Token)
	return err == nil && v.Name == d.pickerName
}

// handleTimeToken consumes a tap on the dialogue's own time picker. An
// unconfirmed value re-renders the keyboard in place; a confirmed value is
// resolved to a UTC instant and advances the dialogue.
func (d *RecordDialog) handleTimeToken(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	v, err := timepicker.Decode(ev.Token)
	if err != nil {
		// The matcher already decoded this token.
		return Outcome{}, err
	}

	if !v.Confirmed {
		return Outcome{EditKeyboard: timepicker.Keyboard(v)}, nil
	}

	tz, ok := sess.Get(models.FieldTimezone)
	if !ok {
		return Outcome{}, fmt.Errorf("record session for %d is missing its timezone", sess.UserKey)
	}
	measuredAt, err := timepicker.ToUTCInstant(v.Hour, v.Minute, tz, d.now())
	if err != nil {
		return Outcome{}, err
	}
	slog.Debug("Record time confirmed", "user_key", sess.UserKey, "measured_at", measuredAt)

	sess.Set(models.FieldMeasuredAt, measuredAt.Format(time.RFC3339))
	sess.Step = models.StepEnterWeight

	reply, err := d.catalog.Render(msgRecordWeight, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply}, nil
}

// fallbackTime rejects input that is not this dialogue's picker token.
// Widget tokens owned by someone else are ignored so another handler may
// claim them; free text gets a retry prompt.
func (d *RecordDialog) fallbackTime(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	if ev.Kind == models.InputWidget {
		slog.Debug("Ignoring foreign widget token", "user_key", sess.UserKey, "dialog", d.kind)
		return Outcome{Ignored: true}, nil
	}
	reply, err := d.catalog.Render(msgRecordTimeInvalid, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply}, nil
}

// handleWeight validates a decimal weight against the configured bounds.
func (d *RecordDialog) handleWeight(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	weight, err := parseDecimal(ev.Text)
	if err != nil {
		return Outcome{}, err
	}
	if weight < d.limits.WeightMin || weight > d.limits.WeightMax {
		reply, err := d.catalog.Render(msgRecordWeightOutOfRange, map[string]string{
			"min_weight": formatBound(d.limits.WeightMin),
			"max_weight": formatBound(d.limits.WeightMax),
		})
		if err != nil {
			return Outcome{}, err
		}
		// Out of range: step and fields stay unchanged.
		return Outcome{Reply: reply}, nil
	}

	sess.Set(models.FieldWeight, formatBound(weight))
	sess.Step = models.StepEnterFatPercent

	reply, err := d.catalog.Render(msgRecordFat, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply}, nil
}

func (d *RecordDialog) handleFatSkip(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	sess.Set(models.FieldFatPercent, models.FieldSkipped)
	sess.Step = models.StepEnterMusclePercent
	reply, err := d.catalog.Render(msgRecordMuscle, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply}, nil
}

func (d *RecordDialog) handleFatPercent(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	ratio, err := parsePercent(ev.Text)
	if err != nil {
		return Outcome{}, err
	}
	sess.Set(models.FieldFatPercent, formatBound(ratio))
	sess.Step = models.StepEnterMusclePercent
	reply, err := d.catalog.Render(msgRecordMuscle, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply}, nil
}

func (d *RecordDialog) handleMuscleSkip(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	sess.Set(models.FieldMusclePercent, models.FieldSkipped)
	return d.commit(ctx, sess)
}

func (d *RecordDialog) handleMusclePercent(ctx context.Context, sess *models.Session, ev models.Event) (Outcome, error) {
	ratio, err := parsePercent(ev.Text)
	if err != nil {
		return Outcome{}, err
	}
	sess.Set(models.FieldMusclePercent, formatBound(ratio))
	return d.commit(ctx, sess)
}

// commit assembles the accumulated fields into a record, re-validates it as
// a unit and persists it. Joint validation failure clears the session anyway
// rather than stranding the user in a dead dialogue; only a repository
// failure leaves the session in place for a retry.
func (d *RecordDialog) commit(ctx context.Context, sess *models.Session) (Outcome, error) {
	record, err := d.assembleRecord(sess)
	if err == nil {
		err = record.Validate(d.limits)
	}
	if err != nil {
		slog.Warn("Record failed commit-time validation", "user_key", sess.UserKey, "error", err)
		reply, rerr := d.catalog.Render(msgRecordInvalid, nil)
		if rerr != nil {
			return Outcome{}, rerr
		}
		return Outcome{Reply: reply, Done: true}, nil
	}

	if err := d.store.SaveRecord(ctx, record); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist record: %w", err)
	}
	slog.Info("Record committed", "user_key", sess.UserKey, "record_id", record.ID, "user_id", record.UserID)

	reply, err := d.catalog.Render(msgRecordSaved, map[string]string{"record_data": record.Summary()})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: reply, Done: true}, nil
}

// assembleRecord reconstructs the typed record from the session's
// accumulated string fields.
func (d *RecordDialog) assembleRecord(sess *models.Session) (*models.Record, error) {
	userIDRaw, ok := sess.Get(models.FieldUserID)
	if !ok {
		return nil, fmt.Errorf("%w: user id was never stored", models.ErrRecordInvalid)
	}
	userID, err := strconv.ParseInt(userIDRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad user id %q", models.ErrRecordInvalid, userIDRaw)
	}

	measuredRaw, ok := sess.Get(models.FieldMeasuredAt)
	if !ok {
		return nil, fmt.Errorf("%w: measurement time was never stored", models.ErrRecordInvalid)
	}
	measuredAt, err := time.Parse(time.RFC3339, measuredRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad measurement time %q", models.ErrRecordInvalid, measuredRaw)
	}

	weightRaw, ok := sess.Get(models.FieldWeight)
	if !ok {
		return nil, fmt.Errorf("%w: weight was never stored", models.ErrRecordInvalid)
	}
	weight, err := strconv.ParseFloat(weightRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad weight %q", models.ErrRecordInvalid, weightRaw)
	}

	record := &models.Record{
		UserID:     userID,
		MeasuredAt: measuredAt,
		Weight:     weight,
	}
	record.FatPercent, err = optionalRatio(sess, models.FieldFatPercent)
	if err != nil {
		return nil, err
	}
	record.MusclePercent, err = optionalRatio(sess, models.FieldMusclePercent)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// optionalRatio reads a skippable ratio field: absent or skipped means nil.
func optionalRatio(sess *models.Session, key models.FieldKey) (*float64, error) {
	raw, ok := sess.Get(key)
	if !ok || raw == models.FieldSkipped {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s value %q", models.ErrRecordInvalid, key, raw)
	}
	return &v, nil
}
