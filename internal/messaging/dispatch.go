package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/avelichko/statbot/internal/catalog"
	"github.com/avelichko/statbot/internal/dialog"
	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
)

// Message ids the dispatcher renders outside any dialogue.
const (
	msgDispatchUnknown      = "dispatch_unknown"
	msgDispatchNotEnrolled  = "dispatch_not_registered"
	msgDispatchAlreadyKnown = "dispatch_already_registered"
	msgCancelDone           = "cancel_done"
	msgCancelNothing        = "cancel_nothing"
)

// Dialogue is the surface the dispatcher needs from a dialogue machine.
// Both dialogue kinds satisfy it.
type Dialogue interface {
	Kind() models.DialogKind
	Start(ctx context.Context, ev models.Event) (dialog.Outcome, error)
	Handle(ctx context.Context, sess *models.Session, ev models.Event) (dialog.Outcome, error)
}

// Dispatcher routes inbound events: commands start or cancel dialogues,
// everything else is fed to the active dialogue for the sender, and events
// with no active dialogue get a default hint.
//
// Events for the same sender are serialized on a per-key lock, so two
// concurrent events can never interleave a session read-modify-write.
type Dispatcher struct {
	store     store.Store
	catalog   *catalog.Catalog
	svc       Service
	locks     *dialog.KeyedMutex
	dialogues map[models.DialogKind]Dialogue
}

// NewDispatcher wires the dispatcher. Every dialogue kind that can appear in
// a stored session must be registered here.
func NewDispatcher(st store.Store, cat *catalog.Catalog, svc Service, dialogues ...Dialogue) *Dispatcher {
	byKind := make(map[models.DialogKind]Dialogue, len(dialogues))
	for _, d := range dialogues {
		byKind[d.Kind()] = d
	}
	return &Dispatcher{
		store:     st,
		catalog:   cat,
		svc:       svc,
		locks:     dialog.NewKeyedMutex(),
		dialogues: byKind,
	}
}

// Dispatch processes one inbound event end to end: routing, dialogue
// handling, and outbound delivery. Recoverable user mistakes never surface
// here as errors; an error return means a fault worth retrying or alerting.
func (dp *Dispatcher) Dispatch(ctx context.Context, ev models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	unlock := dp.locks.Lock(ev.From)
	defer unlock()

	slog.Debug("Dispatch invoked", "event_id", ev.ID, "from", ev.From, "kind", ev.Kind)

	outcome, err := dp.route(ctx, ev)
	if err != nil {
		if handled, herr := dp.replyKnownFailure(ctx, ev, err); handled {
			return herr
		}
		slog.Error("Dispatch failed", "event_id", ev.ID, "from", ev.From, "error", err)
		return err
	}

	if err := dp.deliver(ctx, ev, outcome); err != nil {
		slog.Error("Dispatch delivery failed", "event_id", ev.ID, "from", ev.From, "error", err)
		return err
	}
	slog.Debug("Dispatch succeeded", "event_id", ev.ID, "from", ev.From)
	return nil
}

// route decides what the event means and produces the outcome to deliver.
func (dp *Dispatcher) route(ctx context.Context, ev models.Event) (dialog.Outcome, error) {
	if ev.Kind == models.InputText {
		switch command(ev.Text) {
		case "/start":
			return dp.start(ctx, models.DialogOnboarding, ev)
		case "/add_record":
			return dp.start(ctx, models.DialogRecord, ev)
		case "/cancel", "cancel":
			return dp.cancel(ctx, ev)
		}
	}

	sess, err := dp.store.GetSession(ctx, ev.From)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		// Widget taps without a dialogue are stale keyboards, not user error.
		if ev.Kind == models.InputWidget {
			return dialog.Outcome{Ignored: true}, nil
		}
		reply, err := dp.catalog.Render(msgDispatchUnknown, nil)
		if err != nil {
			return dialog.Outcome{}, err
		}
		return dialog.Outcome{Reply: reply}, nil
	}

	d, ok := dp.dialogues[sess.Dialog]
	if !ok {
		return dialog.Outcome{}, fmt.Errorf("session references unknown dialogue %s", sess.Dialog)
	}
	return d.Handle(ctx, sess, ev)
}

// start opens (or restarts) the dialogue of the given kind.
func (dp *Dispatcher) start(ctx context.Context, kind models.DialogKind, ev models.Event) (dialog.Outcome, error) {
	d, ok := dp.dialogues[kind]
	if !ok {
		return dialog.Outcome{}, fmt.Errorf("dialogue %s is not registered", kind)
	}
	return d.Start(ctx, ev)
}

// cancel drops any dialogue in flight.
func (dp *Dispatcher) cancel(ctx context.Context, ev models.Event) (dialog.Outcome, error) {
	sess, err := dp.store.GetSession(ctx, ev.From)
	if err != nil {
		return dialog.Outcome{}, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		reply, err := dp.catalog.Render(msgCancelNothing, nil)
		if err != nil {
			return dialog.Outcome{}, err
		}
		return dialog.Outcome{Reply: reply}, nil
	}
	if err := dp.store.DeleteSession(ctx, ev.From); err != nil {
		return dialog.Outcome{}, fmt.Errorf("failed to cancel dialogue: %w", err)
	}
	slog.Info("Dialogue cancelled", "from", ev.From, "dialog", sess.Dialog)
	reply, err := dp.catalog.Render(msgCancelDone, nil)
	if err != nil {
		return dialog.Outcome{}, err
	}
	return dialog.Outcome{Reply: reply}, nil
}

// replyKnownFailure converts expected domain failures into catalog replies.
// It reports whether the error was handled.
func (dp *Dispatcher) replyKnownFailure(ctx context.Context, ev models.Event, err error) (bool, error) {
	var messageID string
	switch {
	case errors.Is(err, models.ErrUserNotRegistered):
		messageID = msgDispatchNotEnrolled
	case errors.Is(err, models.ErrUserExists):
		messageID = msgDispatchAlreadyKnown
	default:
		return false, nil
	}
	slog.Info("Dispatch resolved expected failure", "event_id", ev.ID, "from", ev.From, "error", err)
	reply, rerr := dp.catalog.Render(messageID, nil)
	if rerr != nil {
		return true, rerr
	}
	return true, dp.svc.SendMessage(ctx, ev.From, reply)
}

// deliver sends the outcome back through the messaging service. Widget taps
// are always acknowledged, even when the dialogue ignored them, so stale
// keyboards do not leave the client spinning.
func (dp *Dispatcher) deliver(ctx context.Context, ev models.Event, outcome dialog.Outcome) error {
	if ev.Kind == models.InputWidget && ev.CallbackID != "" {
		if err := dp.svc.AnswerCallback(ctx, ev.CallbackID); err != nil {
			return err
		}
	}
	if outcome.Ignored {
		return nil
	}
	if outcome.EditKeyboard != nil {
		if err := dp.svc.EditKeyboard(ctx, ev.From, ev.MessageID, outcome.EditKeyboard); err != nil {
			return err
		}
	}
	if outcome.Reply == "" {
		return nil
	}
	if outcome.Keyboard != nil {
		return dp.svc.SendKeyboard(ctx, ev.From, outcome.Reply, outcome.Keyboard)
	}
	return dp.svc.SendMessage(ctx, ev.From, outcome.Reply)
}

// command normalizes a text message for command matching. A trailing bot
// mention ("/start@statbot") is stripped.
func command(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if at := strings.Index(text, "@"); at > 0 && strings.HasPrefix(text, "/") {
		text = text[:at]
	}
	return text
}
