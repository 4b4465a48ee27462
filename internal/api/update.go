package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/avelichko/statbot/internal/models"
)

// errUpdateUnsupported marks update shapes the bot does not consume, such
// as channel posts or message edits. They are acknowledged and skipped.
var errUpdateUnsupported = errors.New("update carries no supported payload")

// update is the wire shape of one platform webhook delivery. Only the
// fields the bot consumes are declared.
type update struct {
	UpdateID int64          `json:"update_id"`
	Message  *message       `json:"message"`
	Callback *callbackQuery `json:"callback_query"`
}

type message struct {
	MessageID int64     `json:"message_id"`
	From      *sender   `json:"from"`
	Date      int64     `json:"date"`
	Text      string    `json:"text"`
	Location  *location `json:"location"`
}

type sender struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    *sender  `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

// eventFromUpdate normalizes one update into the internal event union. The
// input kind is decided here, once, at the transport boundary.
func eventFromUpdate(upd update) (models.Event, error) {
	if cb := upd.Callback; cb != nil {
		if cb.From == nil {
			return models.Event{}, fmt.Errorf("callback query %s: %w", cb.ID, models.ErrNoUser)
		}
		ev := models.Event{
			From:       cb.From.ID,
			FirstName:  cb.From.FirstName,
			LastName:   cb.From.LastName,
			Kind:       models.InputWidget,
			Token:      cb.Data,
			CallbackID: cb.ID,
			Time:       time.Now(),
		}
		if cb.Message != nil {
			ev.MessageID = cb.Message.MessageID
		}
		return ev, nil
	}

	msg := upd.Message
	if msg == nil {
		return models.Event{}, errUpdateUnsupported
	}
	if msg.From == nil || msg.From.IsBot {
		return models.Event{}, fmt.Errorf("message %d: %w", msg.MessageID, models.ErrNoUser)
	}

	ev := models.Event{
		From:      msg.From.ID,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		MessageID: msg.MessageID,
		Time:      time.Unix(msg.Date, 0),
	}
	switch {
	case msg.Location != nil:
		ev.Kind = models.InputLocation
		ev.Latitude = msg.Location.Latitude
		ev.Longitude = msg.Location.Longitude
	case msg.Text != "":
		ev.Kind = models.InputText
		ev.Text = msg.Text
	default:
		return models.Event{}, errUpdateUnsupported
	}
	return ev, nil
}
