// Package messaging defines the outbound delivery abstraction and the
// inbound event dispatcher that routes platform events into dialogues.
package messaging

import (
	"context"
	"errors"

	"github.com/avelichko/statbot/internal/models"
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service is a pluggable outbound message delivery abstraction. The
// dispatcher talks to the chat platform only through this interface, so a
// fake implementation stands in during tests.
type Service interface {
	// SendMessage sends a plain text message to the chat.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// SendKeyboard sends a text message with an inline keyboard attached.
	SendKeyboard(ctx context.Context, chatID int64, text string, keyboard models.Keyboard) error

	// EditKeyboard replaces the inline keyboard of an already-sent message.
	EditKeyboard(ctx context.Context, chatID int64, messageID int64, keyboard models.Keyboard) error

	// AnswerCallback acknowledges a callback query so the client stops
	// showing a progress indicator for the tapped button.
	AnswerCallback(ctx context.Context, callbackID string) error
}
