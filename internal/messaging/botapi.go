package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/avelichko/statbot/internal/models"
)

// DefaultBotAPIBaseURL is the production Bot API endpoint.
const DefaultBotAPIBaseURL = "https://api.telegram.org"

// Opts holds configuration options for the Bot API client.
type Opts struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Bot API client.
type Option func(*Opts)

// WithToken sets the bot token used to authenticate API calls.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithBaseURL overrides the API endpoint, used by tests to point the client
// at a local server.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// BotAPIClient implements Service over the chat platform's HTTP Bot API.
type BotAPIClient struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewBotAPIClient creates a Bot API client. The token falls back to the
// BOT_API_TOKEN environment variable when not provided via options.
func NewBotAPIClient(opts ...Option) (*BotAPIClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("BOT_API_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBotAPIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	slog.Debug("Bot API client config loaded", "base_url", cfg.BaseURL, "token_set", cfg.Token != "")

	return &BotAPIClient{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
	}, nil
}

// inlineKeyboard is the wire shape of an inline keyboard markup object.
type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

func markupFromKeyboard(kb models.Keyboard) inlineKeyboard {
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return inlineKeyboard{InlineKeyboard: rows}
}

// apiResponse is the Bot API envelope shared by all methods.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// call POSTs a JSON payload to one Bot API method and checks the envelope.
func (c *BotAPIClient) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Bot API call failed", "method", method, "error", err)
		return fmt.Errorf("bot api %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !envelope.OK {
		slog.Error("Bot API call rejected", "method", method, "status", resp.StatusCode, "description", envelope.Description)
		return fmt.Errorf("bot api %s rejected: %s", method, envelope.Description)
	}

	slog.Debug("Bot API call succeeded", "method", method)
	return nil
}

// SendMessage sends a plain text message.
func (c *BotAPIClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendKeyboard sends a text message with an inline keyboard.
func (c *BotAPIClient) SendKeyboard(ctx context.Context, chatID int64, text string, keyboard models.Keyboard) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": markupFromKeyboard(keyboard),
	})
}

// EditKeyboard replaces the inline keyboard of an existing message.
func (c *BotAPIClient) EditKeyboard(ctx context.Context, chatID int64, messageID int64, keyboard models.Keyboard) error {
	return c.call(ctx, "editMessageReplyMarkup", map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": markupFromKeyboard(keyboard),
	})
}

// AnswerCallback acknowledges a callback query.
func (c *BotAPIClient) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	})
}
