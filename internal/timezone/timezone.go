// Package timezone resolves user timezones from coordinates or GMT offsets.
package timezone

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultBaseURL is the Google Time Zone API endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/timezone/json"

// LookupError reports a failed external timezone lookup. It is retryable:
// callers re-prompt the user rather than defaulting a zone.
type LookupError struct {
	Status string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("timezone lookup failed: %s", e.Status)
}

// Resolver converts a geographic coordinate pair into an IANA timezone name.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, error)
}

// Opts holds configuration options for the Google resolver.
type Opts struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Option defines a configuration option for the Google resolver.
type Option func(*Opts)

// WithAPIKey sets the Google API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// GoogleResolver resolves coordinates through the Google Time Zone API.
type GoogleResolver struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGoogleResolver creates a resolver, falling back to the
// GOOGLE_TIMEZONE_API_KEY environment variable when no key is provided.
func NewGoogleResolver(opts ...Option) (*GoogleResolver, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_TIMEZONE_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google timezone API key must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	slog.Debug("Google timezone resolver configured", "base_url", cfg.BaseURL, "api_key_set", cfg.APIKey != "")
	return &GoogleResolver{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, client: cfg.Client}, nil
}

// Resolve looks up the IANA timezone containing the given coordinates.
// Transport failures, non-200 responses and non-OK API statuses all surface
// as *LookupError.
func (r *GoogleResolver) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", lat, lon))
	q.Set("timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	q.Set("key", r.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build timezone request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		slog.Error("Timezone lookup request failed", "error", err, "lat", lat, "lon", lon)
		return "", &LookupError{Status: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Timezone lookup returned non-200", "status", resp.Status, "lat", lat, "lon", lon)
		return "", &LookupError{Status: resp.Status}
	}

	var body struct {
		Status     string `json:"status"`
		TimeZoneID string `json:"timeZoneId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Error("Timezone lookup response decode failed", "error", err)
		return "", &LookupError{Status: "unparseable response"}
	}
	if body.Status != "OK" {
		slog.Error("Timezone lookup API status not OK", "status", body.Status, "lat", lat, "lon", lon)
		return "", &LookupError{Status: body.Status}
	}

	slog.Debug("Timezone lookup succeeded", "lat", lat, "lon", lon, "timezone", body.TimeZoneID)
	return body.TimeZoneID, nil
}

// FromGMTOffset maps a whole-hour GMT offset to a fixed-offset IANA name.
// The Etc/GMT zone names carry the inverted POSIX sign: GMT+3 is "Etc/GMT-3".
func FromGMTOffset(offset int) (string, error) {
	if offset < -12 || offset > 14 {
		return "", fmt.Errorf("GMT offset %+d outside [-12, +14]", offset)
	}
	if offset == 0 {
		return "Etc/GMT", nil
	}
	return fmt.Sprintf("Etc/GMT%+d", -offset), nil
}

// Validate reports whether name is a known IANA timezone.
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("timezone name is empty")
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown timezone %s: %w", name, err)
	}
	return nil
}
