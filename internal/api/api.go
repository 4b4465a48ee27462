// Package api exposes the HTTP surface of statbot: the platform webhook
// that feeds inbound updates into the dispatcher, a health probe, and a
// read-only records endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
)

// secretTokenHeader carries the webhook secret the platform echoes back on
// every delivery. Requests without the configured secret are rejected.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// EventDispatcher consumes one normalized inbound event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev models.Event) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	WebhookSecret string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhookSecret sets the secret token webhook deliveries must carry.
// An empty secret disables the check.
func WithWebhookSecret(secret string) Option {
	return func(o *Opts) { o.WebhookSecret = secret }
}

// Server handles HTTP requests.
type Server struct {
	dispatcher EventDispatcher
	store      store.Store
	httpServer *http.Server
	secret     string
}

// NewServer creates the API server.
func NewServer(dispatcher EventDispatcher, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080"}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		dispatcher: dispatcher,
		store:      st,
		secret:     cfg.WebhookSecret,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers without a listening socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.webhookHandler)
	r.Get("/healthz", s.healthHandler)
	r.Get("/users/{externalID}/records", s.recordsHandler)
	return r
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("API server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// webhookHandler converts one platform update into an event and dispatches
// it. The platform retries deliveries that do not get a 2xx, so dispatch
// faults surface as 500.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" && r.Header.Get(secretTokenHeader) != s.secret {
		slog.Warn("Webhook delivery rejected, bad secret", "remote", r.RemoteAddr)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid secret token"))
		return
	}

	var upd update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	ev, err := eventFromUpdate(upd)
	if err != nil {
		if errors.Is(err, errUpdateUnsupported) || errors.Is(err, models.ErrNoUser) {
			// Acknowledge so the platform does not redeliver forever.
			slog.Debug("Webhook update skipped", "update_id", upd.UpdateID, "error", err)
			writeJSONResponse(w, http.StatusOK, models.Success(nil))
			return
		}
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), ev); err != nil {
		slog.Error("Webhook dispatch failed", "update_id", upd.UpdateID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process update"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// defaultRecordsLimit caps the records endpoint when no limit is given.
const defaultRecordsLimit = 50

// recordsHandler lists the saved records of one registered user, newest
// first. An optional ?limit= caps the page size.
func (s *Server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	externalID, err := strconv.ParseInt(chi.URLParam(r, "externalID"), 10, 64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid user id"))
		return
	}

	limit := defaultRecordsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
	}

	user, err := s.store.FindActiveUser(r.Context(), externalID)
	if err != nil {
		slog.Error("Records lookup failed", "external_id", externalID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load user"))
		return
	}
	if user == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}

	records, err := s.store.ListRecords(r.Context(), user.ID, limit)
	if err != nil {
		slog.Error("Records listing failed", "user_id", user.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load records"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}
