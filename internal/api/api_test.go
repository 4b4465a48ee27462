package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
	"github.com/avelichko/statbot/internal/testutil"
)

// recordingDispatcher captures dispatched events.
type recordingDispatcher struct {
	events []models.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev models.Event) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, ev)
	return nil
}

func postWebhook(t *testing.T, handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestWebhookTextMessage(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := NewServer(disp, store.NewInMemoryStore())

	body := `{"update_id":1,"message":{"message_id":5,"from":{"id":42,"first_name":"Ann","last_name":"Lee"},"date":1718445600,"text":"/start"}}`
	w := postWebhook(t, srv.Router(), body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(disp.events) != 1 {
		t.Fatalf("expected one dispatched event, got %d", len(disp.events))
	}
	ev := disp.events[0]
	if ev.Kind != models.InputText || ev.Text != "/start" || ev.From != 42 {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.FirstName != "Ann" || ev.LastName != "Lee" {
		t.Errorf("expected sender name carried over, got %+v", ev)
	}
	if !ev.Time.Equal(time.Unix(1718445600, 0)) {
		t.Errorf("expected platform timestamp, got %v", ev.Time)
	}
}

func TestWebhookCallbackQuery(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := NewServer(disp, store.NewInMemoryStore())

	body := `{"update_id":2,"callback_query":{"id":"cb-7","from":{"id":42,"first_name":"Ann"},"message":{"message_id":9},"data":"time:v1:9:30:1:record"}}`
	w := postWebhook(t, srv.Router(), body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ev := disp.events[0]
	if ev.Kind != models.InputWidget {
		t.Fatalf("expected widget event, got %s", ev.Kind)
	}
	if ev.Token != "time:v1:9:30:1:record" || ev.CallbackID != "cb-7" || ev.MessageID != 9 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestWebhookLocationMessage(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := NewServer(disp, store.NewInMemoryStore())

	body := `{"update_id":3,"message":{"message_id":5,"from":{"id":42,"first_name":"Ann"},"date":1718445600,"location":{"latitude":50.45,"longitude":30.52}}}`
	w := postWebhook(t, srv.Router(), body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ev := disp.events[0]
	if ev.Kind != models.InputLocation || ev.Latitude != 50.45 || ev.Longitude != 30.52 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestWebhookSkipsUnsupportedUpdates(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := NewServer(disp, store.NewInMemoryStore())

	cases := []string{
		`{"update_id":4}`,
		`{"update_id":5,"message":{"message_id":5,"from":{"id":42,"first_name":"bot","is_bot":true},"date":1,"text":"hi"}}`,
		`{"update_id":6,"message":{"message_id":5,"from":{"id":42,"first_name":"Ann"},"date":1}}`,
	}
	for _, body := range cases {
		w := postWebhook(t, srv.Router(), body, nil)
		if w.Code != http.StatusOK {
			t.Errorf("expected unsupported update acknowledged, got %d for %s", w.Code, body)
		}
	}
	if len(disp.events) != 0 {
		t.Errorf("expected no dispatches, got %d", len(disp.events))
	}
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	srv := NewServer(&recordingDispatcher{}, store.NewInMemoryStore())
	w := postWebhook(t, srv.Router(), "{not json", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestWebhookSecretToken(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := NewServer(disp, store.NewInMemoryStore(), WithWebhookSecret("hunter2"))
	body := `{"update_id":1,"message":{"message_id":5,"from":{"id":42,"first_name":"Ann"},"date":1,"text":"hi"}}`

	w := postWebhook(t, srv.Router(), body, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without secret, got %d", w.Code)
	}
	w = postWebhook(t, srv.Router(), body, map[string]string{secretTokenHeader: "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with secret, got %d", w.Code)
	}
	if len(disp.events) != 1 {
		t.Errorf("expected one dispatch, got %d", len(disp.events))
	}
}

func TestWebhookDispatchFault(t *testing.T) {
	disp := &recordingDispatcher{err: errors.New("store is down")}
	srv := NewServer(disp, store.NewInMemoryStore())
	body := `{"update_id":1,"message":{"message_id":5,"from":{"id":42,"first_name":"Ann"},"date":1,"text":"hi"}}`
	w := postWebhook(t, srv.Router(), body, nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on dispatch fault, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(&recordingDispatcher{}, store.NewInMemoryStore())
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, w.Code, "health probe")
	testutil.AssertJSONResponse(t, w, models.APIStatusOK)
}

func TestRecordsEndpoint(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	user := &models.User{ExternalID: 42, FirstName: "Ann", Height: 170, Timezone: "Etc/GMT"}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	rec := &models.Record{UserID: user.ID, MeasuredAt: time.Now().UTC(), Weight: 70}
	if err := st.SaveRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(&recordingDispatcher{}, st)

	req := httptest.NewRequest(http.MethodGet, "/users/42/records", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status models.APIStatus `json:"status"`
		Result []models.Record  `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].Weight != 70 {
		t.Errorf("unexpected records %+v", resp.Result)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/99/records", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, w.Code, "unknown user")

	req = httptest.NewRequest(http.MethodGet, "/users/abc/records", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, w.Code, "malformed id")

	req = httptest.NewRequest(http.MethodGet, "/users/42/records?limit=0", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, w.Code, "non-positive limit")
}
