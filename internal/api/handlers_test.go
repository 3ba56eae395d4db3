package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"movievault/internal/models"
	"movievault/internal/worker"
)

func TestRootReportsRunning(t *testing.T) {
	router, _ := newTestServer(t, "")
	rec := doJSONRequest(t, router, http.MethodGet, "/", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "Bot is running" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHealthReflectsProbes(t *testing.T) {
	events := &mockSubmitter{}
	sched := &fakeProbe{name: "retention-scheduler", alive: true}
	mgr := &fakeProbe{name: "event-manager", alive: true}
	router := newRouter(NewHandler(events, "", sched, mgr))

	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil), http.StatusOK)

	sched.alive = false
	rec := doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, rec, http.StatusServiceUnavailable)
	var body struct {
		Status  string   `json:"status"`
		Failing []string `json:"failing"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Status != "degraded" || len(body.Failing) != 1 || body.Failing[0] != "retention-scheduler" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestMetricsExposed(t *testing.T) {
	router, _ := newTestServer(t, "")
	rec := doJSONRequest(t, router, http.MethodGet, "/metrics", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "movievault_") {
		t.Fatalf("expected movievault collectors in exposition")
	}
}

func TestPostEventAccepted(t *testing.T) {
	router, events := newTestServer(t, "")
	ev := map[string]any{
		"kind":    "text",
		"user_id": 11,
		"chat_id": -100,
		"text":    "matrix",
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/events", ev, nil)
	assertStatus(t, rec, http.StatusAccepted)

	got := events.all()
	if len(got) != 1 || got[0].Kind != models.EventText || got[0].Text != "matrix" || got[0].UserID != 11 {
		t.Fatalf("unexpected submitted events: %+v", got)
	}
}

func TestPostEventRejectsMalformed(t *testing.T) {
	router, events := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)

	cases := []map[string]any{
		{"kind": "text", "user_id": 1},
		{"kind": "sticker", "user_id": 1, "chat_id": 2},
		{"kind": "document", "user_id": 1, "chat_id": 2},
		{"kind": "photo", "user_id": 1, "chat_id": 2},
		{"kind": "callback", "user_id": 1, "chat_id": 2},
		{"kind": "new_members", "chat_id": 2},
		{"kind": "text", "chat_id": 2, "text": "x"},
	}
	for _, body := range cases {
		rec := doJSONRequest(t, router, http.MethodPost, "/api/events", body, nil)
		assertStatus(t, rec, http.StatusBadRequest)
	}
	if n := len(events.all()); n != 0 {
		t.Fatalf("malformed events must not be submitted, got %d", n)
	}
}

func TestPostEventBusyAndStopped(t *testing.T) {
	router, events := newTestServer(t, "")
	ev := map[string]any{"kind": "start", "user_id": 3, "chat_id": 3}

	events.setErr(worker.ErrDispatcherBusy)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/events", ev, nil), http.StatusTooManyRequests)

	events.setErr(worker.ErrStopped)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/events", ev, nil), http.StatusServiceUnavailable)

	events.setErr(errors.New("boom"))
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/events", ev, nil), http.StatusInternalServerError)
}

func TestPostEventRequiresToken(t *testing.T) {
	router, events := newTestServer(t, "bridge-secret")
	ev := map[string]any{"kind": "start", "user_id": 3, "chat_id": 3}

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/events", ev, nil), http.StatusUnauthorized)
	rec := doJSONRequest(t, router, http.MethodPost, "/api/events", ev,
		map[string]string{"Authorization": "Bearer bridge-secret"})
	assertStatus(t, rec, http.StatusAccepted)
	if len(events.all()) != 1 {
		t.Fatalf("expected one submitted event")
	}
	// Health stays public.
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil), http.StatusOK)
}

func TestPostEventThroughManager(t *testing.T) {
	handled := make(chan models.Event, 1)
	mgr := worker.NewManager(handlerFunc(func(ev models.Event) { handled <- ev }), worker.Config{})
	router := newRouter(NewHandler(mgr, ""))

	ev := map[string]any{
		"kind":    "photo",
		"user_id": 8,
		"chat_id": -200,
		"photos":  []map[string]any{{"asset_ref": "p1", "width": 10, "height": 10}},
		"caption": "poster",
	}
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/events", ev, nil), http.StatusAccepted)
	got := <-handled
	if got.Kind != models.EventPhoto || len(got.Photos) != 1 || got.Photos[0].AssetRef != "p1" {
		t.Fatalf("unexpected handled event: %+v", got)
	}
}

// --- helpers ---

type mockSubmitter struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (m *mockSubmitter) Submit(ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockSubmitter) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockSubmitter) all() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Event(nil), m.events...)
}

type fakeProbe struct {
	name  string
	alive bool
}

func (p *fakeProbe) Alive() bool    { return p.alive }
func (p *fakeProbe) String() string { return p.name }

type handlerFunc func(ev models.Event)

func (f handlerFunc) Handle(_ context.Context, ev models.Event) error {
	f(ev)
	return nil
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func newTestServer(t *testing.T, token string) (*gin.Engine, *mockSubmitter) {
	t.Helper()
	events := &mockSubmitter{}
	return newRouter(NewHandler(events, token, &fakeProbe{name: "event-manager", alive: true})), events
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
