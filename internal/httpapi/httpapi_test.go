package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/aiprovider"
	"github.com/gmanldn/actifix/internal/config"
	"github.com/gmanldn/actifix/internal/dispatch"
	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/fallbackqueue"
	"github.com/gmanldn/actifix/internal/health"
	"github.com/gmanldn/actifix/internal/ingest"
	"github.com/gmanldn/actifix/internal/modulestatus"
	"github.com/gmanldn/actifix/internal/throttle"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

type noopLimiter struct{}

func (noopLimiter) Check(string) error                         { return nil }
func (noopLimiter) Record(string, bool, *int, *float64, string) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	db, err := ticketstore.Open(filepath.Join(dir, "tickets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := ticketstore.NewStore(db)

	queue, err := fallbackqueue.Open(filepath.Join(dir, "queue.json"), fallbackqueue.DefaultConfig())
	require.NoError(t, err)

	events := eventlog.New(db.Conn())
	events.Sync = true

	throttler := throttle.New(throttle.Config{MaxP2PerHour: 1000, MaxP3Per4Hours: 1000, MaxP4PerDay: 1000, Enabled: true}, db.Conn())

	pipeline := ingest.New(ingest.DefaultConfig(), store, queue, events, throttler)

	checker := health.New(store, health.DefaultSLAHours(), dir, dir, nil, nil)

	registry := aiprovider.NewRegistry("", "", "", "", "", "", noopLimiter{})
	dispatcher := dispatch.New(dispatch.DefaultConfig(), store, registry, events, logrus.NewEntry(logrus.New()), "test-node")

	modules := modulestatus.New(dir)

	return New(Deps{
		Store:      store,
		Events:     events,
		Checker:    checker,
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Registry:   registry,
		Modules:    modules,
		Config:     config.Default(),
		Log:        logrus.NewEntry(logrus.New()),
		DBSizeFn:   func() int64 { return 0 },
	})
}

func TestHandleHealthReturnsHealthyWithNoTickets(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.Healthy)
}

func TestHandleListTicketsEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tickets?limit=10", nil)
	rec := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, float64(0), body["total_open"])
}

func TestHandleSentryCreatesTicket(t *testing.T) {
	s := newTestServer(t)
	payload := `{"event_id":"abc123","level":"error","message":"boom","exception":{"values":[{"type":"ValueError","value":"boom","stacktrace":{"frames":[{"filename":"app.py"}]}}]}}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/sentry", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body["ticket_id"])
}

func TestHandleSentryRespectsOriginGateWhenEnforced(t *testing.T) {
	s := newTestServer(t)
	s.cfg.EnforceRaiseAF = true

	payload := `{"level":"error","message":"boom"}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/sentry", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleFixTicketNoOpenTickets(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/fix-ticket", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, false, body["dispatched"])
}

func TestHandleAIStatusFallsBackToFreeAlternative(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ai-status", nil)
	rec := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	available, ok := body["available"].(map[string]any)
	require.True(t, ok)
	require.True(t, available[string(aiprovider.KindFreeAlternative)].(bool))
}
