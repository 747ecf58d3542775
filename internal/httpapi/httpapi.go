// Package httpapi implements C13: the chi-routed HTTP surface exposing
// health, stats, tickets, dispatch, logs, settings, module status, and
// the Sentry-shaped ingestion endpoint. Every handler is a thin adapter
// over the store, event log, health checker, ingestion pipeline,
// dispatcher, and AI provider registry — none of them touch the ticket
// store's write path directly; ticket creation always routes through
// ingest.RecordError.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/gmanldn/actifix/internal/aiprovider"
	"github.com/gmanldn/actifix/internal/config"
	"github.com/gmanldn/actifix/internal/dispatch"
	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/health"
	"github.com/gmanldn/actifix/internal/ingest"
	"github.com/gmanldn/actifix/internal/modulestatus"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// Server wires the already-open C4/C5/C9/C10/C11/C12 handles into a
// chi.Router.
type Server struct {
	store      *ticketstore.Store
	events     *eventlog.Log
	checker    *health.Checker
	pipeline   *ingest.Pipeline
	dispatcher *dispatch.Dispatcher
	registry   *aiprovider.Registry
	modules    *modulestatus.Store
	cfg        config.Config
	log        *logrus.Entry
	startedAt  time.Time
	dbSizeFn   func() int64
}

// Deps bundles Server's constructor arguments so New's signature does
// not grow every time a new component is wired in.
type Deps struct {
	Store      *ticketstore.Store
	Events     *eventlog.Log
	Checker    *health.Checker
	Pipeline   *ingest.Pipeline
	Dispatcher *dispatch.Dispatcher
	Registry   *aiprovider.Registry
	Modules    *modulestatus.Store
	Config     config.Config
	Log        *logrus.Entry
	DBSizeFn   func() int64 // reports the current ticket DB file size in bytes
}

// New builds a Server from Deps.
func New(d Deps) *Server {
	return &Server{
		store:      d.Store,
		events:     d.Events,
		checker:    d.Checker,
		pipeline:   d.Pipeline,
		dispatcher: d.Dispatcher,
		registry:   d.Registry,
		modules:    d.Modules,
		cfg:        d.Config,
		log:        d.Log,
		startedAt:  time.Now(),
		dbSizeFn:   d.DBSizeFn,
	}
}

// Router builds the complete route table with its middleware chain.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recoverAndReport)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Actifix-Change-Origin"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/tickets", s.handleListTickets)
	r.With(s.originGate).Post("/api/fix-ticket", s.handleFixTicket)
	r.Get("/api/logs", s.handleLogs)
	r.Get("/api/system", s.handleSystem)
	r.Get("/api/version", s.handleVersion)
	r.Get("/api/ping", s.handlePing)
	r.Get("/api/ai-status", s.handleAIStatus)
	r.Get("/api/settings", s.handleGetSettings)
	r.With(s.originGate).Post("/api/settings", s.handleUpdateSettings)
	r.Get("/api/modules", s.handleModules)

	r.With(s.originGate).Post("/ingest/sentry", s.handleSentry)

	return r
}

// requestLogger logs each request's method, path, status and duration,
// following the teacher's withLogging middleware idiom.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// originGate enforces spec 4.9 step 1 at the HTTP boundary: writable
// endpoints require the caller to declare its origin explicitly when
// Raise_AF mode is enforced, via the same header the dashboard sets.
func (s *Server) originGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.EnforceRaiseAF {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-Actifix-Change-Origin") != "raise_af" {
			RespondError(w, http.StatusForbidden, "origin_gate_rejected", "ACTIFIX_CHANGE_ORIGIN=raise_af required for this operation")
			return
		}
		next.ServeHTTP(w, r)
	})
}
