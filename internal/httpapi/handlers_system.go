package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gmanldn/actifix/internal/aiprovider"
	"github.com/gmanldn/actifix/internal/version"
)

// handleSystem implements GET /api/system: a general process/runtime
// overview for the dashboard.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"version":      version.Version,
		"commit":       version.Commit,
		"started_at":   s.startedAt,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"ai_enabled":   s.cfg.AIEnabled,
		"raise_af":     s.cfg.EnforceRaiseAF,
	})
}

// handleVersion implements GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"version": version.Version, "commit": version.Commit})
}

// handlePing implements GET /api/ping, a minimal liveness probe that
// does not touch the store.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"ping": "pong"})
}

// handleAIStatus implements GET /api/ai-status.
func (s *Server) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	preferred := aiprovider.Kind(s.cfg.AIProvider)
	status := s.registry.GetStatus(preferred, false)

	available := make(map[string]bool, len(status.Available))
	for k, v := range status.Available {
		available[string(k)] = v
	}
	chain := make([]string, 0, len(status.Chain))
	for _, k := range status.Chain {
		chain = append(chain, string(k))
	}

	Respond(w, http.StatusOK, map[string]any{
		"enabled":         s.cfg.AIEnabled,
		"available":       available,
		"active_provider": string(status.ActiveProvider),
		"active_model":    status.ActiveModel,
		"chain":           chain,
	})
}

// handleGetSettings implements GET /api/settings: a read-only view of
// the currently loaded, non-secret configuration.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"capture_enabled":    s.cfg.CaptureEnabled,
		"enforce_raise_af":   s.cfg.EnforceRaiseAF,
		"max_message_length": s.cfg.MaxMessageLength,
		"sla":                s.cfg.SLA,
		"throttle":           s.cfg.Throttle,
		"ai_enabled":         s.cfg.AIEnabled,
		"ai_provider":        s.cfg.AIProvider,
		"ai_model":           s.cfg.AIModel,
		"webhook_urls":       s.cfg.WebhookURLs,
	})
}

// settingsPatch is the subset of Config exposed as mutable via POST
// /api/settings; fields left nil are unchanged.
type settingsPatch struct {
	CaptureEnabled *bool `json:"capture_enabled"`
	AIEnabled      *bool `json:"ai_enabled"`
}

// handleUpdateSettings implements POST /api/settings. Only the narrow
// set of runtime-togglable flags the dashboard exposes can be changed
// this way; the rest of Config is environment-sourced and immutable
// for the life of the process.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_body", "could not parse request body")
		return
	}
	if patch.CaptureEnabled != nil {
		s.cfg.CaptureEnabled = *patch.CaptureEnabled
	}
	if patch.AIEnabled != nil {
		s.cfg.AIEnabled = *patch.AIEnabled
	}
	s.handleGetSettings(w, r)
}

// handleModules implements GET /api/modules, reporting the C15 module
// registry's persisted status buckets.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.modules.Load()
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "modules_load_failed", err.Error())
		return
	}
	Respond(w, http.StatusOK, map[string]any{
		"active":   statuses.Active,
		"disabled": statuses.Disabled,
		"error":    statuses.Error,
	})
}
