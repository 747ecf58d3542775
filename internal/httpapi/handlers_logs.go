package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gmanldn/actifix/internal/eventlog"
)

// setupEventTypes are the lifecycle-related event types grouped under
// the "setup" log view.
var setupEventTypes = map[string]bool{
	"BOOTSTRAP_COMPLETE":          true,
	"CRASH_DETECTED":              true,
	"CRASH_SNAPSHOT_WRITE_FAILED": true,
	"MODULE_LIFECYCLE":            true,
	"MODULE_UNREGISTER_TIMEOUT":   true,
	"FALLBACK_QUEUE_REPLAYED":     true,
	"FALLBACK_QUEUE_REPLAY_ERROR": true,
}

// handleLogs implements GET /api/logs?type={audit,errors,setup}&lines=N.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logType := r.URL.Query().Get("type")
	if logType == "" {
		logType = "audit"
	}
	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			lines = n
		}
	}

	fetchLimit := lines
	if logType != "audit" {
		fetchLimit = lines * 10 // over-fetch since filtering below narrows further
	}

	events, err := s.events.Get(eventlog.Filter{Limit: fetchLimit})
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "logs_failed", err.Error())
		return
	}

	switch logType {
	case "errors":
		events = filterEvents(events, func(ev eventlog.Event) bool {
			return ev.Level == eventlog.LevelError || ev.Level == eventlog.LevelCritical
		})
	case "setup":
		events = filterEvents(events, func(ev eventlog.Event) bool { return setupEventTypes[ev.EventType] })
	}
	if len(events) > lines {
		events = events[:lines]
	}

	Respond(w, http.StatusOK, map[string]any{
		"type":    logType,
		"entries": events,
	})
}

func filterEvents(events []eventlog.Event, keep func(eventlog.Event) bool) []eventlog.Event {
	out := events[:0]
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}
