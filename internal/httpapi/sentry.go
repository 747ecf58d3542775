package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gmanldn/actifix/internal/ingest"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// sentryFrame is a single Sentry stack frame; frames are ordered
// oldest-to-innermost, so the last frame in a stacktrace is where the
// error actually originated.
type sentryFrame struct {
	Filename string `json:"filename"`
	Function string `json:"function"`
	Module   string `json:"module"`
}

type sentryStacktrace struct {
	Frames []sentryFrame `json:"frames"`
}

type sentryExceptionValue struct {
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	Stacktrace *sentryStacktrace `json:"stacktrace"`
}

type sentryEvent struct {
	EventID     string `json:"event_id"`
	Level       string `json:"level"`
	Message     string `json:"message"`
	Transaction string `json:"transaction"`
	Logger      string `json:"logger"`
	Exception   *struct {
		Values []sentryExceptionValue `json:"values"`
	} `json:"exception"`
}

// sentryLevelToPriority implements spec 6's literal mapping.
var sentryLevelToPriority = map[string]ticketstore.Priority{
	"fatal":   ticketstore.PriorityP0,
	"error":   ticketstore.PriorityP1,
	"warning": ticketstore.PriorityP2,
	"info":    ticketstore.PriorityP3,
	"debug":   ticketstore.PriorityP4,
}

// handleSentry implements POST /ingest/sentry: accepts a Sentry-shaped
// event, extracts error type/message/source/stack trace from it, and
// routes the result through the standard ingestion pipeline — never
// bypassing origin gate, duplicate guard, or throttling.
func (s *Server) handleSentry(w http.ResponseWriter, r *http.Request) {
	var ev sentryEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_sentry_event", "could not parse Sentry event")
		return
	}

	errorType, message, stackTrace := "unknown", ev.Message, ""
	source := firstNonEmptySentry(ev.Transaction, ev.Logger)

	if ev.Exception != nil && len(ev.Exception.Values) > 0 {
		top := ev.Exception.Values[0]
		if top.Type != "" {
			errorType = top.Type
		}
		if message == "" {
			message = top.Value
		}
		if top.Stacktrace != nil && len(top.Stacktrace.Frames) > 0 {
			innermost := top.Stacktrace.Frames[len(top.Stacktrace.Frames)-1]
			if source == "" {
				source = firstNonEmptySentry(innermost.Filename, innermost.Module)
			}
			stackTrace = renderSentryFrames(top.Stacktrace.Frames)
		}
	}

	priority, ok := sentryLevelToPriority[strings.ToLower(ev.Level)]
	if !ok {
		priority = ticketstore.PriorityP2
	}

	ticket, err := s.pipeline.RecordError(ingest.Request{
		Message:        message,
		Source:         source,
		ErrorType:      errorType,
		Priority:       priority,
		StackTrace:     stackTrace,
		CorrelationID:  ev.EventID,
		CaptureContext: true,
		ChangeOrigin:   "raise_af",
	}, time.Now())
	if err != nil {
		RespondError(w, http.StatusForbidden, "origin_gate_rejected", err.Error())
		return
	}
	if ticket == nil {
		Respond(w, http.StatusOK, map[string]any{"ticket_id": nil, "duplicate": true})
		return
	}
	Respond(w, http.StatusCreated, map[string]any{"ticket_id": ticket.ID, "duplicate": false})
}

func renderSentryFrames(frames []sentryFrame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(f.Filename)
		if f.Function != "" {
			b.WriteString(" in ")
			b.WriteString(f.Function)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstNonEmptySentry(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
