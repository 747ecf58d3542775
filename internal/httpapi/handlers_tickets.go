package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

type ticketSummary struct {
	TicketID  string    `json:"ticket_id"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Priority  string    `json:"priority"`
	Created   time.Time `json:"created"`
	Status    string    `json:"status"`
}

const ticketMessagePreviewLen = 100

func toSummary(t *ticketstore.Ticket) ticketSummary {
	msg := t.Message
	if len(msg) > ticketMessagePreviewLen {
		msg = msg[:ticketMessagePreviewLen]
	}
	return ticketSummary{
		TicketID:  t.ID,
		ErrorType: t.ErrorType,
		Message:   msg,
		Source:    t.Source,
		Priority:  string(t.Priority),
		Created:   t.CreatedAt,
		Status:    string(t.Status),
	}
}

// handleListTickets implements GET /api/tickets?limit=N.
func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	tickets, err := s.store.GetTickets(ticketstore.Filter{Limit: limit})
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "list_tickets_failed", err.Error())
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "list_tickets_failed", err.Error())
		return
	}

	summaries := make([]ticketSummary, 0, len(tickets))
	for _, t := range tickets {
		summaries = append(summaries, toSummary(t))
	}

	Respond(w, http.StatusOK, map[string]any{
		"tickets":         summaries,
		"total_open":      stats.ByStatus[ticketstore.StatusOpen],
		"total_completed": stats.ByStatus[ticketstore.StatusCompleted],
	})
}

// fixTicketRequest is the body spec 6 defines for POST /api/fix-ticket;
// every field is optional, the caller supplies whatever it has.
type fixTicketRequest struct {
	CompletionNotes      string `json:"completion_notes"`
	TestSteps            string `json:"test_steps"`
	TestResults          string `json:"test_results"`
	Summary              string `json:"summary"`
	TestDocumentationURL string `json:"test_documentation_url"`
}

// handleFixTicket implements POST /api/fix-ticket: it dispatches the
// highest-priority open ticket using a handler that completes the
// ticket with the caller-supplied notes rather than invoking an AI
// provider — this is a human- or external-tool-driven completion, not
// an automated remediation attempt.
func (s *Server) handleFixTicket(w http.ResponseWriter, r *http.Request) {
	var body fixTicketRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			RespondError(w, http.StatusBadRequest, "invalid_body", "could not parse request body")
			return
		}
	}

	var dispatched *ticketstore.Ticket
	handler := func(ctx context.Context, ticket *ticketstore.Ticket) (string, bool, error) {
		dispatched = ticket
		return buildCompletionSummary(body), true, nil
	}

	if err := s.dispatcher.ProcessNextTicket(r.Context(), handler); err != nil {
		RespondError(w, http.StatusInternalServerError, "dispatch_failed", err.Error())
		return
	}

	if dispatched == nil {
		Respond(w, http.StatusOK, map[string]any{"dispatched": false, "message": "no open tickets"})
		return
	}

	Respond(w, http.StatusOK, map[string]any{
		"dispatched": true,
		"ticket_id":  dispatched.ID,
	})
}

func buildCompletionSummary(body fixTicketRequest) string {
	var parts []string
	if body.Summary != "" {
		parts = append(parts, body.Summary)
	}
	if body.CompletionNotes != "" {
		parts = append(parts, "Notes: "+body.CompletionNotes)
	}
	if body.TestSteps != "" {
		parts = append(parts, "Test steps: "+body.TestSteps)
	}
	if body.TestResults != "" {
		parts = append(parts, "Test results: "+body.TestResults)
	}
	if body.TestDocumentationURL != "" {
		parts = append(parts, "Test documentation: "+body.TestDocumentationURL)
	}
	if len(parts) == 0 {
		return "completed via /api/fix-ticket"
	}
	return strings.Join(parts, "\n")
}
