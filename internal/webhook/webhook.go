// Package webhook implements the C14 fan-out: sanitised ticket.created
// and ticket.completed notifications POSTed to operator-configured
// URLs, with bounded retry and never-propagating failures.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

const (
	userAgent      = "Actifix-Webhook/1.0"
	defaultTimeout = 5 * time.Second
	maxRetries     = 2
)

// EventType is one of the two webhook event kinds C14 emits.
type EventType string

const (
	EventTicketCreated   EventType = "ticket.created"
	EventTicketCompleted EventType = "ticket.completed"
)

// sanitizedTicket is the whitelisted subset of ticket fields sent to
// external sinks; message is truncated to 1000 chars.
type sanitizedTicket struct {
	ID            string `json:"id"`
	Priority      string `json:"priority"`
	ErrorType     string `json:"error_type"`
	Message       string `json:"message"`
	Source        string `json:"source"`
	RunLabel      string `json:"run_label"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	CorrelationID string `json:"correlation_id"`
}

type payload struct {
	Event     EventType       `json:"event"`
	Timestamp string          `json:"timestamp"`
	Ticket    sanitizedTicket `json:"ticket"`
}

// Sender posts webhook payloads to a configured set of URLs.
type Sender struct {
	urls       []string
	httpClient *http.Client
	events     *eventlog.Log
}

// New builds a Sender. urls may be empty, in which case Send is a noop.
func New(urls []string, events *eventlog.Log) *Sender {
	return &Sender{
		urls:       urls,
		httpClient: &http.Client{Timeout: defaultTimeout},
		events:     events,
	}
}

func sanitize(ticket *ticketstore.Ticket) sanitizedTicket {
	message := ticket.Message
	if len(message) > 1000 {
		message = message[:1000]
	}
	return sanitizedTicket{
		ID:            ticket.ID,
		Priority:      string(ticket.Priority),
		ErrorType:     ticket.ErrorType,
		Message:       message,
		Source:        ticket.Source,
		RunLabel:      ticket.RunLabel,
		Status:        string(ticket.Status),
		CreatedAt:     ticket.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     ticket.UpdatedAt.Format(time.RFC3339),
		CorrelationID: ticket.CorrelationID,
	}
}

// Send fans out eventType for ticket to every configured URL. Failures
// are logged to the event log and never returned to the caller.
func (s *Sender) Send(ctx context.Context, eventType EventType, ticket *ticketstore.Ticket) {
	if len(s.urls) == 0 {
		return
	}

	body := payload{
		Event:     eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Ticket:    sanitize(ticket),
	}
	data, err := json.Marshal(body)
	if err != nil {
		s.logEvent(eventlog.LevelError, fmt.Sprintf("webhook: failed to marshal payload: %v", err), ticket.ID)
		return
	}

	for _, url := range s.urls {
		s.sendOne(ctx, url, data, eventType, ticket.ID)
	}
}

func (s *Sender) sendOne(ctx context.Context, url string, data []byte, eventType EventType, ticketID string) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(0.5*math.Pow(2, float64(attempt)) * float64(time.Second))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			s.logEvent(eventlog.LevelWarning, fmt.Sprintf("webhook: attempt %d to %s failed: %v", attempt+1, url, err), ticketID)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.logEvent(eventlog.LevelInfo, fmt.Sprintf("webhook: %s delivered to %s on attempt %d", eventType, url, attempt+1), ticketID)
			return
		}
		lastErr = fmt.Errorf("webhook: non-2xx status %d from %s", resp.StatusCode, url)
		s.logEvent(eventlog.LevelWarning, fmt.Sprintf("webhook: attempt %d to %s got status %d", attempt+1, url, resp.StatusCode), ticketID)
	}

	if lastErr != nil {
		s.logEvent(eventlog.LevelError, fmt.Sprintf("webhook: giving up on %s: %v", url, lastErr), ticketID)
	}
}

func (s *Sender) logEvent(level eventlog.Level, message, ticketID string) {
	if s.events == nil {
		return
	}
	s.events.Append(eventlog.Event{EventType: "WEBHOOK_DELIVERY", Level: level, Message: message, TicketID: ticketID})
}
