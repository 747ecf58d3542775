// Package dispatch implements the ticket dispatcher (C10): claim the
// next open ticket, run a remediation handler against it, and record
// the outcome back into the ticket store and event log.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gmanldn/actifix/internal/aiprovider"
	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// Handler processes a claimed ticket and reports whether the fix was
// accepted. A custom handler may be supplied by the caller; the default
// handler builds a prompt and calls the AI provider chain.
type Handler func(ctx context.Context, ticket *ticketstore.Ticket) (summary string, accepted bool, err error)

// CompletionHook runs after a ticket is marked complete (webhook
// fan-out, local scripts); hooks never block dispatch on failure.
type CompletionHook func(ticket *ticketstore.Ticket)

// Config controls retry/backoff and lease behaviour.
type Config struct {
	LeaseDuration   time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	PreferredKind   aiprovider.Kind
	StrictPreferred bool
}

// DefaultConfig mirrors spec 4.10/5's defaults: 1s,2s,4s... backoff and
// a 10 minute lease.
func DefaultConfig() Config {
	return Config{
		LeaseDuration: 10 * time.Minute,
		MaxRetries:    3,
		BackoffBase:   time.Second,
	}
}

// Dispatcher wires the ticket store, AI provider registry, event log,
// and completion hooks into a single claim-run-complete cycle.
type Dispatcher struct {
	cfg      Config
	store    *ticketstore.Store
	registry *aiprovider.Registry
	events   *eventlog.Log
	log      *logrus.Entry
	selfID   string

	hooks []CompletionHook
}

// New builds a Dispatcher identified by selfID (used as the lock
// holder for lease claims, typically hostname:pid).
func New(cfg Config, store *ticketstore.Store, registry *aiprovider.Registry, events *eventlog.Log, log *logrus.Entry, selfID string) *Dispatcher {
	return &Dispatcher{cfg: cfg, store: store, registry: registry, events: events, log: log, selfID: selfID}
}

// AddCompletionHook registers a hook to run after a ticket completes.
func (d *Dispatcher) AddCompletionHook(hook CompletionHook) {
	d.hooks = append(d.hooks, hook)
}

// ProcessNextTicket claims and processes a single ticket, or does
// nothing (logging NO_TICKETS) when the queue is empty.
func (d *Dispatcher) ProcessNextTicket(ctx context.Context, handler Handler) error {
	now := time.Now()
	ticket, err := d.store.GetAndLockNextTicket(d.selfID, now, d.cfg.LeaseDuration, nil)
	if err != nil {
		return fmt.Errorf("dispatch: claim next ticket: %w", err)
	}
	if ticket == nil {
		d.logEvent(eventlog.Event{EventType: "NO_TICKETS", Level: eventlog.LevelDebug, Message: "no open tickets to dispatch"})
		return nil
	}

	d.logEvent(eventlog.TicketEvent("DISPATCH_STARTED", eventlog.LevelInfo, ticket, "dispatch started", ticket.CorrelationID))

	if handler == nil {
		handler = d.defaultHandler
	}

	summary, accepted, runErr := d.runWithRetry(ctx, handler, ticket)
	if runErr != nil || !accepted {
		message := "handler declined the fix"
		if runErr != nil {
			message = runErr.Error()
		}
		d.logEvent(eventlog.TicketEvent("DISPATCH_FAILED", eventlog.LevelError, ticket, message, ticket.CorrelationID))
		if releaseErr := d.store.ReleaseLock(ticket.ID, d.selfID, time.Now()); releaseErr != nil {
			d.log.WithError(releaseErr).WithField("ticket_id", ticket.ID).Warn("dispatch: failed to release lock after failed run")
		}
		return nil
	}

	if err := d.store.MarkComplete(ticket.ID, summary, time.Now()); err != nil {
		return fmt.Errorf("dispatch: mark complete: %w", err)
	}
	ticket.Status = ticketstore.StatusCompleted
	ticket.CompletionSummary = summary

	d.logEvent(eventlog.TicketEvent("DISPATCH_SUCCESS", eventlog.LevelInfo, ticket, "dispatch succeeded", ticket.CorrelationID))
	d.logEvent(eventlog.TicketEvent("TICKET_COMPLETED", eventlog.LevelInfo, ticket, summary, ticket.CorrelationID))

	for _, hook := range d.hooks {
		hook(ticket)
	}

	return nil
}

// ProcessTickets runs ProcessNextTicket up to max times, or until the
// queue drains (a run with no claimable ticket stops the loop early).
func (d *Dispatcher) ProcessTickets(ctx context.Context, max int, handler Handler) (int, error) {
	processed := 0
	for i := 0; i < max; i++ {
		before, err := d.store.GetStats()
		if err != nil {
			return processed, err
		}
		if err := d.ProcessNextTicket(ctx, handler); err != nil {
			return processed, err
		}
		after, err := d.store.GetStats()
		if err != nil {
			return processed, err
		}
		if after.ByStatus[ticketstore.StatusOpen] >= before.ByStatus[ticketstore.StatusOpen] {
			break
		}
		processed++
	}
	return processed, nil
}

// runWithRetry runs the handler with exponential backoff (1s, 2s, 4s,
// ...) up to cfg.MaxRetries attempts.
func (d *Dispatcher) runWithRetry(ctx context.Context, handler Handler, ticket *ticketstore.Ticket) (string, bool, error) {
	delay := d.cfg.BackoffBase
	if delay <= 0 {
		delay = time.Second
	}
	maxRetries := d.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastSummary string
	var lastAccepted bool
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastSummary, lastAccepted, lastErr = handler(ctx, ticket)
		if lastErr == nil && lastAccepted {
			return lastSummary, lastAccepted, nil
		}
		if attempt == maxRetries {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastSummary, false, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastSummary, lastAccepted, lastErr
}

// defaultHandler builds a remediation prompt from the ticket and routes
// it through the AI provider chain.
func (d *Dispatcher) defaultHandler(ctx context.Context, ticket *ticketstore.Ticket) (string, bool, error) {
	info := aiprovider.TicketInfo{
		ID:          ticket.ID,
		Priority:    string(ticket.Priority),
		ErrorType:   ticket.ErrorType,
		Message:     ticket.Message,
		Source:      ticket.Source,
		StackTrace:  ticket.StackTrace,
		FileContext: ticket.FileContext,
	}

	resp, err := d.registry.GenerateFix(ctx, info, d.cfg.PreferredKind, d.cfg.StrictPreferred)
	if err != nil {
		return "", false, err
	}
	return resp.Content, resp.Success, nil
}

func (d *Dispatcher) logEvent(ev eventlog.Event) {
	if d.events != nil {
		d.events.Append(ev)
	}
}
