// Package ingest implements RecordError, the ticket ingestion hot path:
// origin gate, normalisation, stack capture and redaction, duplicate
// guard, classification, throttling, context capture, and durable
// persistence with a fallback-queue escape hatch.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/fallbackqueue"
	"github.com/gmanldn/actifix/internal/redact"
	"github.com/gmanldn/actifix/internal/throttle"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// Request is the caller-supplied input to RecordError.
type Request struct {
	Message        string
	Source         string
	RunLabel       string
	ErrorType      string
	Priority       ticketstore.Priority // empty = auto-classify
	StackTrace     string               // empty = attempt to capture
	CorrelationID  string
	CaptureContext bool
	ChangeOrigin   string // caller's declared ACTIFIX_CHANGE_ORIGIN, if any
}

// Config controls pipeline behaviour, mirroring the relevant config
// package fields plus ingest-specific knobs.
type Config struct {
	EnforceRaiseAF     bool
	CaptureEnabled     bool
	ContextTruncation  int // bytes, head/tail retained
	MinimalContext     map[ticketstore.Priority]bool
	MaxMessageLength   int
	ProjectRoot        string // base dir file-context capture resolves source paths against
	FileContextLines   int    // lines of context around the reported line, each side
}

// DefaultConfig is the baseline ingest configuration.
func DefaultConfig() Config {
	return Config{
		CaptureEnabled:    true,
		ContextTruncation: 4000,
		MinimalContext:    map[ticketstore.Priority]bool{ticketstore.PriorityP4: true},
		MaxMessageLength:  4000,
		FileContextLines:  10,
	}
}

// Pipeline wires the ingestion hot path's dependencies.
type Pipeline struct {
	cfg       Config
	store     *ticketstore.Store
	queue     *fallbackqueue.Queue
	events    *eventlog.Log
	throttler *throttle.Throttler

	onTicketCreated func(*ticketstore.Ticket)
}

// New builds a Pipeline over already-open component handles.
func New(cfg Config, store *ticketstore.Store, queue *fallbackqueue.Queue, events *eventlog.Log, throttler *throttle.Throttler) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, queue: queue, events: events, throttler: throttler}
}

// OnTicketCreated registers a callback invoked after a ticket is
// durably persisted (webhook fan-out and fallback-queue replay trigger
// hang off this in the lifecycle wiring).
func (p *Pipeline) OnTicketCreated(fn func(*ticketstore.Ticket)) {
	p.onTicketCreated = fn
}

// RecordError runs the eleven-step ingestion pipeline from spec 4.9,
// returning the created ticket, or nil when the event was suppressed
// (disabled, duplicate, or throttled) — never an error for those
// expected outcomes. A non-nil error indicates the origin gate rejected
// the call.
func (p *Pipeline) RecordError(req Request, now time.Time) (*ticketstore.Ticket, error) {
	// 1. Origin gate.
	if p.cfg.EnforceRaiseAF {
		origin := strings.ToLower(strings.TrimSpace(req.ChangeOrigin))
		if origin == "" {
			origin = strings.ToLower(strings.TrimSpace(os.Getenv("ACTIFIX_CHANGE_ORIGIN")))
		}
		if origin != "raise_af" {
			return nil, fmt.Errorf("ingest: Raise_AF policy enforced: set ACTIFIX_CHANGE_ORIGIN=raise_af")
		}
	}

	// 2. Normalise.
	message := strings.TrimSpace(req.Message)
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "unspecified"
	}
	runLabel := strings.TrimSpace(req.RunLabel)
	if runLabel == "" {
		runLabel = "unknown"
	}
	errorType := strings.TrimSpace(req.ErrorType)
	if errorType == "" {
		errorType = "unknown"
	}
	if len(message) > p.cfg.MaxMessageLength {
		message = message[:p.cfg.MaxMessageLength]
	}

	// 3. Stack trace: redact and truncate at line boundaries, retaining
	// head and tail.
	stackTrace := redact.Redact(req.StackTrace)
	stackTrace = truncateHeadTail(stackTrace, p.cfg.ContextTruncation)

	// 4. Duplicate guard.
	guard := DuplicateGuard(errorType, message, stackTrace)

	// 5. Duplicate check.
	if existing, err := p.store.CheckDuplicateGuard(guard); err == nil && existing != nil {
		if existing.Status == ticketstore.StatusOpen || existing.Status == ticketstore.StatusInProgress {
			p.logAsync(eventlog.Event{EventType: "DUPLICATE_SUPPRESSED", Level: eventlog.LevelInfo, Message: "duplicate ticket suppressed", CorrelationID: req.CorrelationID})
			return nil, nil
		}
	}

	// 6. Priority classification.
	priority := req.Priority
	if priority == "" {
		priority = ClassifyPriority(errorType, message, source)
	}

	// 7. Capture enabled?
	if !p.cfg.CaptureEnabled {
		p.logAsync(eventlog.Event{EventType: "CAPTURE_DISABLED", Level: eventlog.LevelInfo, Message: "ticket capture disabled", CorrelationID: req.CorrelationID})
		return nil, nil
	}

	// 8. Throttle check.
	if err := p.throttler.Check(priority, now); err != nil {
		p.logAsync(eventlog.Event{EventType: "THROTTLED", Level: eventlog.LevelWarning, Message: err.Error(), CorrelationID: req.CorrelationID})
		return nil, nil
	}

	// 9. Context capture: file snippets around the error location plus a
	// system-state dump, skipped for minimal-context priorities.
	var fileContext, systemState string
	if req.CaptureContext && !p.cfg.MinimalContext[priority] {
		fileContext = p.captureFileContext(source)
		systemState = captureSystemState()
	}

	// 10. Assemble ticket (AI remediation notes: structured summary).
	remediationNotes := buildRemediationNotes(errorType, message, stackTrace)

	newTicket := ticketstore.NewTicket{
		DuplicateGuard: guard,
		Priority:       priority,
		ErrorType:      errorType,
		Message:        redact.Redact(message),
		Source:         redact.Redact(source),
		RunLabel:       runLabel,
		CorrelationID:  req.CorrelationID,
		StackTrace:     stackTrace,
		FileContext:    redact.Redact(fileContext),
		SystemState:    redact.Redact(systemState),
	}

	// 11. Persist, falling back to the durable queue on failure.
	ticket, created, err := p.store.CreateTicket(now, newTicket)
	if err != nil {
		return p.enqueueFallback(newTicket, now, err, req.CorrelationID)
	}
	if !created {
		p.logAsync(eventlog.Event{EventType: "DUPLICATE_SUPPRESSED", Level: eventlog.LevelInfo, Message: "duplicate_guard collision at insert", CorrelationID: req.CorrelationID})
		return nil, nil
	}

	ticket.AIRemediationNotes = remediationNotes
	_ = p.store.UpdateTicket(ticket.ID, map[string]any{"ai_remediation_notes": remediationNotes}, now)

	p.throttler.Record(priority, ticket.ID, errorType, now)
	p.logAsync(eventlog.TicketEvent("TICKET_CREATED", eventlog.LevelInfo, ticket, "ticket created", req.CorrelationID))

	if p.onTicketCreated != nil {
		p.onTicketCreated(ticket)
	}

	return ticket, nil
}

func (p *Pipeline) enqueueFallback(newTicket ticketstore.NewTicket, now time.Time, cause error, correlationID string) (*ticketstore.Ticket, error) {
	payload, _ := json.Marshal(newTicket)
	if _, qerr := p.queue.Enqueue(fallbackqueue.OpWrite, newTicket.DuplicateGuard, string(payload), map[string]any{"reason": cause.Error()}); qerr != nil {
		return nil, fmt.Errorf("ingest: create_ticket failed (%v) and fallback enqueue failed: %w", cause, qerr)
	}

	p.logAsync(eventlog.Event{EventType: "FALLBACK_QUEUE", Level: eventlog.LevelWarning, Message: cause.Error(), CorrelationID: correlationID})

	inMemory := &ticketstore.Ticket{
		ID:             ticketstore.GenerateID(now),
		DuplicateGuard: newTicket.DuplicateGuard,
		Priority:       newTicket.Priority,
		ErrorType:      newTicket.ErrorType,
		Message:        newTicket.Message,
		Source:         newTicket.Source,
		RunLabel:       newTicket.RunLabel,
		CorrelationID:  newTicket.CorrelationID,
		CreatedAt:      now,
		UpdatedAt:      now,
		FormatVersion:  1,
		Status:         ticketstore.StatusOpen,
		StackTrace:     newTicket.StackTrace,
		FileContext:    newTicket.FileContext,
		SystemState:    newTicket.SystemState,
	}
	return inMemory, nil
}

func (p *Pipeline) logAsync(ev eventlog.Event) {
	if p.events != nil {
		p.events.Append(ev)
	}
}

// truncateHeadTail keeps the first and last halves of content, bounded
// to maxBytes, at line boundaries — so a giant stack trace still shows
// its entry point and its root cause.
func truncateHeadTail(content string, maxBytes int) string {
	if maxBytes <= 0 || len(content) <= maxBytes {
		return content
	}
	half := maxBytes / 2
	head := content[:half]
	if idx := strings.LastIndexByte(head, '\n'); idx > 0 {
		head = head[:idx]
	}
	tail := content[len(content)-half:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 {
		tail = tail[idx+1:]
	}
	return head + "\n...[truncated]...\n" + tail
}

// captureFileContext resolves source (a "path" or "path:line" string) to a
// source file on disk and returns a JSON-encoded map of path to a snippet of
// surrounding lines, so a remediation reviewer sees the code around the
// reported error without opening the repo. Returns "" when no candidate
// resolves to a readable file.
func (p *Pipeline) captureFileContext(source string) string {
	filePart := source
	lineNum := 0
	if idx := strings.LastIndex(source, ":"); idx > 0 {
		if n, err := strconv.Atoi(source[idx+1:]); err == nil {
			filePart = source[:idx]
			lineNum = n
		}
	}

	var candidates []string
	if p.cfg.ProjectRoot != "" {
		candidates = append(candidates,
			filepath.Join(p.cfg.ProjectRoot, "src", filePart),
			filepath.Join(p.cfg.ProjectRoot, filePart),
		)
	}
	candidates = append(candidates, filePart)

	var resolved string
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			resolved = candidate
			break
		}
	}
	if resolved == "" {
		return ""
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")

	maxLines := p.cfg.FileContextLines
	if maxLines <= 0 {
		maxLines = 10
	}

	var snippet string
	if lineNum > 0 {
		start := lineNum - 1 - maxLines
		if start < 0 {
			start = 0
		}
		end := lineNum - 1 + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		var b strings.Builder
		for i := start; i < end; i++ {
			fmt.Fprintf(&b, "%d: %s\n", i+1, lines[i])
		}
		snippet = strings.TrimRight(b.String(), "\n")
	} else {
		end := maxLines * 2
		if end > len(lines) {
			end = len(lines)
		}
		snippet = strings.Join(lines[:end], "\n")
	}

	snippet = truncateHeadTail(snippet, p.cfg.ContextTruncation)

	encoded, err := json.Marshal(map[string]string{resolved: snippet})
	if err != nil {
		return ""
	}
	return string(encoded)
}

func captureSystemState() string {
	cwd, _ := os.Getwd()
	state := map[string]any{
		"cwd":      cwd,
		"platform": "linux",
	}
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "ACTIFIX_") {
			parts := strings.SplitN(e, "=", 2)
			if len(parts) == 2 {
				if state["env"] == nil {
					state["env"] = map[string]string{}
				}
				state["env"].(map[string]string)[parts[0]] = parts[1]
			}
		}
	}
	data, _ := json.Marshal(state)
	return string(data)
}

func buildRemediationNotes(errorType, message, stackTrace string) string {
	var b strings.Builder
	b.WriteString("Root Cause: ")
	b.WriteString(errorType)
	b.WriteString(" — ")
	b.WriteString(message)
	b.WriteString("\nImpact: unverified, pending triage\n")
	b.WriteString("Action: investigate stack trace and reproduce locally\n")
	if stackTrace != "" {
		b.WriteString("Stack:\n")
		b.WriteString(stackTrace)
	}
	return b.String()
}
