// Package completionhooks runs operator-configured executable scripts
// after a ticket completes, passing ticket fields as environment
// variables, the way original_source's completion_hooks.py does.
package completionhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

const defaultTimeout = 30 * time.Second
const maxTicketJSONBytes = 10000
const stdoutPreviewBytes = 200
const stderrPreviewBytes = 500

// Result summarises one run of every configured hook.
type Result struct {
	HooksRun       int
	HooksSucceeded int
	HooksFailed    int
	Failures       []Failure
}

// Failure records a single hook script's failure.
type Failure struct {
	Script string
	Stderr string
}

// Runner executes the configured completion hook scripts.
type Runner struct {
	scripts []string
	events  *eventlog.Log
	timeout time.Duration
}

// New builds a Runner over the comma-separated-then-split script list
// from ACTIFIX_COMPLETION_HOOK_SCRIPTS.
func New(scripts []string, events *eventlog.Log) *Runner {
	return &Runner{scripts: scripts, events: events, timeout: defaultTimeout}
}

// Run executes every configured hook against ticket, in order,
// swallowing and logging individual failures — a misbehaving hook
// script never blocks or fails ticket completion.
func (r *Runner) Run(ctx context.Context, ticket *ticketstore.Ticket) Result {
	var result Result
	if len(r.scripts) == 0 {
		return result
	}

	for _, script := range r.scripts {
		result.HooksRun++
		r.logEvent(eventlog.LevelInfo, "COMPLETION_HOOK_START", fmt.Sprintf("executing completion hook: %s", script), ticket.ID)

		stdout, stderr, err := r.execute(ctx, script, ticket)
		if err == nil {
			result.HooksSucceeded++
			r.logEvent(eventlog.LevelInfo, "COMPLETION_HOOK_SUCCESS", fmt.Sprintf("completion hook succeeded: %s (%s)", script, preview(stdout, stdoutPreviewBytes)), ticket.ID)
			continue
		}

		result.HooksFailed++
		stderrPreview := preview(stderr, stderrPreviewBytes)
		result.Failures = append(result.Failures, Failure{Script: script, Stderr: stderrPreview})
		r.logEvent(eventlog.LevelWarning, "COMPLETION_HOOK_FAILURE", fmt.Sprintf("completion hook failed: %s: %v", script, err), ticket.ID)
	}

	return result
}

func (r *Runner) execute(ctx context.Context, scriptPath string, ticket *ticketstore.Ticket) (stdout, stderr string, err error) {
	path, err := filepath.Abs(scriptPath)
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", "", fmt.Errorf("script not found: %s", scriptPath)
	}
	if info.Mode()&0o111 == 0 {
		return "", "", fmt.Errorf("script not executable: %s", scriptPath)
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path)
	cmd.Env = append(os.Environ(), hookEnv(ticket)...)

	out, runErr := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", "", fmt.Errorf("script exceeded timeout of %s", timeout)
	}
	if runErr != nil {
		return "", string(out), runErr
	}
	return string(out), "", nil
}

func hookEnv(ticket *ticketstore.Ticket) []string {
	ticketJSON, _ := json.Marshal(ticket)
	if len(ticketJSON) > maxTicketJSONBytes {
		ticketJSON = append(ticketJSON[:maxTicketJSONBytes], []byte("...")...)
	}
	return []string{
		"ACTIFIX_TICKET_ID=" + ticket.ID,
		"ACTIFIX_TICKET_PRIORITY=" + string(ticket.Priority),
		"ACTIFIX_TICKET_ERROR_TYPE=" + ticket.ErrorType,
		"ACTIFIX_TICKET_SOURCE=" + ticket.Source,
		"ACTIFIX_TICKET_STATUS=" + string(ticket.Status),
		"ACTIFIX_TICKET_JSON=" + string(ticketJSON),
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (r *Runner) logEvent(level eventlog.Level, eventType, message, ticketID string) {
	if r.events == nil {
		return
	}
	r.events.Append(eventlog.Event{EventType: eventType, Level: level, Message: message, TicketID: ticketID})
}
