package completionhooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testTicket() *ticketstore.Ticket {
	return &ticketstore.Ticket{
		ID:        "ACTIFIX-test-1",
		Priority:  ticketstore.PriorityP2,
		ErrorType: "ValueError",
		Source:    "mod.go",
		Status:    ticketstore.StatusCompleted,
	}
}

func TestRunSucceedsAndPassesTicketEnv(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "out.txt")
	script := writeScript(t, "echo $ACTIFIX_TICKET_ID > "+outFile+"\n")

	r := New([]string{script}, nil)
	result := r.Run(context.Background(), testTicket())

	require.Equal(t, 1, result.HooksRun)
	require.Equal(t, 1, result.HooksSucceeded)
	require.Equal(t, 0, result.HooksFailed)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "ACTIFIX-test-1")
}

func TestRunRecordsFailureOnNonZeroExit(t *testing.T) {
	script := writeScript(t, "echo boom 1>&2\nexit 1\n")

	r := New([]string{script}, nil)
	result := r.Run(context.Background(), testTicket())

	require.Equal(t, 1, result.HooksFailed)
	require.Len(t, result.Failures, 1)
	require.Contains(t, result.Failures[0].Stderr, "boom")
}

func TestRunReportsMissingScript(t *testing.T) {
	r := New([]string{filepath.Join(t.TempDir(), "does-not-exist.sh")}, nil)
	result := r.Run(context.Background(), testTicket())
	require.Equal(t, 1, result.HooksFailed)
}

func TestRunReportsNonExecutableScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))

	r := New([]string{path}, nil)
	result := r.Run(context.Background(), testTicket())
	require.Equal(t, 1, result.HooksFailed)
}

func TestRunNoScriptsIsNoop(t *testing.T) {
	r := New(nil, nil)
	result := r.Run(context.Background(), testTicket())
	require.Equal(t, Result{}, result)
}

func TestRunEnforcesTimeout(t *testing.T) {
	script := writeScript(t, "sleep 5\n")
	r := New([]string{script}, nil)
	r.timeout = 50 * time.Millisecond

	result := r.Run(context.Background(), testTicket())
	require.Equal(t, 1, result.HooksFailed)
}

func TestPreviewTruncatesLongStrings(t *testing.T) {
	require.Equal(t, "abc", preview("abc", 10))
	require.Equal(t, "ab", preview("abcdef", 2))
}
