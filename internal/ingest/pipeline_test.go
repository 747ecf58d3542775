package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/fallbackqueue"
	"github.com/gmanldn/actifix/internal/throttle"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *ticketstore.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tickets.db")
	db, err := ticketstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := ticketstore.NewStore(db)

	queuePath := filepath.Join(t.TempDir(), "fallback.json")
	queue, err := fallbackqueue.Open(queuePath, fallbackqueue.DefaultConfig())
	require.NoError(t, err)

	throttler := throttle.New(throttle.Config{
		MaxP2PerHour: 100, MaxP3Per4Hours: 100, MaxP4PerDay: 100,
		EmergencyThreshold: 1000, EmergencyWindowMins: 10, Enabled: true,
	}, db.Conn())

	return New(cfg, store, queue, nil, throttler), store
}

func TestRecordErrorCreatesTicketWithClassifiedPriority(t *testing.T) {
	p, store := newTestPipeline(t, DefaultConfig())

	ticket, err := p.RecordError(Request{
		ErrorType: "DatabaseError",
		Message:   "connection refused",
		Source:    "db/pool.go",
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, ticket)
	require.Equal(t, ticketstore.PriorityP1, ticket.Priority)
	require.Contains(t, ticket.AIRemediationNotes, "Root Cause")

	stored, err := store.GetTicket(ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket.ID, stored.ID)
}

func TestRecordErrorSuppressesDuplicateWhileOpen(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	now := time.Now()

	first, err := p.RecordError(Request{ErrorType: "ValueError", Message: "boom", Source: "mod.py"}, now)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := p.RecordError(Request{ErrorType: "ValueError", Message: "boom", Source: "mod.py"}, now)
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestRecordErrorEnforcesRaiseAFOriginGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceRaiseAF = true
	p, _ := newTestPipeline(t, cfg)

	ticket, err := p.RecordError(Request{ErrorType: "ValueError", Message: "boom", Source: "mod.py"}, time.Now())
	require.Error(t, err)
	require.Nil(t, ticket)

	ticket, err = p.RecordError(Request{
		ErrorType: "ValueError", Message: "boom", Source: "mod.py", ChangeOrigin: "raise_af",
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, ticket)
}

func TestRecordErrorSkipsWhenCaptureDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CaptureEnabled = false
	p, _ := newTestPipeline(t, cfg)

	ticket, err := p.RecordError(Request{ErrorType: "ValueError", Message: "boom", Source: "mod.py"}, time.Now())
	require.NoError(t, err)
	require.Nil(t, ticket)
}

func TestRecordErrorTruncatesOverlongMessage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageLength = 10
	p, _ := newTestPipeline(t, cfg)

	ticket, err := p.RecordError(Request{ErrorType: "ValueError", Message: "0123456789abcdef", Source: "mod.py"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, ticket)
	require.LessOrEqual(t, len(ticket.Message), 10)
}

func TestRecordErrorInvokesOnTicketCreatedCallback(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	var called *ticketstore.Ticket
	p.OnTicketCreated(func(t *ticketstore.Ticket) { called = t })

	ticket, err := p.RecordError(Request{ErrorType: "ValueError", Message: "boom", Source: "mod.py"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, called)
	require.Equal(t, ticket.ID, called.ID)
}

func TestClassifyPriorityOrderedRules(t *testing.T) {
	require.Equal(t, ticketstore.PriorityP0, ClassifyPriority("FatalError", "", ""))
	require.Equal(t, ticketstore.PriorityP0, ClassifyPriority("", "data loss detected", ""))
	require.Equal(t, ticketstore.PriorityP1, ClassifyPriority("DatabaseError", "", ""))
	require.Equal(t, ticketstore.PriorityP1, ClassifyPriority("", "", "core/engine.go"))
	require.Equal(t, ticketstore.PriorityP3, ClassifyPriority("DeprecationWarning", "", ""))
	require.Equal(t, ticketstore.PriorityP4, ClassifyPriority("LintError", "", ""))
	require.Equal(t, ticketstore.PriorityP2, ClassifyPriority("ValueError", "unexpected input", "util.go"))
}

func TestDuplicateGuardIgnoresPathsAndLineNumbers(t *testing.T) {
	a := DuplicateGuard("ValueError", "failed at /home/user/app/mod.py:42", "")
	b := DuplicateGuard("ValueError", "failed at /var/lib/other/mod.py:99", "")
	require.Equal(t, a, b)
}

func TestDuplicateGuardDiffersOnMessage(t *testing.T) {
	a := DuplicateGuard("ValueError", "boom one", "")
	b := DuplicateGuard("ValueError", "boom two", "")
	require.NotEqual(t, a, b)
}

func TestTruncateHeadTailKeepsHeadAndTail(t *testing.T) {
	content := "line1\nline2\nline3\nline4\nline5\n"
	out := truncateHeadTail(content, 12)
	require.Contains(t, out, "...[truncated]...")
}

func TestTruncateHeadTailNoopUnderLimit(t *testing.T) {
	content := "short"
	require.Equal(t, content, truncateHeadTail(content, 100))
}

func TestRecordErrorCapturesFileContextAroundReportedLine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mod"), 0o755))
	sourcePath := filepath.Join(root, "mod", "pool.go")
	var content string
	for i := 1; i <= 60; i++ {
		content += "line content\n"
	}
	require.NoError(t, os.WriteFile(sourcePath, []byte(content), 0o644))

	cfg := DefaultConfig()
	cfg.ProjectRoot = root
	p, _ := newTestPipeline(t, cfg)

	ticket, err := p.RecordError(Request{
		ErrorType:      "DatabaseError",
		Message:        "connection refused",
		Source:         "mod/pool.go:30",
		CaptureContext: true,
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, ticket)
	require.NotEmpty(t, ticket.FileContext)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(ticket.FileContext), &decoded))
	snippet, ok := decoded[sourcePath]
	require.True(t, ok)
	require.Contains(t, snippet, "30: line content")
}

func TestRecordErrorSkipsFileContextForMinimalContextPriority(t *testing.T) {
	root := t.TempDir()
	sourcePath := filepath.Join(root, "mod.go")
	require.NoError(t, os.WriteFile(sourcePath, []byte("package mod\n"), 0o644))

	cfg := DefaultConfig()
	cfg.ProjectRoot = root
	p, _ := newTestPipeline(t, cfg)

	ticket, err := p.RecordError(Request{
		ErrorType:      "LintError",
		Message:        "style nit",
		Source:         "mod.go:1",
		CaptureContext: true,
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, ticket)
	require.Empty(t, ticket.FileContext)
}

func TestCaptureFileContextReturnsEmptyForUnresolvableSource(t *testing.T) {
	p, _ := newTestPipeline(t, DefaultConfig())
	require.Empty(t, p.captureFileContext("no/such/file.go:12"))
}

