package diagnostics

import (
	"archive/zip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/config"
	"github.com/gmanldn/actifix/internal/health"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

func newTestExporter(t *testing.T) (*Exporter, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := ticketstore.Open(filepath.Join(dir, "tickets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := ticketstore.NewStore(db)

	_, _, err = store.CreateTicket(time.Now(), ticketstore.NewTicket{
		Priority:  ticketstore.PriorityP2,
		ErrorType: "ValueError",
		Message:   "something broke",
		Source:    "worker.py",
	})
	require.NoError(t, err)

	checker := health.New(store, health.DefaultSLAHours(), dir, dir, nil, nil)
	return New(store, checker, nil, config.Default(), dir, dir), dir
}

func TestExportWritesZipBundle(t *testing.T) {
	exporter, dir := newTestExporter(t)

	path, err := exporter.Export(time.Now(), "", true, true)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, dir, filepath.Dir(path))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names["diagnostics.json"])
	require.True(t, names["system_info.txt"])
	require.True(t, names["recent_logs.txt"])
}

func TestCollectIncludesRecentTickets(t *testing.T) {
	exporter, _ := newTestExporter(t)
	bundle := exporter.Collect(time.Now(), true)
	require.Len(t, bundle.RecentTickets, 1)
	require.Equal(t, "ValueError", bundle.RecentTickets[0].ErrorType)
}

func TestSummaryRendersHeadline(t *testing.T) {
	exporter, _ := newTestExporter(t)
	summary := exporter.Summary(time.Now())
	require.Contains(t, summary, "ACTIFIX DIAGNOSTICS SUMMARY")
	require.Contains(t, summary, "overall:")
}
