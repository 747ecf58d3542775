package quarantine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuarantineRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "quarantine")
	store := New(dir, nil)

	entry, err := store.Quarantine("{bad json", "ticket-123", "unparseable payload")
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ticket-123", entries[0].OriginalSource)
	require.Equal(t, "unparseable payload", entries[0].Reason)
	require.Equal(t, "{bad json", entries[0].Content)

	removed, err := store.Remove(entry.ID)
	require.NoError(t, err)
	require.True(t, removed)

	count, err = store.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestQuarantineRenderHTML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "quarantine")
	store := New(dir, nil)

	entry, err := store.Quarantine("raw payload", "ticket-456", "schema mismatch")
	require.NoError(t, err)

	html, err := store.RenderHTML(entry)
	require.NoError(t, err)
	require.Contains(t, html, "<h1>Quarantined Content</h1>")
}

func TestQuarantineRemoveMissingEntryReturnsFalse(t *testing.T) {
	store := New(t.TempDir(), nil)
	removed, err := store.Remove("quarantine_does_not_exist")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestQuarantineListEmptyDirReturnsEmptySlice(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "missing"), nil)
	entries, err := store.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}
