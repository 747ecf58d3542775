package modulestatus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyStatuses(t *testing.T) {
	s := New(t.TempDir())
	st, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, st.Active)
	require.Empty(t, st.Disabled)
	require.Empty(t, st.Error)
}

func TestEnableDisableMarkErrorMoveBetweenBuckets(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.Enable("billing"))
	st, err := s.Load()
	require.NoError(t, err)
	require.Contains(t, st.Active, "billing")

	require.NoError(t, s.Disable("billing"))
	st, err = s.Load()
	require.NoError(t, err)
	require.NotContains(t, st.Active, "billing")
	require.Contains(t, st.Disabled, "billing")

	require.NoError(t, s.MarkError("billing"))
	st, err = s.Load()
	require.NoError(t, err)
	require.NotContains(t, st.Disabled, "billing")
	require.Contains(t, st.Error, "billing")
}

func TestEnableIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Enable("billing"))
	require.NoError(t, s.Enable("billing"))

	st, err := s.Load()
	require.NoError(t, err)
	require.Len(t, st.Active, 1)
}

func TestLoadCorruptFileBacksUpAndResets(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := filepath.Join(dir, "module_statuses.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	st, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, st.Active)

	_, statErr := os.Stat(path + ".corrupt.json")
	require.NoError(t, statErr)
}
