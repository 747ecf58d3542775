package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.txt")
	require.NoError(t, WriteString(path, "hello"))

	got, err := ReadOrEmpty(path)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestReadOrEmptyMissingFile(t *testing.T) {
	got, err := ReadOrEmpty(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestReadBytesOrNilMissingFile(t *testing.T) {
	got, err := ReadBytesOrNil(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTrimToLineBoundaryCutsAtNewline(t *testing.T) {
	content := []byte("line1\nline2\nline3\n")
	trimmed := TrimToLineBoundary(content, 8)
	require.Equal(t, []byte("line1\n"), trimmed)
}

func TestTrimToLineBoundaryNoopUnderLimit(t *testing.T) {
	content := []byte("short")
	require.Equal(t, content, TrimToLineBoundary(content, 100))
}

func TestAppendWithGuardTrimsFromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, AppendWithGuard(path, "aaaa\n", 0))
	require.NoError(t, AppendWithGuard(path, "bbbb\n", 6))

	got, err := ReadOrEmpty(path)
	require.NoError(t, err)
	require.Equal(t, "bbbb\n", got)
}

func TestIdempotentAppendSkipsDuplicateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	wrote, err := IdempotentAppend(path, "entry-1 details\n", "entry-1")
	require.NoError(t, err)
	require.True(t, wrote)

	wrote, err = IdempotentAppend(path, "entry-1 details again\n", "entry-1")
	require.NoError(t, err)
	require.False(t, wrote)

	got, err := ReadOrEmpty(path)
	require.NoError(t, err)
	require.Equal(t, "entry-1 details\n", got)
}

func TestRotateShiftsNumberedBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, WriteString(path, "current"))

	require.NoError(t, Rotate(path, 2))
	data, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Equal(t, "current", string(data))

	require.NoError(t, WriteString(path, "newer"))
	require.NoError(t, Rotate(path, 2))

	data, err = os.ReadFile(path + ".2")
	require.NoError(t, err)
	require.Equal(t, "current", string(data))

	data, err = os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Equal(t, "newer", string(data))
}
