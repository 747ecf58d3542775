package fallbackqueue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.json"), DefaultConfig())
	require.NoError(t, err)
	return q
}

func TestEnqueueDeduplicatesByOperationAndKey(t *testing.T) {
	q := newTestQueue(t)

	id1, err := q.Enqueue(OpWrite, "ticket:1", "first", nil)
	require.NoError(t, err)

	id2, err := q.Enqueue(OpWrite, "ticket:1", "second", nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, q.Size())

	entries := q.Peek(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Content)
}

func TestEnqueueEvictsOldestOnOverflow(t *testing.T) {
	q := newTestQueue(t)
	q.cfg.MaxEntries = 2
	q.cfg.Deduplication = false

	_, err := q.Enqueue(OpWrite, "a", "1", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(OpWrite, "b", "2", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(OpWrite, "c", "3", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, q.Size())
	entries := q.Peek(2)
	assert.Equal(t, "b", entries[0].Key)
	assert.Equal(t, "c", entries[1].Key)
}

func TestReplaySkipsEntriesPastMaxRetries(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(OpAppend, "k1", "v1", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(OpAppend, "k2", "v2", nil)
	require.NoError(t, err)

	stats, err := q.Replay(func(e Entry) bool { return e.Key == "k1" }, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, q.Size())

	for i := 0; i < 3; i++ {
		_, err = q.Replay(func(Entry) bool { return false }, 3)
		require.NoError(t, err)
	}

	stats, err = q.Replay(func(Entry) bool { return false }, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, q.Size())
}

func TestReplayRecoversFromPanickingHandler(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(OpDelete, "k1", "v1", nil)
	require.NoError(t, err)

	stats, err := q.Replay(func(Entry) bool { panic("boom") }, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, q.Size())
}

func TestEnqueueRejectsInvalidOperation(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(Operation("nope"), "k", "v", nil)
	assert.Error(t, err)
}
