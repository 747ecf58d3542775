package ticketstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "actifix.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestCreateTicketDuplicateGuard(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	ticket, created, err := store.CreateTicket(now, NewTicket{
		DuplicateGuard: "guard-1",
		Priority:       PriorityP1,
		ErrorType:      "ValueError",
		Message:        "boom",
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, ticket.ID)

	_, created, err = store.CreateTicket(now, NewTicket{
		DuplicateGuard: "guard-1",
		Priority:       PriorityP1,
		ErrorType:      "ValueError",
		Message:        "boom again",
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestGetAndLockNextTicketOrdersByPriorityThenAge(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()

	_, _, err := store.CreateTicket(base, NewTicket{DuplicateGuard: "g1", Priority: PriorityP3, ErrorType: "E", Message: "m"})
	require.NoError(t, err)
	_, _, err = store.CreateTicket(base.Add(time.Second), NewTicket{DuplicateGuard: "g2", Priority: PriorityP0, ErrorType: "E", Message: "m"})
	require.NoError(t, err)
	_, _, err = store.CreateTicket(base.Add(2*time.Second), NewTicket{DuplicateGuard: "g3", Priority: PriorityP0, ErrorType: "E", Message: "m"})
	require.NoError(t, err)

	claimed, err := store.GetAndLockNextTicket("worker-1", base.Add(3*time.Second), time.Hour, nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, PriorityP0, claimed.Priority)
	assert.Equal(t, "g2", claimed.DuplicateGuard)
	assert.Equal(t, StatusInProgress, claimed.Status)
	assert.Equal(t, "worker-1", claimed.LockedBy)
}

func TestGetAndLockNextTicketReturnsNilWhenNoneOpen(t *testing.T) {
	store := newTestStore(t)
	claimed, err := store.GetAndLockNextTicket("worker-1", time.Now(), time.Hour, nil)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestAcquireLockRespectsExpiredLease(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	ticket, _, err := store.CreateTicket(now, NewTicket{DuplicateGuard: "g1", Priority: PriorityP2, ErrorType: "E", Message: "m"})
	require.NoError(t, err)

	lock, err := store.AcquireLock(ticket.ID, "holder-a", now, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, lock)

	// Still held, not yet expired.
	again, err := store.AcquireLock(ticket.ID, "holder-b", now, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, again)

	// Lease has now elapsed; holder-b can claim it.
	later := now.Add(time.Second)
	again, err = store.AcquireLock(ticket.ID, "holder-b", later, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "holder-b", again.LockedBy)
}

func TestReleaseLockRequiresHolder(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	ticket, _, err := store.CreateTicket(now, NewTicket{DuplicateGuard: "g1", Priority: PriorityP2, ErrorType: "E", Message: "m"})
	require.NoError(t, err)

	_, err = store.AcquireLock(ticket.ID, "holder-a", now, time.Hour)
	require.NoError(t, err)

	err = store.ReleaseLock(ticket.ID, "holder-b", now)
	assert.Error(t, err)

	err = store.ReleaseLock(ticket.ID, "holder-a", now)
	assert.NoError(t, err)

	fetched, err := store.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, fetched.Status)
	assert.Empty(t, fetched.LockedBy)
}

func TestMarkCompleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	ticket, _, err := store.CreateTicket(now, NewTicket{DuplicateGuard: "g1", Priority: PriorityP2, ErrorType: "E", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, store.MarkComplete(ticket.ID, "fixed it", now))
	require.NoError(t, store.MarkComplete(ticket.ID, "fixed it again", now))

	fetched, err := store.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, fetched.Status)
	assert.True(t, fetched.Completed)
	assert.True(t, fetched.Documented)
	assert.True(t, fetched.Functioning)
	assert.True(t, fetched.Tested)
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	_, _, err := store.CreateTicket(now, NewTicket{DuplicateGuard: "g1", Priority: PriorityP0, ErrorType: "E", Message: "m"})
	require.NoError(t, err)
	_, _, err = store.CreateTicket(now, NewTicket{DuplicateGuard: "g2", Priority: PriorityP1, ErrorType: "E", Message: "m"})
	require.NoError(t, err)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[StatusOpen])
	assert.Equal(t, 1, stats.ByPriority[PriorityP0])
}

func TestOrdinalUnknownPrioritySortsLast(t *testing.T) {
	assert.Less(t, Ordinal(PriorityP0), Ordinal(PriorityP4))
	assert.Greater(t, Ordinal(Priority("P9")), Ordinal(PriorityP4))
}
