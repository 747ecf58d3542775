package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tickets.db")
	db, err := ticketstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := New(db.Conn())
	log.Sync = true
	return log
}

func TestAppendAndGetRoundTrip(t *testing.T) {
	log := newTestLog(t)

	log.Append(Event{
		EventType: "TICKET_CREATED",
		Level:     LevelInfo,
		Message:   "ticket created",
		TicketID:  "ACTIFIX-test-1",
		Source:    "ingest",
		Extra:     map[string]any{"priority": "P2"},
	})

	events, err := log.Get(Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "TICKET_CREATED", events[0].EventType)
	require.Equal(t, LevelInfo, events[0].Level)
	require.Equal(t, "ACTIFIX-test-1", events[0].TicketID)
	require.Equal(t, "P2", events[0].Extra["priority"])
}

func TestAppendDefaultsTimestampAndLevel(t *testing.T) {
	log := newTestLog(t)
	log.Append(Event{EventType: "PING"})

	events, err := log.Get(Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, LevelInfo, events[0].Level)
	require.WithinDuration(t, time.Now(), events[0].Timestamp, time.Minute)
}

func TestGetFiltersByEventTypeAndLevel(t *testing.T) {
	log := newTestLog(t)
	log.Append(Event{EventType: "TICKET_CREATED", Level: LevelInfo})
	log.Append(Event{EventType: "TICKET_FAILED", Level: LevelError})
	log.Append(Event{EventType: "TICKET_CREATED", Level: LevelInfo})

	events, err := log.Get(Filter{EventType: "TICKET_CREATED"})
	require.NoError(t, err)
	require.Len(t, events, 2)

	events, err = log.Get(Filter{Level: LevelError})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "TICKET_FAILED", events[0].EventType)
}

func TestGetRespectsLimit(t *testing.T) {
	log := newTestLog(t)
	for i := 0; i < 5; i++ {
		log.Append(Event{EventType: "PING"})
	}

	events, err := log.Get(Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestPruneOldEventsDeletesOnlyStaleRows(t *testing.T) {
	log := newTestLog(t)
	log.Append(Event{EventType: "OLD", Timestamp: time.Now().AddDate(0, 0, -30)})
	log.Append(Event{EventType: "RECENT"})

	deleted, err := log.PruneOldEvents(7)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	events, err := log.Get(Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "RECENT", events[0].EventType)
}

func TestStatsCountsByLevel(t *testing.T) {
	log := newTestLog(t)
	log.Append(Event{EventType: "A", Level: LevelInfo})
	log.Append(Event{EventType: "B", Level: LevelWarning})
	log.Append(Event{EventType: "C", Level: LevelWarning})

	stats, err := log.Stats()
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.ByLevel[LevelInfo])
	require.Equal(t, 2, stats.ByLevel[LevelWarning])
}

func TestTicketEventBindsTicketFields(t *testing.T) {
	ticket := &ticketstore.Ticket{ID: "ACTIFIX-test-2"}
	ev := TicketEvent("TICKET_COMPLETED", LevelInfo, ticket, "done", "corr-1")
	require.Equal(t, "ACTIFIX-test-2", ev.TicketID)
	require.Equal(t, "corr-1", ev.CorrelationID)
	require.Equal(t, "ticketstore", ev.Source)
}
