package throttle

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/apperrors"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

func newTestThrottler(t *testing.T, cfg Config) *Throttler {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tickets.db")
	db, err := ticketstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(cfg, db.Conn())
}

func TestCheckAllowsP0AndP1Unconditionally(t *testing.T) {
	th := newTestThrottler(t, Config{Enabled: true, EmergencyThreshold: 1, EmergencyWindowMins: 10})
	now := time.Now()
	th.Record(ticketstore.PriorityP2, "t1", "ValueError", now)

	require.NoError(t, th.Check(ticketstore.PriorityP0, now))
	require.NoError(t, th.Check(ticketstore.PriorityP1, now))
}

func TestCheckEnforcesP2HourlyCap(t *testing.T) {
	th := newTestThrottler(t, Config{Enabled: true, MaxP2PerHour: 2, EmergencyThreshold: 1000, EmergencyWindowMins: 10})
	now := time.Now()

	require.NoError(t, th.Check(ticketstore.PriorityP2, now))
	th.Record(ticketstore.PriorityP2, "t1", "ValueError", now)
	require.NoError(t, th.Check(ticketstore.PriorityP2, now))
	th.Record(ticketstore.PriorityP2, "t2", "ValueError", now)

	err := th.Check(ticketstore.PriorityP2, now)
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, apperrors.CodeThrottleExceeded, appErr.Code)
}

func TestCheckIgnoresOldEntriesOutsideWindow(t *testing.T) {
	th := newTestThrottler(t, Config{Enabled: true, MaxP2PerHour: 1, EmergencyThreshold: 1000, EmergencyWindowMins: 10})
	now := time.Now()
	th.Record(ticketstore.PriorityP2, "t1", "ValueError", now.Add(-2*time.Hour))

	require.NoError(t, th.Check(ticketstore.PriorityP2, now))
}

func TestCheckEmergencyBrakeTripsAcrossPriorities(t *testing.T) {
	th := newTestThrottler(t, Config{
		Enabled: true, MaxP2PerHour: 100, MaxP3Per4Hours: 100, MaxP4PerDay: 100,
		EmergencyThreshold: 3, EmergencyWindowMins: 10,
	})
	now := time.Now()
	th.Record(ticketstore.PriorityP2, "t1", "ValueError", now)
	th.Record(ticketstore.PriorityP3, "t2", "ValueError", now)
	th.Record(ticketstore.PriorityP4, "t3", "ValueError", now)

	err := th.Check(ticketstore.PriorityP2, now)
	require.Error(t, err)
}

func TestCheckDisabledNeverThrottles(t *testing.T) {
	th := newTestThrottler(t, Config{Enabled: false, MaxP2PerHour: 1, EmergencyThreshold: 1, EmergencyWindowMins: 10})
	now := time.Now()
	th.Record(ticketstore.PriorityP2, "t1", "ValueError", now)
	require.NoError(t, th.Check(ticketstore.PriorityP2, now))
}

func TestGetStatsReportsCurrentCounts(t *testing.T) {
	th := newTestThrottler(t, Config{Enabled: true, MaxP2PerHour: 100, EmergencyThreshold: 100, EmergencyWindowMins: 10})
	now := time.Now()
	th.Record(ticketstore.PriorityP2, "t1", "ValueError", now)
	th.Record(ticketstore.PriorityP3, "t2", "ValueError", now)

	stats := th.GetStats(now)
	require.Equal(t, 1, stats.P2CountLastHour)
	require.Equal(t, 1, stats.P3CountLast4Hours)
	require.Equal(t, 0, stats.P4CountLastDay)
}
