// Package throttle gates ticket *creation* (not dispatch) to prevent
// accidental floods from loops or recursive errors. An in-memory ring
// backs the hot check path; a durable ticket_creations ledger (shared
// with the ticket store's database) backs restarts and operator
// inspection.
package throttle

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/gmanldn/actifix/internal/apperrors"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

// Config mirrors the ThrottleLimits section of the typed config (C1).
type Config struct {
	MaxP2PerHour        int
	MaxP3Per4Hours      int
	MaxP4PerDay         int
	EmergencyThreshold  int
	EmergencyWindowMins int
	Enabled             bool
}

// Throttler enforces the four creation-rate rules from spec 4.7.
type Throttler struct {
	cfg  Config
	conn *sql.DB

	mu      sync.Mutex
	history map[ticketstore.Priority][]time.Time
}

// New wraps the ticket store's shared connection; the ticket_creations
// table is created by ticketstore's migrations.
func New(cfg Config, conn *sql.DB) *Throttler {
	return &Throttler{cfg: cfg, conn: conn, history: make(map[ticketstore.Priority][]time.Time)}
}

// Check returns a throttle AppError if creating a ticket of priority
// now would exceed a configured limit. P0/P1 are never throttled, but
// the emergency brake still applies to them via the combined P2-P4 count.
func (t *Throttler) Check(priority ticketstore.Priority, now time.Time) error {
	if !t.cfg.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	emergencyWindow := time.Duration(t.cfg.EmergencyWindowMins) * time.Minute
	emergencyStart := now.Add(-emergencyWindow)
	var recentTotal int
	for _, p := range []ticketstore.Priority{ticketstore.PriorityP2, ticketstore.PriorityP3, ticketstore.PriorityP4} {
		recentTotal += countSince(t.history[p], emergencyStart)
	}
	if recentTotal >= t.cfg.EmergencyThreshold {
		return apperrors.New(apperrors.CodeThrottleExceeded,
			fmt.Sprintf("emergency brake: %d tickets created in last %d minute(s) (threshold %d)",
				recentTotal, t.cfg.EmergencyWindowMins, t.cfg.EmergencyThreshold),
			429).WithDetail("window", "emergency")
	}

	switch priority {
	case ticketstore.PriorityP0, ticketstore.PriorityP1:
		return nil
	case ticketstore.PriorityP2:
		count := countSince(t.history[priority], now.Add(-time.Hour))
		if count >= t.cfg.MaxP2PerHour {
			return apperrors.ThrottleExceeded(string(priority), "1h")
		}
	case ticketstore.PriorityP3:
		count := countSince(t.history[priority], now.Add(-4*time.Hour))
		if count >= t.cfg.MaxP3Per4Hours {
			return apperrors.ThrottleExceeded(string(priority), "4h")
		}
	case ticketstore.PriorityP4:
		count := countSince(t.history[priority], now.Add(-24*time.Hour))
		if count >= t.cfg.MaxP4PerDay {
			return apperrors.ThrottleExceeded(string(priority), "24h")
		}
	}
	return nil
}

func countSince(timestamps []time.Time, since time.Time) int {
	count := 0
	for _, ts := range timestamps {
		if !ts.Before(since) {
			count++
		}
	}
	return count
}

// Record logs a ticket creation in the in-memory ring and the durable
// ledger, then prunes entries older than 24h from both.
func (t *Throttler) Record(priority ticketstore.Priority, ticketID, errorType string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history[priority] = append(t.history[priority], now)

	if t.conn != nil {
		_, _ = t.conn.Exec(`INSERT INTO ticket_creations (priority, timestamp, ticket_id, error_type) VALUES (?,?,?,?)`,
			string(priority), now.Format(time.RFC3339Nano), ticketID, errorType)
		cutoff := now.Add(-24 * time.Hour).Format(time.RFC3339Nano)
		_, _ = t.conn.Exec(`DELETE FROM ticket_creations WHERE timestamp < ?`, cutoff)
	}

	cutoff := now.Add(-24 * time.Hour)
	for p, timestamps := range t.history {
		kept := timestamps[:0:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		t.history[p] = kept
	}
}

// Stats is the per-rule snapshot returned for status/health surfaces.
type Stats struct {
	EmergencyRecentCount int
	P2CountLastHour      int
	P3CountLast4Hours    int
	P4CountLastDay       int
}

// GetStats reports current counts for each throttle rule.
func (t *Throttler) GetStats(now time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	emergencyStart := now.Add(-time.Duration(t.cfg.EmergencyWindowMins) * time.Minute)
	var emergencyTotal int
	for _, p := range []ticketstore.Priority{ticketstore.PriorityP2, ticketstore.PriorityP3, ticketstore.PriorityP4} {
		emergencyTotal += countSince(t.history[p], emergencyStart)
	}

	return Stats{
		EmergencyRecentCount: emergencyTotal,
		P2CountLastHour:      countSince(t.history[ticketstore.PriorityP2], now.Add(-time.Hour)),
		P3CountLast4Hours:    countSince(t.history[ticketstore.PriorityP3], now.Add(-4*time.Hour)),
		P4CountLastDay:       countSince(t.history[ticketstore.PriorityP4], now.Add(-24*time.Hour)),
	}
}
