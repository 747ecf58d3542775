// Package eventlog is the append-only observation stream: every
// component logs ticket lifecycle and system events here for later
// querying, independent of the structured process logger in obslog.
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

// Level mirrors the severities an event can carry.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Event is a single append-only row.
type Event struct {
	ID            int64
	Timestamp     time.Time
	EventType     string
	Level         Level
	Message       string
	TicketID      string
	CorrelationID string
	Source        string
	Extra         map[string]any
}

// Filter narrows Get results.
type Filter struct {
	EventType     string
	TicketID      string
	CorrelationID string
	Level         Level
	Source        string
	Limit         int
	Offset        int
}

// Log is the event log writer/reader. Emission can run on a
// single-worker async path (the default) or synchronously under Sync,
// matching the test-flag contract in spec 4.5; both paths are safe to
// call during shutdown because Flush drains the queue first.
type Log struct {
	conn *sql.DB
	Sync bool

	mu      sync.Mutex
	queue   chan Event
	done    chan struct{}
	started bool
}

const queueCapacity = 4096

// New creates a Log over the ticket store's shared connection.
func New(conn *sql.DB) *Log {
	return &Log{conn: conn, queue: make(chan Event, queueCapacity), done: make(chan struct{})}
}

// Start launches the single background writer goroutine. Safe to call
// once; subsequent calls are no-ops.
func (l *Log) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	go l.run()
}

func (l *Log) run() {
	for {
		select {
		case ev, ok := <-l.queue:
			if !ok {
				close(l.done)
				return
			}
			_ = l.writeRow(ev)
		}
	}
}

// Append records an event. Writes are best-effort: a storage failure is
// swallowed here, not propagated, so a failing event log never becomes
// a recursive failure path for the component that's logging an error.
func (l *Log) Append(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Level == "" {
		ev.Level = LevelInfo
	}

	if l.Sync {
		_ = l.writeRow(ev)
		return
	}

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		l.Start()
	}

	select {
	case l.queue <- ev:
	default:
		// Drop-oldest backpressure: make room for the newest event
		// rather than blocking the caller's hot path.
		select {
		case <-l.queue:
		default:
		}
		select {
		case l.queue <- ev:
		default:
		}
	}
}

// Flush drains the async queue synchronously, for use at shutdown.
func (l *Log) Flush() {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return
	}
	close(l.queue)
	<-l.done
}

func (l *Log) writeRow(ev Event) error {
	var extraJSON sql.NullString
	if ev.Extra != nil {
		data, err := json.Marshal(ev.Extra)
		if err == nil {
			extraJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	var ticketID, correlationID sql.NullString
	if ev.TicketID != "" {
		ticketID = sql.NullString{String: ev.TicketID, Valid: true}
	}
	if ev.CorrelationID != "" {
		correlationID = sql.NullString{String: ev.CorrelationID, Valid: true}
	}

	_, err := l.conn.Exec(`
		INSERT INTO event_log (timestamp, event_type, level, message, ticket_id, correlation_id, source, extra_json)
		VALUES (?,?,?,?,?,?,?,?)`,
		ev.Timestamp.Format(time.RFC3339Nano), ev.EventType, string(ev.Level), ev.Message,
		ticketID, correlationID, ev.Source, extraJSON,
	)
	return err
}

// Get queries events per filter, default ordering timestamp DESC.
func (l *Log) Get(filter Filter) ([]Event, error) {
	query := `SELECT id, timestamp, event_type, level, message, ticket_id, correlation_id, source, extra_json FROM event_log`
	var clauses []string
	var args []any

	if filter.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.TicketID != "" {
		clauses = append(clauses, "ticket_id = ?")
		args = append(args, filter.TicketID)
	}
	if filter.CorrelationID != "" {
		clauses = append(clauses, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}
	if filter.Level != "" {
		clauses = append(clauses, "level = ?")
		args = append(args, string(filter.Level))
	}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}
	if len(clauses) > 0 {
		query += " WHERE "
		for i, c := range clauses {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := l.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: get: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts, level string
		var ticketID, correlationID, source, extraJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ts, &ev.EventType, &level, &ev.Message, &ticketID, &correlationID, &source, &extraJSON); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		ev.Level = Level(level)
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = parsed
		}
		ev.TicketID = ticketID.String
		ev.CorrelationID = correlationID.String
		ev.Source = source.String
		if extraJSON.Valid {
			_ = json.Unmarshal([]byte(extraJSON.String), &ev.Extra)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneOldEvents deletes events older than the given day window.
func (l *Log) PruneOldEvents(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	res, err := l.conn.Exec(`DELETE FROM event_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("eventlog: prune: %w", err)
	}
	return res.RowsAffected()
}

// EventStats summarises the event log by level.
type EventStats struct {
	Total   int
	ByLevel map[Level]int
}

// Stats returns the event counts by level.
func (l *Log) Stats() (EventStats, error) {
	stats := EventStats{ByLevel: map[Level]int{}}
	if err := l.conn.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("eventlog: stats: %w", err)
	}
	rows, err := l.conn.Query(`SELECT level, COUNT(*) FROM event_log GROUP BY level`)
	if err != nil {
		return stats, fmt.Errorf("eventlog: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return stats, err
		}
		stats.ByLevel[Level(level)] = count
	}
	return stats, rows.Err()
}

// TicketEvent is a convenience constructor binding an event to a ticket,
// used across C9/C10 when logging lifecycle transitions.
func TicketEvent(eventType string, level Level, ticket *ticketstore.Ticket, message, correlationID string) Event {
	return Event{
		EventType:     eventType,
		Level:         level,
		Message:       message,
		TicketID:      ticket.ID,
		CorrelationID: correlationID,
		Source:        "ticketstore",
	}
}
