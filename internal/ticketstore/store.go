package ticketstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gmanldn/actifix/internal/apperrors"
)

const timeLayout = time.RFC3339Nano

// Store is the ticket CRUD and locking surface backed by a *DB.
type Store struct {
	db *DB
}

// NewStore wraps an already-open DB.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// GenerateID produces a ticket identifier of the form ACT-YYYYMMDD-XXXXX.
func GenerateID(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:5])
	return fmt.Sprintf("ACT-%s-%s", now.Format("20060102"), suffix)
}

// CreateTicket inserts a new ticket. A duplicate_guard collision is not
// an error: it returns (nil, false, nil) so the caller can treat it as
// "ticket already exists".
func (s *Store) CreateTicket(now time.Time, in NewTicket) (*Ticket, bool, error) {
	id := GenerateID(now)
	ticket := &Ticket{
		ID:             id,
		DuplicateGuard: in.DuplicateGuard,
		Priority:       in.Priority,
		ErrorType:      in.ErrorType,
		Message:        in.Message,
		Source:         in.Source,
		RunLabel:       in.RunLabel,
		CorrelationID:  in.CorrelationID,
		CreatedAt:      now,
		UpdatedAt:      now,
		FormatVersion:  1,
		Status:         StatusOpen,
		StackTrace:     in.StackTrace,
		FileContext:    in.FileContext,
		SystemState:    in.SystemState,
	}

	_, err := s.db.Conn().Exec(`
		INSERT INTO tickets (
			id, duplicate_guard, priority, error_type, message, source,
			run_label, correlation_id, created_at, updated_at, format_version,
			status, stack_trace, file_context, system_state
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ticket.ID, ticket.DuplicateGuard, string(ticket.Priority), ticket.ErrorType, ticket.Message, ticket.Source,
		ticket.RunLabel, ticket.CorrelationID, ticket.CreatedAt.Format(timeLayout), ticket.UpdatedAt.Format(timeLayout), ticket.FormatVersion,
		string(ticket.Status), ticket.StackTrace, ticket.FileContext, ticket.SystemState,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, false, nil
		}
		return nil, false, apperrors.StorageError("create_ticket", err)
	}
	return ticket, true, nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// CheckDuplicateGuard returns the existing ticket for guard, if any.
func (s *Store) CheckDuplicateGuard(guard string) (*Ticket, error) {
	row := s.db.Conn().QueryRow(selectColumns+` WHERE duplicate_guard = ?`, guard)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StorageError("check_duplicate_guard", err)
	}
	return ticket, nil
}

// GetTicket fetches a single ticket by id.
func (s *Store) GetTicket(id string) (*Ticket, error) {
	row := s.db.Conn().QueryRow(selectColumns+` WHERE id = ?`, id)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.StorageNotFound("ticket", id)
	}
	if err != nil {
		return nil, apperrors.StorageError("get_ticket", err)
	}
	return ticket, nil
}

// GetTickets returns tickets matching filter, priority-ascending then
// created_at descending, per spec 4.4.
func (s *Store) GetTickets(filter Filter) ([]*Ticket, error) {
	var clauses []string
	var args []any

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.Owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, filter.Owner)
	}
	if filter.LockedOnly {
		clauses = append(clauses, "locked_by IS NOT NULL")
	}
	if filter.UnlockedOnly {
		clauses = append(clauses, "locked_by IS NULL")
	}
	if filter.CreatedAfter != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.CreatedAfter.Format(timeLayout))
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.CreatedBefore.Format(timeLayout))
	}
	if filter.CorrelationID != "" {
		clauses = append(clauses, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}

	query := selectColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += priorityOrderClause + ", created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, apperrors.StorageError("get_tickets", err)
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		ticket, err := scanTicketRows(rows)
		if err != nil {
			return nil, apperrors.StorageError("get_tickets", err)
		}
		out = append(out, ticket)
	}
	return out, rows.Err()
}

// priorityOrderClause is the explicit ordinal CASE expression spec'd in
// place of lexicographic ordering.
const priorityOrderClause = ` ORDER BY CASE priority
	WHEN 'P0' THEN 0 WHEN 'P1' THEN 1 WHEN 'P2' THEN 2 WHEN 'P3' THEN 3 WHEN 'P4' THEN 4 ELSE 5 END`

// UpdateTicket applies a partial update; updated_at is always bumped.
func (s *Store) UpdateTicket(id string, fields map[string]any, now time.Time) error {
	if len(fields) == 0 {
		return nil
	}
	var setClauses []string
	var args []any
	for col, val := range fields {
		if !updatableColumns[col] {
			continue
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, now.Format(timeLayout))
	args = append(args, id)

	query := "UPDATE tickets SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	res, err := s.db.Conn().Exec(query, args...)
	if err != nil {
		return apperrors.StorageError("update_ticket", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.StorageNotFound("ticket", id)
	}
	return nil
}

var updatableColumns = map[string]bool{
	"priority": true, "error_type": true, "message": true, "source": true,
	"owner": true, "branch": true, "stack_trace": true, "file_context": true,
	"system_state": true, "ai_remediation_notes": true, "completion_summary": true,
	"documented": true, "functioning": true, "tested": true, "status": true,
}

// MarkComplete idempotently transitions a ticket to Completed, clearing
// locks and flipping the checklist booleans.
func (s *Store) MarkComplete(id, summary string, now time.Time) error {
	res, err := s.db.Conn().Exec(`
		UPDATE tickets SET
			status = ?, documented = 1, functioning = 1, tested = 1, completed = 1,
			completion_summary = ?, locked_by = NULL, locked_at = NULL, lease_expires = NULL,
			updated_at = ?
		WHERE id = ?`,
		string(StatusCompleted), summary, now.Format(timeLayout), id,
	)
	if err != nil {
		return apperrors.StorageError("mark_complete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.StorageNotFound("ticket", id)
	}
	return nil
}

// AcquireLock succeeds iff the row is unlocked or its lease has expired.
func (s *Store) AcquireLock(id, holder string, now time.Time, leaseDuration time.Duration) (*Lock, error) {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return nil, apperrors.StorageError("acquire_lock", err)
	}
	defer tx.Rollback()

	leaseExpires := now.Add(leaseDuration)
	res, err := tx.Exec(`
		UPDATE tickets SET locked_by = ?, locked_at = ?, lease_expires = ?, status = ?, updated_at = ?
		WHERE id = ? AND (locked_by IS NULL OR lease_expires < ?)`,
		holder, now.Format(timeLayout), leaseExpires.Format(timeLayout), string(StatusInProgress), now.Format(timeLayout),
		id, now.Format(timeLayout),
	)
	if err != nil {
		return nil, apperrors.StorageError("acquire_lock", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.StorageError("acquire_lock", err)
	}
	return &Lock{TicketID: id, LockedBy: holder, LockedAt: now, LeaseExpires: leaseExpires}, nil
}

// RenewLock extends the lease only if holder currently owns it.
func (s *Store) RenewLock(id, holder string, now time.Time, leaseDuration time.Duration) (*Lock, error) {
	leaseExpires := now.Add(leaseDuration)
	res, err := s.db.Conn().Exec(`
		UPDATE tickets SET lease_expires = ?, updated_at = ?
		WHERE id = ? AND locked_by = ?`,
		leaseExpires.Format(timeLayout), now.Format(timeLayout), id, holder,
	)
	if err != nil {
		return nil, apperrors.StorageError("renew_lock", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, nil
	}
	return &Lock{TicketID: id, LockedBy: holder, LockedAt: now, LeaseExpires: leaseExpires}, nil
}

// ReleaseLock transitions the ticket back to Open, only if holder
// currently owns the lock.
func (s *Store) ReleaseLock(id, holder string, now time.Time) error {
	res, err := s.db.Conn().Exec(`
		UPDATE tickets SET locked_by = NULL, locked_at = NULL, lease_expires = NULL, status = ?, updated_at = ?
		WHERE id = ? AND locked_by = ?`,
		string(StatusOpen), now.Format(timeLayout), id, holder,
	)
	if err != nil {
		return apperrors.StorageError("release_lock", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.New(apperrors.CodeLockContention, "lock not held by caller", 409).WithDetail("ticket_id", id)
	}
	return nil
}

// CleanupExpiredLocks clears lock fields and restores Open status for
// every row whose lease has expired.
func (s *Store) CleanupExpiredLocks(now time.Time) (int64, error) {
	res, err := s.db.Conn().Exec(`
		UPDATE tickets SET locked_by = NULL, locked_at = NULL, lease_expires = NULL, status = ?, updated_at = ?
		WHERE lease_expires IS NOT NULL AND lease_expires < ? AND status != ?`,
		string(StatusOpen), now.Format(timeLayout), now.Format(timeLayout), string(StatusCompleted),
	)
	if err != nil {
		return 0, apperrors.StorageError("cleanup_expired_locks", err)
	}
	return res.RowsAffected()
}

// GetAndLockNextTicket is the critical atomic claim: in one transaction
// it expires stale locks, selects the single highest-priority oldest
// open+unlocked ticket (optionally constrained to priorityFilter), locks
// it, and returns it. This is the only race-free way for concurrent
// dispatch workers to pick up work.
func (s *Store) GetAndLockNextTicket(holder string, now time.Time, leaseDuration time.Duration, priorityFilter []Priority) (*Ticket, error) {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return nil, apperrors.StorageError("get_and_lock_next_ticket", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE tickets SET locked_by = NULL, locked_at = NULL, lease_expires = NULL, status = ?, updated_at = ?
		WHERE lease_expires IS NOT NULL AND lease_expires < ? AND status != ?`,
		string(StatusOpen), now.Format(timeLayout), now.Format(timeLayout), string(StatusCompleted),
	); err != nil {
		return nil, apperrors.StorageError("get_and_lock_next_ticket", err)
	}

	query := `SELECT id FROM tickets WHERE status = ? AND locked_by IS NULL`
	args := []any{string(StatusOpen)}
	if len(priorityFilter) > 0 {
		placeholders := make([]string, len(priorityFilter))
		for i, p := range priorityFilter {
			placeholders[i] = "?"
			args = append(args, string(p))
		}
		query += " AND priority IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += priorityOrderClause + ", created_at ASC LIMIT 1"

	var id string
	if err := tx.QueryRow(query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tx.Commit()
		}
		return nil, apperrors.StorageError("get_and_lock_next_ticket", err)
	}

	leaseExpires := now.Add(leaseDuration)
	if _, err := tx.Exec(`
		UPDATE tickets SET locked_by = ?, locked_at = ?, lease_expires = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		holder, now.Format(timeLayout), leaseExpires.Format(timeLayout), string(StatusInProgress), now.Format(timeLayout), id,
	); err != nil {
		return nil, apperrors.StorageError("get_and_lock_next_ticket", err)
	}

	row := tx.QueryRow(selectColumns+` WHERE id = ?`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		return nil, apperrors.StorageError("get_and_lock_next_ticket", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.StorageError("get_and_lock_next_ticket", err)
	}
	return ticket, nil
}

// GetStats summarises the ticket table.
func (s *Store) GetStats() (Stats, error) {
	stats := Stats{ByStatus: map[Status]int{}, ByPriority: map[Priority]int{}}

	if err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&stats.Total); err != nil {
		return stats, apperrors.StorageError("get_stats", err)
	}

	rows, err := s.db.Conn().Query(`SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return stats, apperrors.StorageError("get_stats", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, apperrors.StorageError("get_stats", err)
		}
		stats.ByStatus[Status(status)] = count
	}
	rows.Close()

	rows, err = s.db.Conn().Query(`SELECT priority, COUNT(*) FROM tickets GROUP BY priority`)
	if err != nil {
		return stats, apperrors.StorageError("get_stats", err)
	}
	for rows.Next() {
		var priority string
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			rows.Close()
			return stats, apperrors.StorageError("get_stats", err)
		}
		stats.ByPriority[Priority(priority)] = count
	}
	rows.Close()

	if err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM tickets WHERE locked_by IS NOT NULL`).Scan(&stats.Locked); err != nil {
		return stats, apperrors.StorageError("get_stats", err)
	}

	return stats, nil
}

// DeleteTicket hard-deletes a row; reserved for retention/cleanup paths.
func (s *Store) DeleteTicket(id string) error {
	res, err := s.db.Conn().Exec(`DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return apperrors.StorageError("delete_ticket", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.StorageNotFound("ticket", id)
	}
	return nil
}

const selectColumns = `SELECT
	id, duplicate_guard, priority, error_type, message, source,
	run_label, correlation_id, created_at, updated_at, format_version,
	status, documented, functioning, tested, completed,
	locked_by, locked_at, lease_expires, owner, branch,
	stack_trace, file_context, system_state, ai_remediation_notes, completion_summary
	FROM tickets`

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row *sql.Row) (*Ticket, error) {
	return scanTicketGeneric(row)
}

func scanTicketRows(rows *sql.Rows) (*Ticket, error) {
	return scanTicketGeneric(rows)
}

func scanTicketGeneric(s scanner) (*Ticket, error) {
	var t Ticket
	var priority, status string
	var createdAt, updatedAt string
	var lockedAt, leaseExpires sql.NullString
	var lockedBy, owner, branch sql.NullString
	var stackTrace, fileContext, systemState, aiNotes, completionSummary sql.NullString
	var documented, functioning, tested, completed int

	if err := s.Scan(
		&t.ID, &t.DuplicateGuard, &priority, &t.ErrorType, &t.Message, &t.Source,
		&t.RunLabel, &t.CorrelationID, &createdAt, &updatedAt, &t.FormatVersion,
		&status, &documented, &functioning, &tested, &completed,
		&lockedBy, &lockedAt, &leaseExpires, &owner, &branch,
		&stackTrace, &fileContext, &systemState, &aiNotes, &completionSummary,
	); err != nil {
		return nil, err
	}

	t.Priority = Priority(priority)
	t.Status = Status(status)
	t.Documented = documented != 0
	t.Functioning = functioning != 0
	t.Tested = tested != 0
	t.Completed = completed != 0
	t.LockedBy = lockedBy.String
	t.Owner = owner.String
	t.Branch = branch.String
	t.StackTrace = stackTrace.String
	t.FileContext = fileContext.String
	t.SystemState = systemState.String
	t.AIRemediationNotes = aiNotes.String
	t.CompletionSummary = completionSummary.String

	if ts, err := time.Parse(timeLayout, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(timeLayout, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	if lockedAt.Valid {
		if ts, err := time.Parse(timeLayout, lockedAt.String); err == nil {
			t.LockedAt = &ts
		}
	}
	if leaseExpires.Valid {
		if ts, err := time.Parse(timeLayout, leaseExpires.String); err == nil {
			t.LeaseExpires = &ts
		}
	}

	return &t, nil
}
