package ticketstore

import "time"

// Priority is the P0..P4 ordinal classification assigned at ingestion.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// priorityOrdinal maps priority to sort weight; P0 sorts first. This is
// the explicit ordinal map spec'd in place of lexicographic ordering,
// since "P10" would otherwise sort before "P2".
var priorityOrdinal = map[Priority]int{
	PriorityP0: 0,
	PriorityP1: 1,
	PriorityP2: 2,
	PriorityP3: 3,
	PriorityP4: 4,
}

// Ordinal returns the sort weight for p, matching the CASE expression
// the store uses for priority-ascending ORDER BY clauses. Unknown
// priorities sort last.
func Ordinal(p Priority) int {
	if v, ok := priorityOrdinal[p]; ok {
		return v
	}
	return len(priorityOrdinal)
}

// Status is the ticket's work-state.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Ticket is the canonical error record, per spec section 3.
type Ticket struct {
	ID             string
	DuplicateGuard string

	Priority  Priority
	ErrorType string
	Message   string
	Source    string

	RunLabel      string
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FormatVersion int

	Status      Status
	Documented  bool
	Functioning bool
	Tested      bool
	Completed   bool

	LockedBy     string
	LockedAt     *time.Time
	LeaseExpires *time.Time
	Owner        string
	Branch       string

	StackTrace         string
	FileContext        string // JSON-encoded map[path]snippet
	SystemState        string // JSON-encoded
	AIRemediationNotes string
	CompletionSummary  string
}

// NewTicket is the set of fields a caller supplies to CreateTicket; the
// store fills in id, timestamps and default status/format version.
type NewTicket struct {
	DuplicateGuard string
	Priority       Priority
	ErrorType      string
	Message        string
	Source         string
	RunLabel       string
	CorrelationID  string
	StackTrace     string
	FileContext    string
	SystemState    string
}

// Filter narrows GetTickets results; zero-value fields are unconstrained.
type Filter struct {
	Status        Status
	Priority      Priority
	Owner         string
	LockedOnly    bool
	UnlockedOnly  bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	CorrelationID string
	Limit         int
	Offset        int
}

// Lock describes a successful lease acquisition.
type Lock struct {
	TicketID     string
	LockedBy     string
	LockedAt     time.Time
	LeaseExpires time.Time
}

// Stats summarises the ticket table for the health/status surfaces.
type Stats struct {
	Total      int
	ByStatus   map[Status]int
	ByPriority map[Priority]int
	Locked     int
}
