package outbox

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an outbox entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSyncing  Status = "syncing"
	StatusFailed   Status = "failed"
	StatusConflict Status = "conflict"
	StatusSynced   Status = "synced"
)

// Operation is the kind of mutation an entry carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

var allStatuses = []Status{
	StatusPending,
	StatusSyncing,
	StatusFailed,
	StatusConflict,
	StatusSynced,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// pendingStatuses are the non-terminal states counted by CountPending.
var pendingStatuses = []Status{StatusPending, StatusSyncing, StatusFailed, StatusConflict}

// Entry represents one deferred mutation persisted in SQLite.
type Entry struct {
	ID           int64
	LocalID      string
	TargetEntity string
	Operation    Operation
	PayloadJSON  string
	Status       Status
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	// SyncedAt is set on terminal success and, for conflicts, records when
	// the collision was flagged.
	SyncedAt *time.Time
}

// HealthSummary describes aggregated entry counts per lifecycle state.
type HealthSummary struct {
	Total    int
	Pending  int
	Syncing  int
	Failed   int
	Conflict int
	Synced   int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseOperation converts a string into a known Operation.
func ParseOperation(value string) (Operation, bool) {
	switch Operation(strings.ToLower(strings.TrimSpace(value))) {
	case OpCreate:
		return OpCreate, true
	case OpUpdate:
		return OpUpdate, true
	case OpDelete:
		return OpDelete, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the entry has left the automatic drain path.
// Conflict is terminal for the worker but still awaits operator resolution.
func (e Entry) IsTerminal() bool {
	return e.Status == StatusSynced
}

// Exhausted reports whether the entry has used its full retry budget.
func (e Entry) Exhausted(maxRetries int) bool {
	return e.Status == StatusFailed && e.RetryCount >= maxRetries
}
