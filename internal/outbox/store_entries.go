package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnqueueRequest describes a mutation to persist for deferred application.
type EnqueueRequest struct {
	// LocalID is the client-generated idempotency key. When empty a fresh
	// key is generated.
	LocalID      string
	TargetEntity string
	Operation    Operation
	PayloadJSON  string
}

// Enqueue persists a new pending entry. Submitting the same LocalID again
// returns the already-persisted entry instead of creating a second one, so
// client retries never double-apply.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Entry, error) {
	ctx = ensureContext(ctx)

	localID := strings.TrimSpace(req.LocalID)
	if localID == "" {
		localID = uuid.NewString()
	}
	entity := strings.TrimSpace(req.TargetEntity)
	if entity == "" {
		return nil, errors.New("target entity is required")
	}
	op, ok := ParseOperation(string(req.Operation))
	if !ok {
		return nil, fmt.Errorf("unsupported operation %q", req.Operation)
	}
	payload := req.PayloadJSON
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO outbox_entries (
            local_id, target_entity, operation, payload_json, status,
            retry_count, created_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		localID,
		entity,
		op,
		payload,
		StatusPending,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetByLocalID(ctx, localID)
			if getErr != nil {
				return nil, fmt.Errorf("fetch duplicate entry: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an entry by identifier. Returns ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM outbox_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// GetByLocalID fetches an entry by its idempotency key.
func (s *Store) GetByLocalID(ctx context.Context, localID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+entryColumns+` FROM outbox_entries WHERE local_id = ?`,
		localID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by local id: %w", err)
	}
	return entry, nil
}

// List returns entries filtered by status set (or all entries when no status
// is provided), ordered by creation time ascending.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM outbox_entries`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListEligible returns entries a drain cycle should process: pending or
// failed, with retries remaining, oldest first. Entries at the retry budget
// stay visible through List and CountPending but are never re-selected here.
func (s *Store) ListEligible(ctx context.Context, maxRetries int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+entryColumns+` FROM outbox_entries
         WHERE status IN (?, ?) AND retry_count < ?
         ORDER BY created_at, id`,
		StatusPending,
		StatusFailed,
		maxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountPending returns the number of entries still awaiting terminal success.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	placeholders := makePlaceholders(len(pendingStatuses))
	args := make([]any, len(pendingStatuses))
	for i, status := range pendingStatuses {
		args[i] = status
	}
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM outbox_entries WHERE status IN (`+placeholders+`)`,
		args...,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM outbox_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates outbox state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusSyncing:
			health.Syncing += count
		case StatusFailed:
			health.Failed += count
		case StatusConflict:
			health.Conflict += count
		case StatusSynced:
			health.Synced += count
		}
	}
	return health, nil
}

// ClearSynced removes terminally synced entries.
func (s *Store) ClearSynced(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM outbox_entries WHERE status = ?`, StatusSynced)
	if err != nil {
		return 0, fmt.Errorf("clear synced: %w", err)
	}
	return res.RowsAffected()
}

const entryColumns = "id, local_id, target_entity, operation, payload_json, status, retry_count, error_message, created_at, synced_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id           int64
		localID      string
		targetEntity string
		operation    string
		payload      string
		statusStr    string
		retryCount   int
		errorMessage sql.NullString
		createdRaw   string
		syncedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&localID,
		&targetEntity,
		&operation,
		&payload,
		&statusStr,
		&retryCount,
		&errorMessage,
		&createdRaw,
		&syncedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           id,
		LocalID:      localID,
		TargetEntity: targetEntity,
		Operation:    Operation(operation),
		PayloadJSON:  payload,
		Status:       Status(statusStr),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if syncedRaw.Valid {
		if synced, err := parseTimeString(syncedRaw.String); err == nil {
			entry.SyncedAt = &synced
		}
	}
	return entry, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
