package outbox

import (
	"context"
	"fmt"
	"time"
)

// Status transitions are atomic conditional updates keyed by id and guarded
// by the expected current status, so a racing drain cycle and a manual
// resolution can never both claim the same entry.

// MarkSyncing claims a pending or failed entry for processing. Returns false
// when the entry was already claimed or has moved on.
func (s *Store) MarkSyncing(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries SET status = ?, error_message = NULL
         WHERE id = ? AND status IN (?, ?)`,
		StatusSyncing,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("mark syncing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkSynced records terminal success for a syncing entry.
func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries SET status = ?, synced_at = ?, error_message = NULL
         WHERE id = ? AND status = ?`,
		StatusSynced,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusSyncing,
	)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return requireTransition(res, id, StatusSynced)
}

// MarkFailed records an apply failure and consumes one retry.
func (s *Store) MarkFailed(ctx context.Context, id int64, cause string) error {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries
         SET status = ?, retry_count = retry_count + 1, error_message = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		cause,
		id,
		StatusSyncing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(res, id, StatusFailed)
}

// MarkConflict flags a syncing entry as colliding with a newer authoritative
// record. synced_at records when the collision was flagged.
func (s *Store) MarkConflict(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries SET status = ?, synced_at = ?
         WHERE id = ? AND status = ?`,
		StatusConflict,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusSyncing,
	)
	if err != nil {
		return fmt.Errorf("mark conflict: %w", err)
	}
	return requireTransition(res, id, StatusConflict)
}

// ClaimConflict moves a conflict entry into syncing for resolution. Returns
// false when the entry is not in conflict, which makes a second resolve on
// the same entry observable to the caller.
func (s *Store) ClaimConflict(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries SET status = ?
         WHERE id = ? AND status = ?`,
		StatusSyncing,
		id,
		StatusConflict,
	)
	if err != nil {
		return false, fmt.Errorf("claim conflict: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseConflict returns a claimed entry to conflict after a failed
// resolution apply, so the operator can retry the decision.
func (s *Store) ReleaseConflict(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries SET status = ?
         WHERE id = ? AND status = ?`,
		StatusConflict,
		id,
		StatusSyncing,
	)
	if err != nil {
		return fmt.Errorf("release conflict: %w", err)
	}
	return requireTransition(res, id, StatusConflict)
}

// RetryFailed resets failed entries (optionally a subset) back to pending
// with a fresh retry budget, for manual operator intervention after
// exhaustion.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	ctx = ensureContext(ctx)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE outbox_entries
             SET status = ?, retry_count = 0, error_message = NULL
             WHERE status = ?`,
			StatusPending,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed entries: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE outbox_entries
        SET status = ?, retry_count = 0, error_message = NULL
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected entries: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckSyncing returns entries stranded in syncing (for example after a
// daemon crash mid-cycle) back to pending.
func (s *Store) ResetStuckSyncing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE outbox_entries SET status = ? WHERE status = ?`,
		StatusPending,
		StatusSyncing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck entries: %w", err)
	}
	return res.RowsAffected()
}

func requireTransition(res interface{ RowsAffected() (int64, error) }, id int64, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entry %d: transition to %s rejected (missing entry or wrong status)", id, to)
	}
	return nil
}
