package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tabsync/internal/logging"
	"tabsync/internal/notifications"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/realtime"
)

var (
	// ErrNotConflict indicates the entry exists but is not awaiting
	// resolution, including the case where another resolution just won.
	ErrNotConflict = errors.New("entry is not in conflict")
	// ErrInvalidDecision indicates an unrecognized resolution decision.
	ErrInvalidDecision = errors.New("invalid resolution decision")
)

// Decision is an operator's verdict on a conflict entry.
type Decision string

const (
	// DecisionMerge applies the queued mutation as a new order next to the
	// live one.
	DecisionMerge Decision = "merge"
	// DecisionKeepLocal applies the queued mutation as a new order,
	// preferring the offline ticket.
	DecisionKeepLocal Decision = "keep_local"
	// DecisionKeepCloud discards the queued mutation in favor of the live
	// order.
	DecisionKeepCloud Decision = "keep_cloud"
	// DecisionCancelAll discards the queued mutation outright.
	DecisionCancelAll Decision = "cancel_all"
)

// ParseDecision validates a decision string.
func ParseDecision(value string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(value))) {
	case DecisionMerge:
		return DecisionMerge, nil
	case DecisionKeepLocal:
		return DecisionKeepLocal, nil
	case DecisionKeepCloud:
		return DecisionKeepCloud, nil
	case DecisionCancelAll:
		return DecisionCancelAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, value)
	}
}

// appliesQueued reports whether the decision writes the queued mutation to
// authoritative storage. keep_cloud and cancel_all both leave it untouched.
func (d Decision) appliesQueued() bool {
	return d == DecisionMerge || d == DecisionKeepLocal
}

// Conflict pairs a parked entry with the live order it collided with. Live
// is nil when the colliding order has since been settled or voided.
type Conflict struct {
	EntryID   int64
	LocalID   string
	TableID   int64
	Queued    outbox.OrderCreate
	Live      *orders.Order
	FlaggedAt *time.Time
}

// Resolution reports the outcome of a decision. Order is set only when the
// queued mutation was applied.
type Resolution struct {
	EntryID  int64
	Decision Decision
	Order    *orders.Order
}

// Authority is the slice of authoritative storage resolution needs.
type Authority interface {
	CreateOrder(ctx context.Context, req orders.NewOrder) (*orders.Order, error)
	LatestOpenOrder(ctx context.Context, tableID int64) (*orders.Order, error)
}

// Resolver lists and settles conflict entries.
type Resolver struct {
	logger    *slog.Logger
	queue     *outbox.Store
	authority Authority
	hub       *realtime.Hub
	notify    notifications.Service
}

// New wires a resolver. hub and notify may be nil.
func New(queue *outbox.Store, authority Authority, hub *realtime.Hub, notify notifications.Service, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notify == nil {
		notify = notifications.Noop()
	}
	return &Resolver{
		logger:    logging.NewComponentLogger(logger, "resolver"),
		queue:     queue,
		authority: authority,
		hub:       hub,
		notify:    notify,
	}
}

// ListConflicts returns every parked entry joined with the current live
// order on its table.
func (r *Resolver) ListConflicts(ctx context.Context) ([]Conflict, error) {
	entries, err := r.queue.List(ctx, outbox.StatusConflict)
	if err != nil {
		return nil, fmt.Errorf("list conflict entries: %w", err)
	}

	conflicts := make([]Conflict, 0, len(entries))
	for _, entry := range entries {
		mutation, err := entry.Decode()
		if err != nil {
			r.logger.Warn("skip undecodable conflict entry",
				logging.Int64(logging.FieldEntryID, entry.ID),
				logging.Error(err))
			continue
		}
		queued, ok := mutation.(outbox.OrderCreate)
		if !ok {
			r.logger.Warn("skip non-order conflict entry",
				logging.Int64(logging.FieldEntryID, entry.ID),
				logging.String(logging.FieldEntity, entry.TargetEntity))
			continue
		}

		live, err := r.authority.LatestOpenOrder(ctx, queued.TableID)
		if err != nil {
			return nil, fmt.Errorf("load live order for table %d: %w", queued.TableID, err)
		}
		conflicts = append(conflicts, Conflict{
			EntryID:   entry.ID,
			LocalID:   entry.LocalID,
			TableID:   queued.TableID,
			Queued:    queued,
			Live:      live,
			FlaggedAt: entry.SyncedAt,
		})
	}
	return conflicts, nil
}

// Resolve settles one conflict entry. The entry is claimed atomically, so a
// second resolve on the same entry fails with ErrNotConflict. All decisions
// end with the entry terminally synced; merge and keep_local additionally
// write the queued order with resolution origin, never overwriting the live
// record.
func (r *Resolver) Resolve(ctx context.Context, entryID int64, decision Decision) (*Resolution, error) {
	decision, err := ParseDecision(string(decision))
	if err != nil {
		return nil, err
	}

	entry, err := r.queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	claimed, err := r.queue.ClaimConflict(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("claim conflict: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("entry %d (%s): %w", entryID, entry.Status, ErrNotConflict)
	}

	log := r.logger.With(
		logging.Int64(logging.FieldEntryID, entryID),
		logging.String(logging.FieldLocalID, entry.LocalID),
		logging.String("decision", string(decision)))

	var applied *orders.Order
	if decision.appliesQueued() {
		applied, err = r.applyQueued(ctx, entry)
		if err != nil {
			if releaseErr := r.queue.ReleaseConflict(ctx, entryID); releaseErr != nil {
				log.Error("release conflict after failed apply", logging.Error(releaseErr))
			}
			return nil, err
		}
	}

	if err := r.queue.MarkSynced(ctx, entryID); err != nil {
		return nil, fmt.Errorf("finalize resolution: %w", err)
	}

	var orderID int64
	if applied != nil {
		orderID = applied.ID
		log = log.With(logging.Int64(logging.FieldOrderID, applied.ID))
	}
	log.Info("conflict resolved")
	if r.hub != nil {
		r.hub.SyncResolved(entryID, string(decision), orderID)
	}
	_ = r.notify.NotifyConflictResolved(ctx, entryID, string(decision))

	return &Resolution{EntryID: entryID, Decision: decision, Order: applied}, nil
}

func (r *Resolver) applyQueued(ctx context.Context, entry *outbox.Entry) (*orders.Order, error) {
	mutation, err := entry.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode queued mutation: %w", err)
	}
	queued, ok := mutation.(outbox.OrderCreate)
	if !ok {
		return nil, fmt.Errorf("entry %d carries no order mutation", entry.ID)
	}

	order, err := r.authority.CreateOrder(ctx, orders.NewOrder{
		TableID:    queued.TableID,
		SessionID:  queued.SessionID,
		ItemsJSON:  string(queued.Items),
		TotalCents: queued.TotalCents,
		Notes:      queued.Notes,
		PlacedBy:   queued.PlacedBy,
		Origin:     orders.OriginResolution,
	})
	if err != nil {
		return nil, fmt.Errorf("apply queued order: %w", err)
	}
	return order, nil
}
