package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tabsync/internal/config"
	"tabsync/internal/logging"
	"tabsync/internal/notifications"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/realtime"
)

// ErrDrainInProgress reports that a drain cycle is already running. Callers
// triggering a drain opportunistically should treat it as success.
var ErrDrainInProgress = errors.New("drain already in progress")

// Authority is the slice of authoritative storage the worker needs. It is
// implemented by *orders.Store; tests substitute failing wrappers.
type Authority interface {
	OpenOrderForTable(ctx context.Context, tableID int64, since time.Time) (*orders.Order, error)
	CreateOrder(ctx context.Context, req orders.NewOrder) (*orders.Order, error)
	GetTable(ctx context.Context, id int64) (*orders.DiningTable, error)
}

// Result summarizes one drain cycle.
type Result struct {
	Processed int
	Synced    int
	Failed    int
	Conflicts int
	Skipped   int
}

// Worker applies queued mutations to authoritative storage on a fixed
// interval and on demand via Kick.
type Worker struct {
	cfg       *config.Config
	logger    *slog.Logger
	queue     *outbox.Store
	authority Authority
	hub       *realtime.Hub
	notify    notifications.Service

	draining atomic.Bool
	kick     chan struct{}
}

// NewWorker wires a drain worker. hub may be nil when no realtime fan-out is
// running; notify defaults to the configured notification service.
func NewWorker(
	cfg *config.Config,
	queue *outbox.Store,
	authority Authority,
	hub *realtime.Hub,
	notify notifications.Service,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notify == nil {
		notify = notifications.NewService(cfg)
	}
	return &Worker{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "syncer"),
		queue:     queue,
		authority: authority,
		hub:       hub,
		notify:    notify,
		kick:      make(chan struct{}, 1),
	}
}

// Kick requests a drain cycle outside the ticker cadence, typically right
// after an enqueue or a connectivity recovery. It never blocks; a drain is
// already due when the signal is pending.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run drives the periodic drain loop until the context is canceled. Entries
// stranded in syncing by an earlier crash are returned to pending first.
func (w *Worker) Run(ctx context.Context) error {
	if reset, err := w.queue.ResetStuckSyncing(ctx); err != nil {
		w.logger.Warn("reset stranded entries", logging.Error(err))
	} else if reset > 0 {
		w.logger.Info("returned stranded entries to pending", logging.Int64("count", reset))
	}

	ticker := time.NewTicker(w.cfg.SyncInterval())
	defer ticker.Stop()

	w.logger.Info("sync worker started",
		logging.Duration("interval", w.cfg.SyncInterval()),
		logging.Int("max_retries", w.cfg.Sync.MaxRetries))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-w.kick:
		}

		if _, err := w.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("drain cycle failed", logging.Error(err))
			_ = w.notify.NotifySyncFailure(ctx, err, "drain")
		}
	}
}

// Drain runs one sync cycle. When another cycle is in flight it returns
// ErrDrainInProgress without touching the queue.
func (w *Worker) Drain(ctx context.Context) (Result, error) {
	if !w.draining.CompareAndSwap(false, true) {
		return Result{}, ErrDrainInProgress
	}
	defer w.draining.Store(false)

	entries, err := w.queue.ListEligible(ctx, w.cfg.Sync.MaxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("list eligible entries: %w", err)
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	var result Result
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		outcome := w.processEntry(ctx, entry)
		result.Processed++
		switch outcome {
		case outcomeSynced:
			result.Synced++
		case outcomeFailed:
			result.Failed++
		case outcomeConflict:
			result.Conflicts++
		case outcomeSkipped:
			result.Processed--
			result.Skipped++
		}
	}

	w.logger.Info("drain cycle complete",
		logging.Int("processed", result.Processed),
		logging.Int("synced", result.Synced),
		logging.Int("failed", result.Failed),
		logging.Int("conflicts", result.Conflicts))
	if w.hub != nil && result.Processed > 0 {
		w.hub.SyncCycle(result.Processed, result.Synced, result.Failed, result.Conflicts)
	}
	return result, nil
}

type entryOutcome int

const (
	outcomeSkipped entryOutcome = iota
	outcomeSynced
	outcomeFailed
	outcomeConflict
)

// processEntry runs the claim, detect, apply sequence for one entry. Every
// failure path is contained here so a poisoned entry never aborts the cycle.
func (w *Worker) processEntry(ctx context.Context, entry *outbox.Entry) entryOutcome {
	log := w.logger.With(
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldLocalID, entry.LocalID),
		logging.String(logging.FieldEntity, entry.TargetEntity))

	claimed, err := w.queue.MarkSyncing(ctx, entry.ID)
	if err != nil {
		log.Error("claim entry", logging.Error(err))
		return outcomeSkipped
	}
	if !claimed {
		// Raced with a resolution or another transition since listing.
		return outcomeSkipped
	}

	mutation, err := entry.Decode()
	if err != nil {
		return w.failEntry(ctx, log, entry, fmt.Sprintf("decode mutation: %v", err))
	}

	switch m := mutation.(type) {
	case outbox.OrderCreate:
		return w.applyOrderCreate(ctx, log, entry, m)
	case outbox.Unknown:
		return w.failEntry(ctx, log, entry,
			fmt.Sprintf("%v: no handler for %s %s", outbox.ErrUnknownMutation, m.Operation, m.TargetEntity))
	default:
		return w.failEntry(ctx, log, entry, fmt.Sprintf("unhandled mutation type %T", mutation))
	}
}

func (w *Worker) applyOrderCreate(ctx context.Context, log *slog.Logger, entry *outbox.Entry, m outbox.OrderCreate) entryOutcome {
	log = log.With(logging.Int64(logging.FieldTableID, m.TableID))

	live, err := w.detectOrderConflict(ctx, m)
	if err != nil {
		return w.failEntry(ctx, log, entry, fmt.Sprintf("conflict probe: %v", err))
	}
	if live != nil {
		if err := w.queue.MarkConflict(ctx, entry.ID); err != nil {
			log.Error("mark conflict", logging.Error(err))
			return outcomeSkipped
		}
		log.Warn("queued order collides with live order",
			logging.Int64(logging.FieldOrderID, live.ID))
		if w.hub != nil {
			w.hub.SyncConflict(entry.ID, entry.LocalID, m.TableID, live.ID)
		}
		_ = w.notify.NotifyConflictDetected(ctx, w.tableLabel(ctx, m.TableID), entry.ID)
		return outcomeConflict
	}

	applyCtx := ctx
	if timeout := w.cfg.ApplyTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		applyCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	order, err := w.authority.CreateOrder(applyCtx, orders.NewOrder{
		TableID:    m.TableID,
		SessionID:  m.SessionID,
		ItemsJSON:  string(m.Items),
		TotalCents: m.TotalCents,
		Notes:      m.Notes,
		PlacedBy:   m.PlacedBy,
		Origin:     orders.OriginSync,
	})
	if err != nil {
		return w.failEntry(ctx, log, entry, fmt.Sprintf("apply order create: %v", err))
	}

	if err := w.queue.MarkSynced(ctx, entry.ID); err != nil {
		log.Error("mark synced", logging.Error(err))
		return outcomeSkipped
	}
	log.Info("entry applied", logging.Int64(logging.FieldOrderID, order.ID))
	if w.hub != nil {
		w.hub.SyncApplied(entry.ID, entry.LocalID, order.ID)
	}
	return outcomeSynced
}

func (w *Worker) failEntry(ctx context.Context, log *slog.Logger, entry *outbox.Entry, cause string) entryOutcome {
	if err := w.queue.MarkFailed(ctx, entry.ID, cause); err != nil {
		log.Error("mark failed", logging.Error(err))
		return outcomeSkipped
	}
	log.Warn("entry failed", logging.String(logging.FieldErrorHint, cause))

	updated, err := w.queue.GetByID(ctx, entry.ID)
	if err != nil {
		log.Error("reload entry after failure", logging.Error(err))
		return outcomeFailed
	}
	if updated.Exhausted(w.cfg.Sync.MaxRetries) {
		log.Error("entry exhausted its retry budget",
			logging.Int("retries", updated.RetryCount))
		if w.hub != nil {
			w.hub.SyncExhausted(entry.ID, entry.LocalID, updated.RetryCount)
		}
		_ = w.notify.NotifyRetriesExhausted(ctx, entry.TargetEntity, entry.ID, updated.RetryCount)
	}
	return outcomeFailed
}

func (w *Worker) tableLabel(ctx context.Context, tableID int64) string {
	table, err := w.authority.GetTable(ctx, tableID)
	if err != nil {
		return fmt.Sprintf("table %d", tableID)
	}
	return table.Label
}
