package notifier

import (
	"context"
	"log/slog"
	"time"

	"tabsync/internal/config"
	"tabsync/internal/logging"
	"tabsync/internal/orders"
	"tabsync/internal/realtime"
)

const changeBuffer = 64

// ChangeSource produces a stream of committed storage changes. Subscribe
// returns the stream and a cancel function; the stream closes when the
// source shuts down or the subscription is torn down remotely.
type ChangeSource interface {
	Subscribe(buffer int) (<-chan orders.Change, func(), error)
}

// StoreSource adapts an orders store to the ChangeSource interface.
func StoreSource(store *orders.Store) ChangeSource {
	return storeSource{store: store}
}

type storeSource struct {
	store *orders.Store
}

func (s storeSource) Subscribe(buffer int) (<-chan orders.Change, func(), error) {
	ch, cancel := s.store.Subscribe(buffer)
	return ch, cancel, nil
}

// Notifier relays storage changes to the staff room.
type Notifier struct {
	cfg    *config.Config
	logger *slog.Logger
	source ChangeSource
	hub    *realtime.Hub
}

// New wires a change notifier.
func New(cfg *config.Config, source ChangeSource, hub *realtime.Hub, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "notifier"),
		source: source,
		hub:    hub,
	}
}

// Run supervises the listen loop until the context is canceled. A failed
// subscription is retried after the setup backoff; a closed feed is
// resubscribed after the resubscribe backoff.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ch, cancel, err := n.source.Subscribe(changeBuffer)
		if err != nil {
			n.logger.Warn("change feed subscription failed, retrying",
				logging.Error(err),
				logging.Duration("backoff", n.cfg.SetupBackoff()))
			if err := sleep(ctx, n.cfg.SetupBackoff()); err != nil {
				return err
			}
			continue
		}

		n.logger.Info("listening for storage changes")
		n.consume(ctx, ch)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warn("change feed closed, resubscribing",
			logging.Duration("backoff", n.cfg.ResubscribeBackoff()))
		if err := sleep(ctx, n.cfg.ResubscribeBackoff()); err != nil {
			return err
		}
	}
}

// consume relays changes until the feed closes or the context ends.
func (n *Notifier) consume(ctx context.Context, ch <-chan orders.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			n.logger.Debug("storage changed",
				logging.String(logging.FieldEntity, change.Entity),
				logging.String("action", change.Action),
				logging.Int64("id", change.ID))
			n.hub.StorageChanged(change.Entity, change.Action, change.ID)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
