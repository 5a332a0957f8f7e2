package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tabsync/internal/api"
	"tabsync/internal/config"
	"tabsync/internal/logging"
	"tabsync/internal/notifications"
	"tabsync/internal/notifier"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/preflight"
	"tabsync/internal/realtime"
	"tabsync/internal/resolver"
	"tabsync/internal/syncer"
)

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	queue  *outbox.Store
	orders *orders.Store
	hub    *realtime.Hub
	worker *syncer.Worker
	feed   *notifier.Notifier
	api    *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	QueueDBPath     string
	OrdersDBPath    string
	LockFilePath    string
	Queue           outbox.HealthSummary
	RealtimeClients int
}

// New opens the stores and wires the full service graph. Call Close to
// release everything, whether or not Start ever ran.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	queue, err := outbox.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	ordersStore, err := orders.Open(cfg)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("open orders: %w", err)
	}

	hub := realtime.NewHub(logger, realtime.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	})
	notify := notifications.NewService(cfg)
	worker := syncer.NewWorker(cfg, queue, ordersStore, hub, notify, logger)
	res := resolver.New(queue, ordersStore, hub, notify, logger)
	feed := notifier.New(cfg, notifier.StoreSource(ordersStore), hub, logger)
	apiServer := api.NewServer(cfg, queue, ordersStore, worker, res, hub, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "tabsyncd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		queue:    queue,
		orders:   ordersStore,
		hub:      hub,
		worker:   worker,
		feed:     feed,
		api:      apiServer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// hub, notifier, sync worker, and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tabsync daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg)
	for _, result := range results {
		if result.Passed {
			continue
		}
		if result.Optional {
			d.logger.Warn("preflight check degraded",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		_ = d.lock.Unlock()
		return fmt.Errorf("preflight check %q failed: %s", result.Name, result.Detail)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.api.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.hub.Run()
	}()
	go func() {
		defer d.wg.Done()
		if err := d.feed.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("change notifier stopped", logging.Error(err))
		}
	}()
	go func() {
		defer d.wg.Done()
		if err := d.worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("sync worker stopped", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("tabsync daemon started",
		logging.String("api", d.api.Addr()),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.hub.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tabsync daemon stopped")
}

// Close stops the daemon and closes the underlying stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.orders != nil {
		if err := d.orders.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kick requests an immediate sync cycle.
func (d *Daemon) Kick() {
	d.worker.Kick()
}

// APIAddr reports the bound API address once Start has succeeded.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// Status returns the current daemon status. Queue diagnostics are best
// effort; a probe failure leaves the summary zeroed.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.queue.Path(),
		OrdersDBPath: d.orders.Path(),
		LockFilePath: d.lockPath,
	}
	if summary, err := d.queue.Health(ctx); err == nil {
		status.Queue = summary
	}
	if d.running.Load() {
		status.RealtimeClients = d.hub.ClientCount("")
	}
	return status
}
