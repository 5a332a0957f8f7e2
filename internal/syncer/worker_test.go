package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tabsync/internal/config"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/syncer"
	"tabsync/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	queue  *outbox.Store
	orders *orders.Store
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return &fixture{
		cfg:    cfg,
		queue:  testsupport.MustOpenOutbox(t, cfg),
		orders: testsupport.MustOpenOrders(t, cfg),
	}
}

func (f *fixture) worker(authority syncer.Authority) *syncer.Worker {
	if authority == nil {
		authority = f.orders
	}
	return syncer.NewWorker(f.cfg, f.queue, authority, nil, nil, nil)
}

func mustStatus(t *testing.T, queue *outbox.Store, id int64, want outbox.Status) *outbox.Entry {
	t.Helper()
	entry, err := queue.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	if entry.Status != want {
		t.Fatalf("entry %d status = %q, want %q (error %q)", id, entry.Status, want, entry.ErrorMessage)
	}
	return entry
}

func TestDrainAppliesQueuedOrder(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	entry := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{
		TableID:    tableID,
		SessionID:  sessionID,
		TotalCents: 2400,
		PlacedBy:   "mara",
	})

	result, err := f.worker(nil).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Synced != 1 || result.Processed != 1 {
		t.Fatalf("result = %+v, want one synced entry", result)
	}
	mustStatus(t, f.queue, entry.ID, outbox.StatusSynced)

	rows, err := f.orders.ListOrdersForTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("ListOrdersForTable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("order rows = %d, want exactly 1", len(rows))
	}
	if rows[0].Origin != orders.OriginSync {
		t.Errorf("Origin = %q, want %q", rows[0].Origin, orders.OriginSync)
	}
	if rows[0].TotalCents != 2400 || rows[0].PlacedBy != "mara" {
		t.Errorf("applied order = %+v", rows[0])
	}
}

func TestDrainOldestFirst(t *testing.T) {
	f := newFixture(t)
	t1, s1 := testsupport.SeatedTable(t, f.orders, "T1")
	t2, s2 := testsupport.SeatedTable(t, f.orders, "T2")

	testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: t1, SessionID: s1, Notes: "first"})
	testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: t2, SessionID: s2, Notes: "second"})

	if _, err := f.worker(nil).Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	first, err := f.orders.ListOrdersForTable(context.Background(), t1)
	if err != nil {
		t.Fatalf("ListOrdersForTable: %v", err)
	}
	second, err := f.orders.ListOrdersForTable(context.Background(), t2)
	if err != nil {
		t.Fatalf("ListOrdersForTable: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("rows = %d/%d, want 1 each", len(first), len(second))
	}
	if first[0].ID >= second[0].ID {
		t.Errorf("apply order inverted: %d before %d", second[0].ID, first[0].ID)
	}
}

func TestDrainFlagsConflict(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	// Staff already rang the table up while the mutation sat offline.
	live, err := f.orders.CreateOrder(context.Background(), orders.NewOrder{TableID: tableID, SessionID: sessionID})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	entry := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	result, err := f.worker(nil).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Conflicts != 1 {
		t.Fatalf("result = %+v, want one conflict", result)
	}
	flagged := mustStatus(t, f.queue, entry.ID, outbox.StatusConflict)
	if flagged.SyncedAt == nil {
		t.Error("conflict entry should record flagged-at")
	}

	// No duplicate order row was written.
	rows, err := f.orders.ListOrdersForTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("ListOrdersForTable: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != live.ID {
		t.Fatalf("rows = %+v, want only the live order", rows)
	}

	// Conflict entries stay parked across later cycles.
	result, err = f.worker(nil).Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("second cycle result = %+v, want untouched queue", result)
	}
}

func TestDrainIgnoresStaleAndSettledOrders(t *testing.T) {
	f := newFixture(t, testsupport.WithConflictWindowMinutes(60))
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	settled, err := f.orders.CreateOrder(context.Background(), orders.NewOrder{TableID: tableID, SessionID: sessionID})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := f.orders.SettleOrder(context.Background(), settled.ID); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	entry := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	result, err := f.worker(nil).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Synced != 1 || result.Conflicts != 0 {
		t.Fatalf("result = %+v, want clean apply past the settled order", result)
	}
	mustStatus(t, f.queue, entry.ID, outbox.StatusSynced)
}

type flakyAuthority struct {
	*orders.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (a *flakyAuthority) CreateOrder(ctx context.Context, req orders.NewOrder) (*orders.Order, error) {
	a.mu.Lock()
	a.calls++
	fail := a.calls <= a.failures
	a.mu.Unlock()
	if fail {
		return nil, errors.New("cloud unreachable")
	}
	return a.Store.CreateOrder(ctx, req)
}

func TestDrainBoundedRetry(t *testing.T) {
	f := newFixture(t, testsupport.WithMaxRetries(2))
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")
	entry := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	authority := &flakyAuthority{Store: f.orders, failures: 100}
	worker := f.worker(authority)

	for i := 0; i < 5; i++ {
		if _, err := worker.Drain(context.Background()); err != nil {
			t.Fatalf("Drain %d: %v", i, err)
		}
	}

	failed := mustStatus(t, f.queue, entry.ID, outbox.StatusFailed)
	if failed.RetryCount != 2 {
		t.Fatalf("RetryCount = %d, want exactly the budget of 2", failed.RetryCount)
	}
	if failed.ErrorMessage == "" {
		t.Error("ErrorMessage should record the last failure")
	}
	if authority.calls != 2 {
		t.Errorf("apply attempts = %d, want 2", authority.calls)
	}

	// Manual retry resets the budget and the entry drains again.
	if _, err := f.queue.RetryFailed(context.Background(), entry.ID); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	authority.mu.Lock()
	authority.failures = 0
	authority.mu.Unlock()
	if _, err := worker.Drain(context.Background()); err != nil {
		t.Fatalf("Drain after reset: %v", err)
	}
	mustStatus(t, f.queue, entry.ID, outbox.StatusSynced)
}

func TestDrainIsolatesFailingEntry(t *testing.T) {
	f := newFixture(t)
	t1, s1 := testsupport.SeatedTable(t, f.orders, "T1")
	t2, s2 := testsupport.SeatedTable(t, f.orders, "T2")
	t3, s3 := testsupport.SeatedTable(t, f.orders, "T3")

	good1 := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: t1, SessionID: s1})
	// Session id points at another table, so the apply is rejected.
	bad := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: t2, SessionID: s1})
	good2 := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: t3, SessionID: s3})
	_ = s2

	result, err := f.worker(nil).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Synced != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 2 synced and 1 failed", result)
	}
	mustStatus(t, f.queue, good1.ID, outbox.StatusSynced)
	mustStatus(t, f.queue, bad.ID, outbox.StatusFailed)
	mustStatus(t, f.queue, good2.ID, outbox.StatusSynced)
}

func TestDrainFailsUnknownMutation(t *testing.T) {
	f := newFixture(t)

	entry, err := f.queue.Enqueue(context.Background(), outbox.EnqueueRequest{
		TargetEntity: "menu_items",
		Operation:    outbox.OpUpdate,
		PayloadJSON:  `{"price_cents":500}`,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result, err := f.worker(nil).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want one failure", result)
	}
	failed := mustStatus(t, f.queue, entry.ID, outbox.StatusFailed)
	if failed.ErrorMessage == "" {
		t.Error("unknown mutation should record a descriptive error")
	}
}

type blockingAuthority struct {
	*orders.Store
	entered chan struct{}
	release chan struct{}
}

func (a *blockingAuthority) CreateOrder(ctx context.Context, req orders.NewOrder) (*orders.Order, error) {
	close(a.entered)
	<-a.release
	return a.Store.CreateOrder(ctx, req)
}

func TestDrainSingleFlight(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")
	testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	authority := &blockingAuthority{
		Store:   f.orders,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	worker := f.worker(authority)

	done := make(chan error, 1)
	go func() {
		_, err := worker.Drain(context.Background())
		done <- err
	}()

	select {
	case <-authority.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never reached apply")
	}

	if _, err := worker.Drain(context.Background()); !errors.Is(err, syncer.ErrDrainInProgress) {
		t.Fatalf("overlapping Drain error = %v, want ErrDrainInProgress", err)
	}

	close(authority.release)
	if err := <-done; err != nil {
		t.Fatalf("first Drain: %v", err)
	}

	// The guard is released; a fresh cycle runs normally.
	if _, err := worker.Drain(context.Background()); err != nil {
		t.Fatalf("Drain after release: %v", err)
	}
}

func TestRunDrainsOnKick(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.IntervalSeconds = 3600

	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")
	entry := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	worker := f.worker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(stopped)
	}()

	worker.Kick()
	worker.Kick()

	deadline := time.After(3 * time.Second)
	for {
		got, err := f.queue.GetByID(context.Background(), entry.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status == outbox.StatusSynced {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("entry status = %q, kick never drained", got.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	conflicts []int64
	exhausted []int64
}

func (r *recordingNotifier) NotifyConflictDetected(_ context.Context, _ string, entryID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = append(r.conflicts, entryID)
	return nil
}

func (r *recordingNotifier) NotifyRetriesExhausted(_ context.Context, _ string, entryID int64, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted = append(r.exhausted, entryID)
	return nil
}

func (r *recordingNotifier) NotifyConflictResolved(context.Context, int64, string) error { return nil }
func (r *recordingNotifier) NotifySyncFailure(context.Context, error, string) error      { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error                      { return nil }

func TestWorkerNotifiesConflictAndExhaustion(t *testing.T) {
	f := newFixture(t, testsupport.WithMaxRetries(1))
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	if _, err := f.orders.CreateOrder(context.Background(), orders.NewOrder{TableID: tableID, SessionID: sessionID}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	conflicting := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	t2, s2 := testsupport.SeatedTable(t, f.orders, "T2")
	doomed := testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: t2, SessionID: s2})

	notifier := &recordingNotifier{}
	authority := &flakyAuthority{Store: f.orders, failures: 100}
	worker := syncer.NewWorker(f.cfg, f.queue, authority, nil, notifier, nil)

	if _, err := worker.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.conflicts) != 1 || notifier.conflicts[0] != conflicting.ID {
		t.Errorf("conflict notifications = %v, want [%d]", notifier.conflicts, conflicting.ID)
	}
	if len(notifier.exhausted) != 1 || notifier.exhausted[0] != doomed.ID {
		t.Errorf("exhaustion notifications = %v, want [%d]", notifier.exhausted, doomed.ID)
	}
}
