package daemon_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"tabsync/internal/daemon"
	"tabsync/internal/logging"
	"tabsync/internal/outbox"
	"tabsync/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status after start")
	}
	if status.QueueDBPath == "" || status.OrdersDBPath == "" {
		t.Fatalf("expected database paths in status: %+v", status)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", d.APIAddr()))
	if err != nil {
		t.Fatalf("api status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("api status code = %d", resp.StatusCode)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected stopped status after stop")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	cfg.Paths.APIBind = "127.0.0.1:0"
	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected by the lock")
	}
}

func TestDaemonDrainsQueuedOrders(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	seedOrders := testsupport.MustOpenOrders(t, cfg)
	tableID, sessionID := testsupport.SeatedTable(t, seedOrders, "T1")

	seedQueue := testsupport.MustOpenOutbox(t, cfg)
	entry := testsupport.EnqueueOrderCreate(t, seedQueue, outbox.OrderCreate{
		TableID:    tableID,
		SessionID:  sessionID,
		TotalCents: 1250,
		PlacedBy:   "sam",
	})

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	d.Kick()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := seedQueue.GetByID(context.Background(), entry.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status == outbox.StatusSynced {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry never synced, status = %s", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
