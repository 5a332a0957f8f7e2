package testsupport

import (
	"context"
	"testing"

	"tabsync/internal/config"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
)

// MustOpenOutbox opens an outbox.Store for tests and registers cleanup.
func MustOpenOutbox(t testing.TB, cfg *config.Config) *outbox.Store {
	t.Helper()

	store, err := outbox.Open(cfg)
	if err != nil {
		t.Fatalf("outbox.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenOrders opens an orders.Store for tests and registers cleanup.
func MustOpenOrders(t testing.TB, cfg *config.Config) *orders.Store {
	t.Helper()

	store, err := orders.Open(cfg)
	if err != nil {
		t.Fatalf("orders.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeatedTable creates a dining table with an active session and returns both
// identifiers.
func SeatedTable(t testing.TB, store *orders.Store, label string) (tableID, sessionID int64) {
	t.Helper()

	ctx := context.Background()
	table, err := store.CreateTable(ctx, label)
	if err != nil {
		t.Fatalf("orders.CreateTable: %v", err)
	}
	session, err := store.OpenSession(ctx, table.ID)
	if err != nil {
		t.Fatalf("orders.OpenSession: %v", err)
	}
	return table.ID, session.ID
}

// EnqueueOrderCreate stages an order-create mutation and returns the entry.
func EnqueueOrderCreate(t testing.TB, store *outbox.Store, m outbox.OrderCreate) *outbox.Entry {
	t.Helper()

	payload, err := outbox.EncodeOrderCreate(m)
	if err != nil {
		t.Fatalf("outbox.EncodeOrderCreate: %v", err)
	}
	entry, err := store.Enqueue(context.Background(), outbox.EnqueueRequest{
		TargetEntity: outbox.EntityOrders,
		Operation:    outbox.OpCreate,
		PayloadJSON:  payload,
	})
	if err != nil {
		t.Fatalf("outbox.Enqueue: %v", err)
	}
	return entry
}
