package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tabsync/internal/api"
	"tabsync/internal/config"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/realtime"
	"tabsync/internal/resolver"
	"tabsync/internal/syncer"
	"tabsync/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	queue  *outbox.Store
	orders *orders.Store
	worker *syncer.Worker
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	queue := testsupport.MustOpenOutbox(t, cfg)
	ordersStore := testsupport.MustOpenOrders(t, cfg)

	hub := realtime.NewHub(nil, realtime.Options{})
	go hub.Run()
	t.Cleanup(hub.Stop)

	worker := syncer.NewWorker(cfg, queue, ordersStore, hub, nil, nil)
	res := resolver.New(queue, ordersStore, hub, nil, nil)
	srv := api.NewServer(cfg, queue, ordersStore, worker, res, hub, nil)

	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	return &fixture{cfg: cfg, queue: queue, orders: ordersStore, worker: worker, server: server}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateOrderDirect(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	resp := f.postJSON(t, "/api/orders", api.CreateOrderRequest{
		TableID:    tableID,
		SessionID:  sessionID,
		TotalCents: 2100,
		PlacedBy:   "noor",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	out := decode[api.CreateOrderResponse](t, resp)
	if out.Queued || out.Order == nil {
		t.Fatalf("response = %+v, want direct order", out)
	}
	if out.Order.Origin != string(orders.OriginDirect) {
		t.Errorf("Origin = %q", out.Order.Origin)
	}
}

func TestCreateOrderDeferred(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	resp := f.postJSON(t, "/api/orders", api.CreateOrderRequest{
		TableID:   tableID,
		SessionID: sessionID,
		LocalID:   "tab-77",
		Deferred:  true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	out := decode[api.CreateOrderResponse](t, resp)
	if !out.Queued || out.LocalID != "tab-77" || out.EntryID == 0 {
		t.Fatalf("response = %+v, want queued entry", out)
	}

	entry, err := f.queue.GetByLocalID(context.Background(), "tab-77")
	if err != nil {
		t.Fatalf("GetByLocalID: %v", err)
	}
	if entry.Status != outbox.StatusPending {
		t.Errorf("entry status = %q", entry.Status)
	}

	// A client retry with the same local_id lands on the same entry.
	resp = f.postJSON(t, "/api/orders", api.CreateOrderRequest{
		TableID:   tableID,
		SessionID: sessionID,
		LocalID:   "tab-77",
		Deferred:  true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("retry status = %d, want 202", resp.StatusCode)
	}
	retry := decode[api.CreateOrderResponse](t, resp)
	if retry.EntryID != out.EntryID {
		t.Errorf("retry entry = %d, want %d", retry.EntryID, out.EntryID)
	}
}

func TestCreateOrderFallsBackToQueue(t *testing.T) {
	f := newFixture(t)
	tableID, _ := testsupport.SeatedTable(t, f.orders, "T1")

	// Session 999 does not exist, so the direct write fails and the ticket
	// is deferred instead of rejected.
	resp := f.postJSON(t, "/api/orders", api.CreateOrderRequest{
		TableID:   tableID,
		SessionID: 999,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 fallback", resp.StatusCode)
	}
	out := decode[api.CreateOrderResponse](t, resp)
	if !out.Queued {
		t.Fatalf("response = %+v, want queued", out)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/orders", api.CreateOrderRequest{SessionID: 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	respRaw, err := http.Post(f.server.URL+"/api/orders", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if respRaw.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", respRaw.StatusCode)
	}
	respRaw.Body.Close()
}

func TestSyncTrigger(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/sync", struct{}{})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	out := decode[api.SyncTriggerResponse](t, resp)
	if !out.Triggered {
		t.Error("Triggered = false")
	}
}

func TestQueueListAndPending(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")
	testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	resp := f.get(t, "/api/queue?status=pending")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	list := decode[api.QueueListResponse](t, resp)
	if len(list.Entries) != 1 || list.Entries[0].Status != "pending" {
		t.Fatalf("entries = %+v", list.Entries)
	}

	resp = f.get(t, "/api/queue?status=bogus")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status code = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.get(t, "/api/queue/pending")
	pending := decode[api.PendingResponse](t, resp)
	if pending.Pending != 1 {
		t.Errorf("Pending = %d, want 1", pending.Pending)
	}
}

func TestConflictResolutionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")

	if _, err := f.orders.CreateOrder(ctx, orders.NewOrder{TableID: tableID, SessionID: sessionID}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})
	if _, err := f.worker.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	resp := f.get(t, "/api/conflicts")
	conflicts := decode[api.ConflictListResponse](t, resp)
	if len(conflicts.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want 1", conflicts.Conflicts)
	}
	entryID := conflicts.Conflicts[0].EntryID
	if conflicts.Conflicts[0].Live == nil {
		t.Error("Live order missing from conflict listing")
	}

	resolvePath := fmt.Sprintf("/api/conflicts/%d/resolve", entryID)

	resp = f.postJSON(t, resolvePath, api.ResolveRequest{Decision: "split"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid decision status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.postJSON(t, "/api/conflicts/9999/resolve", api.ResolveRequest{Decision: "merge"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown entry status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.postJSON(t, resolvePath, api.ResolveRequest{Decision: "keep_cloud"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}
	resolved := decode[api.ResolveResponse](t, resp)
	if resolved.Decision != "keep_cloud" || resolved.Order != nil {
		t.Fatalf("resolution = %+v", resolved)
	}

	resp = f.postJSON(t, resolvePath, api.ResolveRequest{Decision: "merge"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second resolve status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	tableID, sessionID := testsupport.SeatedTable(t, f.orders, "T1")
	testsupport.EnqueueOrderCreate(t, f.queue, outbox.OrderCreate{TableID: tableID, SessionID: sessionID})

	resp := f.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode[api.StatusResponse](t, resp)
	if !out.Running || out.PID == 0 {
		t.Errorf("status = %+v", out)
	}
	if out.Queue.Pending != 1 || out.Queue.Total != 1 {
		t.Errorf("queue health = %+v", out.Queue)
	}
	if out.QueueDBPath == "" || out.OrdersDBPath == "" {
		t.Errorf("paths missing: %+v", out)
	}
}

func TestQueueUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := api.NewServer(cfg, nil, nil, nil, nil, nil, nil)
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	for _, path := range []string{"/api/queue", "/api/queue/pending", "/api/status"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
