package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, Options{SendBuffer: 8})
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func registerFake(t *testing.T, hub *Hub, room string, buffer int) *client {
	t.Helper()
	c := &client{hub: hub, room: room, send: make(chan []byte, buffer)}
	select {
	case hub.register <- c:
	case <-time.After(time.Second):
		t.Fatal("timed out registering client")
	}
	return c
}

func recvEvent(t *testing.T, c *client) Event {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	hub := newRunningHub(t)

	staff := registerFake(t, hub, RoomStaff, 8)
	kitchen := registerFake(t, hub, RoomKitchen, 8)

	hub.SyncApplied(7, "ticket-7", 41)

	event := recvEvent(t, staff)
	if event.Type != EventSyncApplied {
		t.Errorf("Type = %q, want %q", event.Type, EventSyncApplied)
	}
	if got := event.Data["local_id"]; got != "ticket-7" {
		t.Errorf("local_id = %v", got)
	}
	if event.TS == 0 {
		t.Error("TS not populated")
	}

	select {
	case payload := <-kitchen.send:
		t.Fatalf("kitchen received staff event: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowConsumerDisconnected(t *testing.T) {
	hub := newRunningHub(t)

	slow := registerFake(t, hub, RoomStaff, 1)
	healthy := registerFake(t, hub, RoomStaff, 8)

	// First event fills the slow buffer, second forces the disconnect.
	hub.StorageChanged("orders", "created", 1)
	hub.StorageChanged("orders", "created", 2)

	recvEvent(t, healthy)
	recvEvent(t, healthy)

	deadline := time.After(time.Second)
	for hub.ClientCount(RoomStaff) != 1 {
		select {
		case <-deadline:
			t.Fatalf("ClientCount = %d, want slow consumer dropped", hub.ClientCount(RoomStaff))
		case <-time.After(10 * time.Millisecond):
		}
	}
	_ = slow
}

func TestClientCountByRoom(t *testing.T) {
	hub := newRunningHub(t)

	registerFake(t, hub, RoomStaff, 1)
	registerFake(t, hub, RoomStaff, 1)
	registerFake(t, hub, RoomKitchen, 1)

	if got := hub.ClientCount(RoomStaff); got != 2 {
		t.Errorf("ClientCount(staff) = %d, want 2", got)
	}
	if got := hub.ClientCount(""); got != 3 {
		t.Errorf("ClientCount(all) = %d, want 3", got)
	}
}

func TestStopClosesClients(t *testing.T) {
	hub := NewHub(nil, Options{})
	go hub.Run()

	c := registerFake(t, hub, RoomStaff, 1)
	hub.Stop()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected closed channel, got payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestServeWSDeliversEvents(t *testing.T) {
	hub := newRunningHub(t)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?room=staff"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() {
		conn.Close()
	})

	deadline := time.After(time.Second)
	for hub.ClientCount(RoomStaff) == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	hub.SyncConflict(3, "ticket-3", 12, 40)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Type != EventSyncConflict {
		t.Errorf("Type = %q, want %q", event.Type, EventSyncConflict)
	}
	if got, ok := event.Data["table_id"].(float64); !ok || int64(got) != 12 {
		t.Errorf("table_id = %v", event.Data["table_id"])
	}
}
