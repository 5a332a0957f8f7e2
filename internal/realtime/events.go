package realtime

import "time"

// Room names.
const (
	RoomStaff   = "staff"
	RoomKitchen = "kitchen"
)

// Event types pushed to subscribers.
const (
	EventStorageChanged = "storage.changed"
	EventSyncApplied    = "sync.applied"
	EventSyncConflict   = "sync.conflict"
	EventSyncResolved   = "sync.resolved"
	EventSyncExhausted  = "sync.exhausted"
	EventSyncCycle      = "sync.cycle"
	EventQueueAccepted  = "queue.accepted"
)

// Event is the envelope every subscriber receives.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
	TS   int64          `json:"ts"`
}

func newEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Data: data, TS: time.Now().Unix()}
}

// StorageChanged announces a committed authoritative write.
func (h *Hub) StorageChanged(entity, action string, id int64) {
	h.Broadcast(RoomStaff, newEvent(EventStorageChanged, map[string]any{
		"entity": entity,
		"action": action,
		"id":     id,
	}))
}

// SyncApplied announces a queue entry applied to authoritative storage.
func (h *Hub) SyncApplied(entryID int64, localID string, orderID int64) {
	h.Broadcast(RoomStaff, newEvent(EventSyncApplied, map[string]any{
		"entry_id": entryID,
		"local_id": localID,
		"order_id": orderID,
	}))
}

// SyncConflict announces a queue entry flagged for operator review.
func (h *Hub) SyncConflict(entryID int64, localID string, tableID, liveOrderID int64) {
	h.Broadcast(RoomStaff, newEvent(EventSyncConflict, map[string]any{
		"entry_id":      entryID,
		"local_id":      localID,
		"table_id":      tableID,
		"live_order_id": liveOrderID,
	}))
}

// SyncResolved announces an operator decision on a conflict entry. The
// order id is zero when the decision discarded the queued mutation.
func (h *Hub) SyncResolved(entryID int64, decision string, orderID int64) {
	h.Broadcast(RoomStaff, newEvent(EventSyncResolved, map[string]any{
		"entry_id": entryID,
		"decision": decision,
		"order_id": orderID,
	}))
}

// SyncExhausted announces an entry that used its full retry budget.
func (h *Hub) SyncExhausted(entryID int64, localID string, retries int) {
	h.Broadcast(RoomStaff, newEvent(EventSyncExhausted, map[string]any{
		"entry_id": entryID,
		"local_id": localID,
		"retries":  retries,
	}))
}

// SyncCycle announces a completed drain cycle summary.
func (h *Hub) SyncCycle(processed, synced, failed, conflicts int) {
	h.Broadcast(RoomStaff, newEvent(EventSyncCycle, map[string]any{
		"processed": processed,
		"synced":    synced,
		"failed":    failed,
		"conflicts": conflicts,
	}))
}

// QueueAccepted announces a mutation accepted into the outbox.
func (h *Hub) QueueAccepted(entryID int64, localID, entity string) {
	h.Broadcast(RoomStaff, newEvent(EventQueueAccepted, map[string]any{
		"entry_id": entryID,
		"local_id": localID,
		"entity":   entity,
	}))
}
