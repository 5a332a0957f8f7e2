package api

import (
	"encoding/json"
	"time"

	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/resolver"
)

// QueueEntry is the wire form of an outbox entry.
type QueueEntry struct {
	ID           int64      `json:"id"`
	LocalID      string     `json:"local_id"`
	TargetEntity string     `json:"target_entity"`
	Operation    string     `json:"operation"`
	Payload      json.RawMessage `json:"payload"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
}

func fromEntry(entry *outbox.Entry) QueueEntry {
	return QueueEntry{
		ID:           entry.ID,
		LocalID:      entry.LocalID,
		TargetEntity: entry.TargetEntity,
		Operation:    string(entry.Operation),
		Payload:      json.RawMessage(entry.PayloadJSON),
		Status:       string(entry.Status),
		RetryCount:   entry.RetryCount,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    entry.CreatedAt,
		SyncedAt:     entry.SyncedAt,
	}
}

// QueueEntriesFromStore converts store entries to their wire form. The CLI
// uses it when reading the queue database directly.
func QueueEntriesFromStore(entries []*outbox.Entry) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, fromEntry(entry))
	}
	return out
}

// Order is the wire form of an authoritative order.
type Order struct {
	ID         int64           `json:"id"`
	TableID    int64           `json:"table_id"`
	SessionID  int64           `json:"session_id"`
	Status     string          `json:"status"`
	Items      json.RawMessage `json:"items"`
	TotalCents int64           `json:"total_cents"`
	Notes      string          `json:"notes,omitempty"`
	PlacedBy   string          `json:"placed_by,omitempty"`
	Origin     string          `json:"origin"`
	CreatedAt  time.Time       `json:"created_at"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
}

func fromOrder(order *orders.Order) *Order {
	if order == nil {
		return nil
	}
	return &Order{
		ID:         order.ID,
		TableID:    order.TableID,
		SessionID:  order.SessionID,
		Status:     string(order.Status),
		Items:      json.RawMessage(order.ItemsJSON),
		TotalCents: order.TotalCents,
		Notes:      order.Notes,
		PlacedBy:   order.PlacedBy,
		Origin:     string(order.Origin),
		CreatedAt:  order.CreatedAt,
		SettledAt:  order.SettledAt,
	}
}

// CreateOrderRequest is the order intake payload. Deferred requests skip the
// direct write and land in the outbox immediately.
type CreateOrderRequest struct {
	TableID    int64           `json:"table_id"`
	SessionID  int64           `json:"session_id"`
	Items      json.RawMessage `json:"items,omitempty"`
	TotalCents int64           `json:"total_cents"`
	Notes      string          `json:"notes,omitempty"`
	PlacedBy   string          `json:"placed_by,omitempty"`
	LocalID    string          `json:"local_id,omitempty"`
	Deferred   bool            `json:"deferred,omitempty"`
}

// CreateOrderResponse reports either a direct write or an accepted queue
// entry.
type CreateOrderResponse struct {
	Queued  bool   `json:"queued"`
	Order   *Order `json:"order,omitempty"`
	EntryID int64  `json:"entry_id,omitempty"`
	LocalID string `json:"local_id,omitempty"`
}

// QueueListResponse wraps queue listings.
type QueueListResponse struct {
	Entries []QueueEntry `json:"entries"`
}

// PendingResponse reports the count of entries not yet terminally synced.
type PendingResponse struct {
	Pending int `json:"pending"`
}

// Conflict is the wire form of a parked conflict with its live counterpart.
type Conflict struct {
	EntryID   int64              `json:"entry_id"`
	LocalID   string             `json:"local_id"`
	TableID   int64              `json:"table_id"`
	Queued    outbox.OrderCreate `json:"queued"`
	Live      *Order             `json:"live,omitempty"`
	FlaggedAt *time.Time         `json:"flagged_at,omitempty"`
}

func fromConflict(c resolver.Conflict) Conflict {
	return Conflict{
		EntryID:   c.EntryID,
		LocalID:   c.LocalID,
		TableID:   c.TableID,
		Queued:    c.Queued,
		Live:      fromOrder(c.Live),
		FlaggedAt: c.FlaggedAt,
	}
}

// ConflictsFromResolver converts resolver conflicts to their wire form.
func ConflictsFromResolver(conflicts []resolver.Conflict) []Conflict {
	out := make([]Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, fromConflict(c))
	}
	return out
}

// ConflictListResponse wraps conflict listings.
type ConflictListResponse struct {
	Conflicts []Conflict `json:"conflicts"`
}

// ResolveRequest carries an operator decision.
type ResolveRequest struct {
	Decision string `json:"decision"`
}

// ResolveResponse reports the resolution outcome.
type ResolveResponse struct {
	EntryID  int64  `json:"entry_id"`
	Decision string `json:"decision"`
	Order    *Order `json:"order,omitempty"`
}

// ResolveResponseFromResolution converts a resolver outcome to its wire form.
func ResolveResponseFromResolution(res *resolver.Resolution) ResolveResponse {
	return ResolveResponse{
		EntryID:  res.EntryID,
		Decision: string(res.Decision),
		Order:    fromOrder(res.Order),
	}
}

// QueueHealth mirrors the outbox status breakdown.
type QueueHealth struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Syncing  int `json:"syncing"`
	Failed   int `json:"failed"`
	Conflict int `json:"conflict"`
	Synced   int `json:"synced"`
}

// QueueHealthFromSummary converts an outbox health summary to its wire form.
func QueueHealthFromSummary(summary outbox.HealthSummary) QueueHealth {
	return QueueHealth{
		Total:    summary.Total,
		Pending:  summary.Pending,
		Syncing:  summary.Syncing,
		Failed:   summary.Failed,
		Conflict: summary.Conflict,
		Synced:   summary.Synced,
	}
}

// StatusResponse summarizes the running daemon.
type StatusResponse struct {
	Running         bool        `json:"running"`
	PID             int         `json:"pid"`
	QueueDBPath     string      `json:"queue_db_path"`
	OrdersDBPath    string      `json:"orders_db_path"`
	Queue           QueueHealth `json:"queue"`
	RealtimeClients int         `json:"realtime_clients"`
}

// SyncTriggerResponse acknowledges a fire-and-forget drain request.
type SyncTriggerResponse struct {
	Triggered bool `json:"triggered"`
}
