package orders

import "time"

// OrderStatus represents the lifecycle of an authoritative order.
type OrderStatus string

const (
	OrderOpen    OrderStatus = "open"
	OrderSettled OrderStatus = "settled"
	OrderVoided  OrderStatus = "voided"
)

// Origin records which path created an order row.
type Origin string

const (
	// OriginDirect marks orders written synchronously by an API handler.
	OriginDirect Origin = "direct"
	// OriginSync marks orders applied by the drain worker from the outbox.
	OriginSync Origin = "sync"
	// OriginResolution marks orders created by an operator conflict decision.
	OriginResolution Origin = "resolution"
)

// DiningTable is a physical table in the restaurant.
type DiningTable struct {
	ID        int64
	Label     string
	CreatedAt time.Time
}

// TableSession covers one seating of a table; active while ClosedAt is nil.
type TableSession struct {
	ID       int64
	TableID  int64
	OpenedAt time.Time
	ClosedAt *time.Time
}

// Order is the slice of the authoritative order row the sync core touches.
// Line items stay as opaque JSON; only the fields conflict detection and
// reporting need are first-class columns.
type Order struct {
	ID         int64
	TableID    int64
	SessionID  int64
	Status     OrderStatus
	ItemsJSON  string
	TotalCents int64
	Notes      string
	PlacedBy   string
	Origin     Origin
	CreatedAt  time.Time
	SettledAt  *time.Time
}

// NewOrder describes an order to persist.
type NewOrder struct {
	TableID    int64
	SessionID  int64
	ItemsJSON  string
	TotalCents int64
	Notes      string
	PlacedBy   string
	Origin     Origin
}

// Change describes one committed write, delivered to change-feed subscribers.
type Change struct {
	Entity string
	Action string
	ID     int64
}

// Change feed action names.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Change feed entity names.
const (
	EntityOrders   = "orders"
	EntitySessions = "table_sessions"
	EntityTables   = "dining_tables"
)
