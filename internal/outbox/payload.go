package outbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityOrders is the authoritative entity name for order mutations.
const EntityOrders = "orders"

// Mutation is the decoded form of an entry payload. The concrete type is
// selected by the entry's (targetEntity, operation) pair; payloads with no
// registered schema decode to Unknown so future producers cannot break the
// drain loop.
type Mutation interface {
	mutation()
}

// OrderCreate describes a queued "create order" mutation.
type OrderCreate struct {
	TableID   int64           `json:"table_id"`
	SessionID int64           `json:"session_id"`
	Items     json.RawMessage `json:"items,omitempty"`
	TotalCents int64          `json:"total_cents"`
	Notes     string          `json:"notes,omitempty"`
	PlacedBy  string          `json:"placed_by,omitempty"`
}

func (OrderCreate) mutation() {}

// Unknown carries an undecoded payload for a (entity, operation) pair this
// build has no schema for.
type Unknown struct {
	TargetEntity string
	Operation    Operation
	Payload      json.RawMessage
}

func (Unknown) mutation() {}

// Validate checks the fields conflict detection and apply depend on.
func (m OrderCreate) Validate() error {
	if m.TableID <= 0 {
		return fmt.Errorf("order create: table_id is required")
	}
	if m.SessionID <= 0 {
		return fmt.Errorf("order create: session_id is required")
	}
	return nil
}

// DecodeMutation parses an entry payload into its typed mutation.
func DecodeMutation(entity string, op Operation, payload []byte) (Mutation, error) {
	switch {
	case strings.EqualFold(entity, EntityOrders) && op == OpCreate:
		var m OrderCreate
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode order create payload: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return m, nil
	default:
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return Unknown{TargetEntity: entity, Operation: op, Payload: raw}, nil
	}
}

// Decode parses the entry's own payload.
func (e *Entry) Decode() (Mutation, error) {
	return DecodeMutation(e.TargetEntity, e.Operation, []byte(e.PayloadJSON))
}

// EncodeOrderCreate serializes an order-create mutation for enqueueing.
func EncodeOrderCreate(m OrderCreate) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode order create payload: %w", err)
	}
	return string(data), nil
}
