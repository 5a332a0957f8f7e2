package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateOrder inserts a new order row under the given session and announces
// it on the change feed. The session must belong to the referenced table.
func (s *Store) CreateOrder(ctx context.Context, req NewOrder) (*Order, error) {
	ctx = ensureContext(ctx)

	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session %d: %w", req.SessionID, err)
	}
	if session.TableID != req.TableID {
		return nil, fmt.Errorf("session %d belongs to table %d, not %d", req.SessionID, session.TableID, req.TableID)
	}

	items := req.ItemsJSON
	if items == "" {
		items = "[]"
	}
	origin := req.Origin
	if origin == "" {
		origin = OriginDirect
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO orders (
            table_id, session_id, status, items_json, total_cents,
            notes, placed_by, origin, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.TableID,
		req.SessionID,
		OrderOpen,
		items,
		req.TotalCents,
		req.Notes,
		req.PlacedBy,
		origin,
		nowStamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(Change{Entity: EntityOrders, Action: ActionCreated, ID: id})
	return order, nil
}

// GetOrder fetches an order by identifier. Returns ErrNotFound when absent.
func (s *Store) GetOrder(ctx context.Context, id int64) (*Order, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// LatestOpenOrder returns the most recent open order on the table's active
// session, or nil when the table has no such order.
func (s *Store) LatestOpenOrder(ctx context.Context, tableID int64) (*Order, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+orderColumnsPrefixed+` FROM orders o
         JOIN table_sessions ts ON ts.id = o.session_id
         WHERE o.table_id = ? AND o.status = ? AND ts.closed_at IS NULL
         ORDER BY o.created_at DESC, o.id DESC
         LIMIT 1`,
		tableID,
		OrderOpen,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest open order: %w", err)
	}
	return order, nil
}

// OpenOrderForTable probes for an open unsettled order on the table's active
// session created after the given instant. A nil order with a nil error means
// no such order exists.
func (s *Store) OpenOrderForTable(ctx context.Context, tableID int64, since time.Time) (*Order, error) {
	order, err := s.LatestOpenOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if order == nil || !order.CreatedAt.After(since) {
		return nil, nil
	}
	return order, nil
}

// ListOrdersForTable returns all orders on a table, newest first.
func (s *Store) ListOrdersForTable(ctx context.Context, tableID int64) ([]*Order, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+orderColumns+` FROM orders WHERE table_id = ? ORDER BY created_at DESC, id DESC`,
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// SettleOrder marks an open order as settled. Returns ErrNotOpen when the
// order is already settled or voided.
func (s *Store) SettleOrder(ctx context.Context, id int64) error {
	return s.finishOrder(ctx, id, OrderSettled)
}

// VoidOrder marks an open order as voided. Returns ErrNotOpen when the order
// is already settled or voided.
func (s *Store) VoidOrder(ctx context.Context, id int64) error {
	return s.finishOrder(ctx, id, OrderVoided)
}

func (s *Store) finishOrder(ctx context.Context, id int64, to OrderStatus) error {
	ctx = ensureContext(ctx)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE orders SET status = ?, settled_at = ? WHERE id = ? AND status = ?`,
		to,
		nowStamp(),
		id,
		OrderOpen,
	)
	if err != nil {
		return fmt.Errorf("finish order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotOpen
	}
	s.emit(Change{Entity: EntityOrders, Action: ActionUpdated, ID: id})
	return nil
}

const orderColumns = "id, table_id, session_id, status, items_json, total_cents, notes, placed_by, origin, created_at, settled_at"

const orderColumnsPrefixed = "o.id, o.table_id, o.session_id, o.status, o.items_json, o.total_cents, o.notes, o.placed_by, o.origin, o.created_at, o.settled_at"

func scanOrder(scanner interface{ Scan(dest ...any) error }) (*Order, error) {
	var (
		order      Order
		statusStr  string
		originStr  string
		createdRaw string
		settledRaw sql.NullString
	)
	if err := scanner.Scan(
		&order.ID,
		&order.TableID,
		&order.SessionID,
		&statusStr,
		&order.ItemsJSON,
		&order.TotalCents,
		&order.Notes,
		&order.PlacedBy,
		&originStr,
		&createdRaw,
		&settledRaw,
	); err != nil {
		return nil, err
	}
	order.Status = OrderStatus(statusStr)
	order.Origin = Origin(originStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		order.CreatedAt = created
	}
	if settledRaw.Valid {
		if settled, err := parseTimeString(settledRaw.String); err == nil {
			order.SettledAt = &settled
		}
	}
	return &order, nil
}
