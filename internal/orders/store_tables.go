package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateTable registers a dining table by label.
func (s *Store) CreateTable(ctx context.Context, label string) (*DiningTable, error) {
	ctx = ensureContext(ctx)
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.New("table label is required")
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO dining_tables (label, created_at) VALUES (?, ?)`,
		label,
		nowStamp(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("table %q already exists", label)
		}
		return nil, fmt.Errorf("insert table: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	table, err := s.GetTable(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(Change{Entity: EntityTables, Action: ActionCreated, ID: id})
	return table, nil
}

// GetTable fetches a dining table by identifier.
func (s *Store) GetTable(ctx context.Context, id int64) (*DiningTable, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, label, created_at FROM dining_tables WHERE id = ?`,
		id,
	)

	var (
		table      DiningTable
		createdRaw string
	)
	if err := row.Scan(&table.ID, &table.Label, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		table.CreatedAt = created
	}
	return &table, nil
}

// ListTables returns all dining tables ordered by label.
func (s *Store) ListTables(ctx context.Context) ([]*DiningTable, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, label, created_at FROM dining_tables ORDER BY label`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []*DiningTable
	for rows.Next() {
		var (
			table      DiningTable
			createdRaw string
		)
		if err := rows.Scan(&table.ID, &table.Label, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			table.CreatedAt = created
		}
		tables = append(tables, &table)
	}
	return tables, rows.Err()
}

// OpenSession starts a seating on a table. A table can hold at most one
// active session; opening a second returns ErrSessionOpen.
func (s *Store) OpenSession(ctx context.Context, tableID int64) (*TableSession, error) {
	ctx = ensureContext(ctx)
	if _, err := s.GetTable(ctx, tableID); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO table_sessions (table_id, opened_at) VALUES (?, ?)`,
		tableID,
		nowStamp(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSessionOpen
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(Change{Entity: EntitySessions, Action: ActionCreated, ID: id})
	return session, nil
}

// GetSession fetches a session by identifier.
func (s *Store) GetSession(ctx context.Context, id int64) (*TableSession, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, table_id, opened_at, closed_at FROM table_sessions WHERE id = ?`,
		id,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ActiveSession returns the open seating for a table, or ErrNoActiveSession
// when the table is unseated.
func (s *Store) ActiveSession(ctx context.Context, tableID int64) (*TableSession, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, table_id, opened_at, closed_at FROM table_sessions
         WHERE table_id = ? AND closed_at IS NULL`,
		tableID,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	return session, nil
}

// CloseSession ends a seating. Closing an already closed session is a no-op.
func (s *Store) CloseSession(ctx context.Context, sessionID int64) error {
	ctx = ensureContext(ctx)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE table_sessions SET closed_at = ? WHERE id = ? AND closed_at IS NULL`,
		nowStamp(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		s.emit(Change{Entity: EntitySessions, Action: ActionUpdated, ID: sessionID})
	}
	return nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*TableSession, error) {
	var (
		session   TableSession
		openedRaw string
		closedRaw sql.NullString
	)
	if err := scanner.Scan(&session.ID, &session.TableID, &openedRaw, &closedRaw); err != nil {
		return nil, err
	}
	if opened, err := parseTimeString(openedRaw); err == nil {
		session.OpenedAt = opened
	}
	if closedRaw.Valid {
		if closed, err := parseTimeString(closedRaw.String); err == nil {
			session.ClosedAt = &closed
		}
	}
	return &session, nil
}
