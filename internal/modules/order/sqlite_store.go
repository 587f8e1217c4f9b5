// README: Order store backed by SQLite for single-node deployments and tests.
package order

import (
    "context"
    "database/sql"
    _ "embed"
    "errors"
    "fmt"
    "strings"
    "time"

    "dropoff/internal/types"
)

// SQLStore mirrors Store on database/sql. Timestamps are unix milliseconds.
type SQLStore struct {
    db *sql.DB
}

//go:embed sqlite_schema.sql
var sqliteSchema string

// NewSQLStore creates the schema if needed.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
    if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
        return nil, fmt.Errorf("migrate orders: %w", err)
    }
    return &SQLStore{db: db}, nil
}

var activeIn = "('" + strings.Join(activeStatuses, "','") + "')"

func (s *SQLStore) Create(ctx context.Context, o *Order) error {
    _, err := s.db.ExecContext(ctx, `
        INSERT INTO orders (
            id, status, status_version, vendor_address, customer_address, driver_id,
            total_amount, total_currency, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        string(o.ID), string(o.Status), o.StatusVersion, o.VendorAddress, o.CustomerAddress,
        toStringPtr(o.DriverID), o.Total.Amount, o.Total.Currency,
        o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli(),
    )
    return err
}

func (s *SQLStore) Get(ctx context.Context, id types.ID) (*Order, error) {
    row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, string(id))
    o, err := scanSQLOrder(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return o, err
}

func (s *SQLStore) ListAvailable(ctx context.Context, limit int) ([]*Order, error) {
    rows, err := s.db.QueryContext(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE status = ?
        ORDER BY created_at
        LIMIT ?`, string(StatusAvailable), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []*Order
    for rows.Next() {
        o, err := scanSQLOrder(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, o)
    }
    return out, rows.Err()
}

func (s *SQLStore) ActiveByDriver(ctx context.Context, driverID types.ID) (*Order, error) {
    row := s.db.QueryRowContext(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE driver_id = ? AND status IN `+activeIn+`
        ORDER BY updated_at DESC
        LIMIT 1`, string(driverID))
    o, err := scanSQLOrder(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return o, err
}

func (s *SQLStore) HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error) {
    var exists bool
    err := s.db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM orders WHERE driver_id = ? AND status IN `+activeIn+`
        )`, string(driverID)).Scan(&exists)
    return exists, err
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
    res, err := s.db.ExecContext(ctx, `
        UPDATE orders
        SET status = ?, status_version = status_version + 1, updated_at = ?
        WHERE id = ? AND status = ? AND status_version = ?`,
        string(to), at.UnixMilli(), string(id), string(from), version)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    return n == 1, err
}

func (s *SQLStore) Claim(ctx context.Context, id, driverID types.ID, version int, at time.Time) (bool, error) {
    res, err := s.db.ExecContext(ctx, `
        UPDATE orders
        SET status = ?, status_version = status_version + 1, driver_id = ?, updated_at = ?
        WHERE id = ? AND status = ? AND status_version = ?
          AND NOT EXISTS (
              SELECT 1 FROM orders busy
              WHERE busy.driver_id = ? AND busy.status IN `+activeIn+`
          )`,
        string(StatusAssigned), string(driverID), at.UnixMilli(),
        string(id), string(StatusAvailable), version, string(driverID))
    if err != nil {
        if strings.Contains(err.Error(), "UNIQUE constraint failed") {
            return false, nil
        }
        return false, err
    }
    n, err := res.RowsAffected()
    return n == 1, err
}

func (s *SQLStore) AppendEvent(ctx context.Context, e *Event) error {
    _, err := s.db.ExecContext(ctx, `
        INSERT INTO order_state_events (order_id, from_status, to_status, actor_type, actor_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
        string(e.OrderID), string(e.FromStatus), string(e.ToStatus), string(e.ActorType),
        toStringPtr(e.ActorID), e.CreatedAt.UnixMilli())
    return err
}

func (s *SQLStore) ListEvents(ctx context.Context, orderID types.ID) ([]Event, error) {
    rows, err := s.db.QueryContext(ctx, `
        SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
        FROM order_state_events
        WHERE order_id = ?
        ORDER BY id`, string(orderID))
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []Event
    for rows.Next() {
        var e Event
        var orderID, from, to, actor string
        var actorID sql.NullString
        var createdAt int64
        if err := rows.Scan(&e.ID, &orderID, &from, &to, &actor, &actorID, &createdAt); err != nil {
            return nil, err
        }
        e.OrderID = types.ID(orderID)
        e.FromStatus = Status(from)
        e.ToStatus = Status(to)
        e.ActorType = Actor(actor)
        e.ActorID = fromNullString(actorID)
        e.CreatedAt = time.UnixMilli(createdAt).UTC()
        out = append(out, e)
    }
    return out, rows.Err()
}

func scanSQLOrder(row rowScanner) (*Order, error) {
    var o Order
    var id, status string
    var driverID sql.NullString
    var createdAt, updatedAt int64
    err := row.Scan(
        &id, &status, &o.StatusVersion, &o.VendorAddress, &o.CustomerAddress, &driverID,
        &o.Total.Amount, &o.Total.Currency, &createdAt, &updatedAt,
    )
    if err != nil {
        return nil, err
    }
    o.ID = types.ID(id)
    o.Status = Status(status)
    o.DriverID = fromNullString(driverID)
    o.CreatedAt = time.UnixMilli(createdAt).UTC()
    o.UpdatedAt = time.UnixMilli(updatedAt).UTC()
    return &o, nil
}
