// README: Order store backed by PostgreSQL; all status writes are optimistic CAS updates.
package order

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "dropoff/internal/types"
)

const uniqueViolation = "23505"

type Store struct {
    db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
    return &Store{db: db}
}

const orderColumns = `id, status, status_version, vendor_address, customer_address, driver_id,
               total_amount, total_currency, created_at, updated_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
    _, err := s.db.Exec(ctx, `
        INSERT INTO orders (
            id, status, status_version, vendor_address, customer_address, driver_id,
            total_amount, total_currency, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
        string(o.ID),
        string(o.Status),
        o.StatusVersion,
        o.VendorAddress,
        o.CustomerAddress,
        toStringPtr(o.DriverID),
        o.Total.Amount,
        o.Total.Currency,
        o.CreatedAt,
        o.UpdatedAt,
    )
    return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
    row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
    o, err := scanOrder(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, ErrNotFound
    }
    return o, err
}

func (s *Store) ListAvailable(ctx context.Context, limit int) ([]*Order, error) {
    rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE status = $1
        ORDER BY created_at
        LIMIT $2`, string(StatusAvailable), limit,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []*Order
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, o)
    }
    return out, rows.Err()
}

func (s *Store) ActiveByDriver(ctx context.Context, driverID types.ID) (*Order, error) {
    row := s.db.QueryRow(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE driver_id = $1 AND status = ANY($2)
        ORDER BY updated_at DESC
        LIMIT 1`, string(driverID), activeStatuses,
    )
    o, err := scanOrder(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, ErrNotFound
    }
    return o, err
}

func (s *Store) HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error) {
    row := s.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM orders
            WHERE driver_id = $1
              AND status = ANY($2)
        )`, string(driverID), activeStatuses,
    )
    var exists bool
    if err := row.Scan(&exists); err != nil {
        return false, err
    }
    return exists, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
    tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            updated_at = $2
        WHERE id = $3 AND status = $4 AND status_version = $5`,
        string(to),
        at,
        string(id),
        string(from),
        version,
    )
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

// Claim assigns an available order to driverID. It refuses when the order
// moved on, or when the driver already holds an active order.
func (s *Store) Claim(ctx context.Context, id, driverID types.ID, version int, at time.Time) (bool, error) {
    tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            driver_id = $2,
            updated_at = $3
        WHERE id = $4 AND status = $5 AND status_version = $6
          AND NOT EXISTS (
              SELECT 1 FROM orders busy
              WHERE busy.driver_id = $2 AND busy.status = ANY($7)
          )`,
        string(StatusAssigned),
        string(driverID),
        at,
        string(id),
        string(StatusAvailable),
        version,
        activeStatuses,
    )
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
        // idx_orders_driver_active: a concurrent claim by the same driver won.
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
    _, err := s.db.Exec(ctx, `
        INSERT INTO order_state_events (
            order_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
        string(e.OrderID),
        string(e.FromStatus),
        string(e.ToStatus),
        string(e.ActorType),
        toStringPtr(e.ActorID),
        e.CreatedAt,
    )
    return err
}

func (s *Store) ListEvents(ctx context.Context, orderID types.ID) ([]Event, error) {
    rows, err := s.db.Query(ctx, `
        SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
        FROM order_state_events
        WHERE order_id = $1
        ORDER BY id`, string(orderID),
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []Event
    for rows.Next() {
        var e Event
        var actorID sql.NullString
        if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
            return nil, err
        }
        e.ActorID = fromNullString(actorID)
        out = append(out, e)
    }
    return out, rows.Err()
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
    var o Order
    var driverID sql.NullString
    err := row.Scan(
        &o.ID, &o.Status, &o.StatusVersion, &o.VendorAddress, &o.CustomerAddress, &driverID,
        &o.Total.Amount, &o.Total.Currency, &o.CreatedAt, &o.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    o.DriverID = fromNullString(driverID)
    return &o, nil
}

func toStringPtr(v *types.ID) *string {
    if v == nil {
        return nil
    }
    s := string(*v)
    return &s
}

func fromNullString(v sql.NullString) *types.ID {
    if !v.Valid {
        return nil
    }
    id := types.ID(v.String)
    return &id
}
