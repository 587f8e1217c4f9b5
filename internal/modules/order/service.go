// README: Order service enforces delivery business rules over the status graph and store.
package order

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "time"

    "dropoff/internal/events"
    "dropoff/internal/types"
)

// Repository is the order persistence port. UpdateStatus and Claim are
// compare-and-swap writes: they report false when the row moved on.
type Repository interface {
    Create(ctx context.Context, o *Order) error
    Get(ctx context.Context, id types.ID) (*Order, error)
    ListAvailable(ctx context.Context, limit int) ([]*Order, error)
    ActiveByDriver(ctx context.Context, driverID types.ID) (*Order, error)
    HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error)
    UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error)
    Claim(ctx context.Context, id, driverID types.ID, version int, at time.Time) (bool, error)
    AppendEvent(ctx context.Context, e *Event) error
    ListEvents(ctx context.Context, orderID types.ID) ([]Event, error)
}

type Service struct {
    store Repository
    bus   *events.Bus
    now   func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now for timestamps and priority ages.
func WithClock(now func() time.Time) Option {
    return func(s *Service) { s.now = now }
}

// WithEventBus publishes committed transitions to bus.
func WithEventBus(bus *events.Bus) Option {
    return func(s *Service) { s.bus = bus }
}

func NewService(store Repository, opts ...Option) *Service {
    s := &Service{store: store, now: time.Now}
    for _, opt := range opts {
        opt(s)
    }
    return s
}

type CreateCommand struct {
    VendorAddress   string
    CustomerAddress string
    Total           types.Money
}

type AcceptCommand struct {
    OrderID  types.ID
    DriverID types.ID
}

type UpdateStatusCommand struct {
    OrderID  types.ID
    Status   Status
    DriverID types.ID
    Actor    Actor
}

const defaultQueueLimit = 50

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
    if cmd.VendorAddress == "" || cmd.CustomerAddress == "" {
        return nil, validationError("vendor and customer addresses are required")
    }
    if cmd.Total.Amount < 0 {
        return nil, validationError("total must not be negative")
    }
    now := s.now()
    o := &Order{
        ID:              newID(),
        Status:          StatusAvailable,
        VendorAddress:   cmd.VendorAddress,
        CustomerAddress: cmd.CustomerAddress,
        Total:           cmd.Total,
        CreatedAt:       now,
        UpdatedAt:       now,
    }
    if err := s.store.Create(ctx, o); err != nil {
        return nil, unknownError("create order", err)
    }
    return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
    o, err := s.store.Get(ctx, id)
    if err != nil {
        return nil, storeError("get order", err)
    }
    return o, nil
}

// ActiveOrder returns the driver's in-flight delivery, if any.
func (s *Service) ActiveOrder(ctx context.Context, driverID types.ID) (*Order, error) {
    o, err := s.store.ActiveByDriver(ctx, driverID)
    if err != nil {
        return nil, storeError("get active order", err)
    }
    return o, nil
}

// Accept claims an available order for a driver who has no active delivery.
// Losing the claim to another driver is reported as a conflict.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
    if cmd.OrderID == "" || cmd.DriverID == "" {
        return nil, validationError("order id and driver id are required")
    }
    busy, err := s.store.HasActiveByDriver(ctx, cmd.DriverID)
    if err != nil {
        return nil, unknownError("check active orders", err)
    }
    if busy {
        return nil, validationError("driver already has an active delivery")
    }
    o, err := s.store.Get(ctx, cmd.OrderID)
    if err != nil {
        return nil, storeError("get order", err)
    }
    if res := Validate(o.Status, StatusAssigned); !res.Allowed {
        return nil, deniedError(res)
    }

    now := s.now()
    ok, err := s.store.Claim(ctx, o.ID, cmd.DriverID, o.StatusVersion, now)
    if err != nil {
        return nil, unknownError("claim order", err)
    }
    if !ok {
        // The driver may have won a different order in the meantime.
        if busy, err := s.store.HasActiveByDriver(ctx, cmd.DriverID); err == nil && busy {
            return nil, validationError("driver already has an active delivery")
        }
        return nil, conflictError("order was claimed by another driver")
    }

    from := o.Status
    o.Status = StatusAssigned
    o.StatusVersion++
    o.DriverID = &cmd.DriverID
    o.UpdatedAt = now
    s.record(ctx, o, from, ActorDriver, &cmd.DriverID, events.TypeOrderAccepted)
    return o, nil
}

// UpdateStatus validates the requested transition before writing it. A lost
// compare-and-swap is re-validated against the fresh status and never retried.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Order, error) {
    if !cmd.Status.Valid() {
        return nil, validationError("unknown status " + string(cmd.Status))
    }
    if cmd.Status == StatusAssigned {
        return nil, validationError("orders are assigned through accept")
    }
    if cmd.Actor == "" {
        cmd.Actor = ActorDriver
    }
    o, err := s.store.Get(ctx, cmd.OrderID)
    if err != nil {
        return nil, storeError("get order", err)
    }
    if cmd.DriverID != "" && (o.DriverID == nil || *o.DriverID != cmd.DriverID) {
        return nil, validationError("order is not assigned to this driver")
    }
    if res := Validate(o.Status, cmd.Status); !res.Allowed {
        return nil, deniedError(res)
    }

    now := s.now()
    ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.Status, o.StatusVersion, now)
    if err != nil {
        return nil, unknownError("update status", err)
    }
    if !ok {
        cur, err := s.store.Get(ctx, cmd.OrderID)
        if err != nil {
            return nil, storeError("reload order", err)
        }
        if res := Validate(cur.Status, cmd.Status); !res.Allowed {
            return nil, deniedError(res)
        }
        return nil, conflictError("order changed concurrently, now " + string(cur.Status))
    }

    from := o.Status
    o.Status = cmd.Status
    o.StatusVersion++
    o.UpdatedAt = now
    var actorID *types.ID
    if cmd.Actor == ActorDriver && cmd.DriverID != "" {
        actorID = &cmd.DriverID
    }
    s.record(ctx, o, from, cmd.Actor, actorID, events.TypeOrderTransition)
    return o, nil
}

func (s *Service) AvailableActions(o *Order) []Action {
    return AvailableActions(o.Status)
}

// CanPerformAction reports whether a is offered for the order's current status.
func (s *Service) CanPerformAction(o *Order, a Action) bool {
    for _, v := range AvailableActions(o.Status) {
        if v == a {
            return true
        }
    }
    return false
}

// Queue returns available orders sorted by priority, highest first.
func (s *Service) Queue(ctx context.Context, limit int) ([]*Order, error) {
    if limit <= 0 {
        limit = defaultQueueLimit
    }
    orders, err := s.store.ListAvailable(ctx, limit)
    if err != nil {
        return nil, unknownError("list available orders", err)
    }
    SortByPriority(orders, s.now())
    return orders, nil
}

func (s *Service) History(ctx context.Context, id types.ID) ([]Event, error) {
    if _, err := s.Get(ctx, id); err != nil {
        return nil, err
    }
    evts, err := s.store.ListEvents(ctx, id)
    if err != nil {
        return nil, unknownError("list order events", err)
    }
    return evts, nil
}

func (s *Service) record(ctx context.Context, o *Order, from Status, actor Actor, actorID *types.ID, typ events.Type) {
    _ = s.store.AppendEvent(ctx, &Event{
        OrderID:    o.ID,
        FromStatus: from,
        ToStatus:   o.Status,
        ActorType:  actor,
        ActorID:    actorID,
        CreatedAt:  o.UpdatedAt,
    })
    var driverID types.ID
    if o.DriverID != nil {
        driverID = *o.DriverID
    }
    s.bus.Emit(events.Event{
        Type:      typ,
        OrderID:   o.ID,
        DriverID:  driverID,
        From:      string(from),
        To:        string(o.Status),
        Actor:     string(actor),
        Timestamp: o.UpdatedAt,
    })
}

func newID() types.ID {
    var b [16]byte
    _, _ = rand.Read(b[:])
    return types.ID(hex.EncodeToString(b[:]))
}
