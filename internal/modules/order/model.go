// README: Delivery order aggregate, status graph and driver actions.
package order

import (
    "time"

    "dropoff/internal/types"
)

type Status string

const (
    StatusAvailable          Status = "available"
    StatusAssigned           Status = "assigned"
    StatusOnRouteToVendor    Status = "on_route_to_vendor"
    StatusArrivedAtVendor    Status = "arrived_at_vendor"
    StatusPickedUp           Status = "picked_up"
    StatusOnRouteToCustomer  Status = "on_route_to_customer"
    StatusArrivedAtCustomer  Status = "arrived_at_customer"
    StatusDelivered          Status = "delivered"
    StatusCancelled          Status = "cancelled"
)

// Statuses lists every status in happy-path order followed by cancelled.
var Statuses = []Status{
    StatusAvailable,
    StatusAssigned,
    StatusOnRouteToVendor,
    StatusArrivedAtVendor,
    StatusPickedUp,
    StatusOnRouteToCustomer,
    StatusArrivedAtCustomer,
    StatusDelivered,
    StatusCancelled,
}

func (s Status) Valid() bool {
    for _, v := range Statuses {
        if v == s {
            return true
        }
    }
    return false
}

func (s Status) Terminal() bool {
    return s == StatusDelivered || s == StatusCancelled
}

// Active reports whether a driver holding an order in this status is busy.
func (s Status) Active() bool {
    return s != StatusAvailable && !s.Terminal()
}

// activeStatuses is the SQL form of Status.Active.
var activeStatuses = []string{
    string(StatusAssigned),
    string(StatusOnRouteToVendor),
    string(StatusArrivedAtVendor),
    string(StatusPickedUp),
    string(StatusOnRouteToCustomer),
    string(StatusArrivedAtCustomer),
}

type Order struct {
    ID              types.ID    `json:"id"`
    Status          Status      `json:"status"`
    StatusVersion   int         `json:"status_version"`
    VendorAddress   string      `json:"vendor_address"`
    CustomerAddress string      `json:"customer_address"`
    DriverID        *types.ID   `json:"driver_id,omitempty"`
    Total           types.Money `json:"total"`
    CreatedAt       time.Time   `json:"created_at"`
    UpdatedAt       time.Time   `json:"updated_at"`
}

// Actor identifies who caused a transition.
type Actor string

const (
    ActorDriver Actor = "driver"
    ActorSystem Actor = "system"
)

type Event struct {
    ID         int64
    OrderID    types.ID
    FromStatus Status
    ToStatus   Status
    ActorType  Actor
    ActorID    *types.ID
    CreatedAt  time.Time
}

// AllowedTransitions represents the delivery flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
    StatusAvailable:         {StatusAssigned},
    StatusAssigned:          {StatusOnRouteToVendor, StatusCancelled},
    StatusOnRouteToVendor:   {StatusArrivedAtVendor, StatusCancelled},
    StatusArrivedAtVendor:   {StatusPickedUp, StatusCancelled},
    StatusPickedUp:          {StatusOnRouteToCustomer, StatusCancelled},
    StatusOnRouteToCustomer: {StatusArrivedAtCustomer, StatusCancelled},
    StatusArrivedAtCustomer: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
    next, ok := AllowedTransitions[from]
    if !ok {
        return false
    }
    for _, s := range next {
        if s == to {
            return true
        }
    }
    return false
}

// TransitionResult is the outcome of validating a requested status change.
type TransitionResult struct {
    Allowed bool   `json:"allowed"`
    Reason  string `json:"reason,omitempty"`
}

func allowed() TransitionResult {
    return TransitionResult{Allowed: true}
}

func denied(reason string) TransitionResult {
    return TransitionResult{Reason: reason}
}

// Validate checks a requested transition against the graph. It never fails;
// a refused transition comes back as a result carrying the reason.
func Validate(current, requested Status) TransitionResult {
    if current == requested {
        return denied("no-op transition")
    }
    if CanTransition(current, requested) {
        return allowed()
    }
    return denied("illegal transition from " + string(current) + " to " + string(requested))
}

// Action is a driver-facing command offered by the app for a status.
type Action string

const (
    ActionAccept                    Action = "accept"
    ActionStartNavigationToVendor   Action = "start_navigation_to_vendor"
    ActionArriveAtVendor            Action = "arrive_at_vendor"
    ActionConfirmPickup             Action = "confirm_pickup"
    ActionStartNavigationToCustomer Action = "start_navigation_to_customer"
    ActionArriveAtCustomer          Action = "arrive_at_customer"
    ActionCompleteDelivery          Action = "complete_delivery"
    ActionCancel                    Action = "cancel"
)

var statusActions = map[Status][]Action{
    StatusAvailable:         {ActionAccept},
    StatusAssigned:          {ActionStartNavigationToVendor, ActionCancel},
    StatusOnRouteToVendor:   {ActionArriveAtVendor, ActionCancel},
    StatusArrivedAtVendor:   {ActionConfirmPickup, ActionCancel},
    StatusPickedUp:          {ActionStartNavigationToCustomer, ActionCancel},
    StatusOnRouteToCustomer: {ActionArriveAtCustomer, ActionCancel},
    StatusArrivedAtCustomer: {ActionCompleteDelivery, ActionCancel},
}

// actionTargets maps each action to the status it requests.
var actionTargets = map[Action]Status{
    ActionAccept:                    StatusAssigned,
    ActionStartNavigationToVendor:   StatusOnRouteToVendor,
    ActionArriveAtVendor:            StatusArrivedAtVendor,
    ActionConfirmPickup:             StatusPickedUp,
    ActionStartNavigationToCustomer: StatusOnRouteToCustomer,
    ActionArriveAtCustomer:          StatusArrivedAtCustomer,
    ActionCompleteDelivery:          StatusDelivered,
    ActionCancel:                    StatusCancelled,
}

// AvailableActions returns the actions offered in status s. Terminal and
// unknown statuses offer none.
func AvailableActions(s Status) []Action {
    acts := statusActions[s]
    out := make([]Action, len(acts))
    copy(out, acts)
    return out
}

// Target returns the status an action requests.
func (a Action) Target() (Status, bool) {
    s, ok := actionTargets[a]
    return s, ok
}
