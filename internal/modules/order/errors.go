// README: Delivery error taxonomy shared by the service and its callers.
package order

import (
    "errors"
    "fmt"
)

// Kind classifies a lifecycle failure.
type Kind string

const (
    KindValidation Kind = "validation"
    KindNotFound   Kind = "not_found"
    KindConflict   Kind = "conflict"
    KindUnknown    Kind = "unknown"
)

var (
    ErrValidation = errors.New("delivery validation failed")
    ErrNotFound   = errors.New("order not found")
    ErrConflict   = errors.New("order state conflict")
    ErrUnknown    = errors.New("delivery operation failed")
)

// Error is returned by every Service operation that fails.
type Error struct {
    Kind   Kind
    Reason string
    // Result is set when a transition was refused by the status graph.
    Result *TransitionResult
    Err    error
}

func (e *Error) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
    }
    return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
    return e.Err
}

// Is lets errors.Is match an *Error against the kind sentinels.
func (e *Error) Is(target error) bool {
    switch target {
    case ErrValidation:
        return e.Kind == KindValidation
    case ErrNotFound:
        return e.Kind == KindNotFound
    case ErrConflict:
        return e.Kind == KindConflict
    case ErrUnknown:
        return e.Kind == KindUnknown
    }
    return false
}

func validationError(reason string) *Error {
    return &Error{Kind: KindValidation, Reason: reason}
}

func deniedError(res TransitionResult) *Error {
    return &Error{Kind: KindValidation, Reason: res.Reason, Result: &res}
}

func conflictError(reason string) *Error {
    return &Error{Kind: KindConflict, Reason: reason}
}

func unknownError(op string, err error) *Error {
    return &Error{Kind: KindUnknown, Reason: op, Err: err}
}

// storeError maps a repository failure onto the taxonomy.
func storeError(op string, err error) *Error {
    if errors.Is(err, ErrNotFound) {
        return &Error{Kind: KindNotFound, Reason: op, Err: err}
    }
    return unknownError(op, err)
}

// KindOf reports the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
    var e *Error
    if errors.As(err, &e) {
        return e.Kind
    }
    if errors.Is(err, ErrNotFound) {
        return KindNotFound
    }
    return KindUnknown
}
