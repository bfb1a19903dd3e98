package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrStateConflict     = errors.New("state conflict")
	ErrDuplicateReceipt  = errors.New("duplicate provider receipt")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// RoutingError means a confirmed payment could not be credited to any
// destination. Callers hand the money to the suspense fallback.
type RoutingError struct {
	Reason string
	Err    error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return "routing failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "routing failed: " + e.Reason
}

func (e *RoutingError) Unwrap() error { return e.Err }

// IsRoutingError reports whether err is, or wraps, a RoutingError.
func IsRoutingError(err error) bool {
	var re *RoutingError
	return errors.As(err, &re)
}
