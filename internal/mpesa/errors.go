package mpesa

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while the
	// breaker is cooling down.
	ErrCircuitOpen = errors.New("mpesa: circuit open")
	// ErrRateLimited means the provider answered 429. The payment state is
	// unknown, not failed.
	ErrRateLimited = errors.New("mpesa: rate limited")
	// ErrProviderUnavailable covers transport failures and 5xx answers.
	ErrProviderUnavailable = errors.New("mpesa: provider unavailable")
	// ErrStillProcessing is the query API's way of saying the customer has
	// not answered the prompt yet.
	ErrStillProcessing = errors.New("mpesa: transaction still processing")
	// ErrRejected means the provider refused the request itself (bad
	// phone, bad shortcode, invalid amount).
	ErrRejected = errors.New("mpesa: request rejected")
	// ErrInvalidPhone is returned by NormalizePhone.
	ErrInvalidPhone = errors.New("mpesa: invalid phone number")
)

// APIError carries the provider's error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mpesa api %d: %s %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// IsTransient reports whether err leaves the payment outcome unknown, so the
// caller should treat the payment as still pending.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrStillProcessing)
}
