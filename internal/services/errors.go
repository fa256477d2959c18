package services

import "errors"

var (
	// ErrValidation covers malformed input: bad dates, guest counts out of
	// range, non-positive amounts. Wrapped with detail at the call site.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when the referenced entity does not exist or
	// is not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrDatesUnavailable is returned when the requested range conflicts
	// with another booking on the same property. Never silently adjusted.
	ErrDatesUnavailable = errors.New("dates unavailable")

	// ErrInvalidTransition is returned when an operation is attempted from
	// a status that forbids it.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRefundFailed means the gateway declined or could not process a
	// refund. The payment stays completed; the sweep retries it.
	ErrRefundFailed = errors.New("refund failed")
)
