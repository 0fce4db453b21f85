package planguard

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the identifier
	ErrAccountNotFound = errors.New("account not found")

	// ErrSubscriptionNotFound is returned when no subscription matches the identifier
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrResourceNotFound is returned when no resource matches the identifier
	ErrResourceNotFound = errors.New("resource not found")

	// ErrStorageUnavailable is returned when storage is missing or unreachable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidOutcome is returned for a payment outcome outside the closed set
	ErrInvalidOutcome = errors.New("invalid payment outcome")
)
