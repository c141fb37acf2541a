package domain

import "errors"

var (
	// ErrInvalidArgument covers an empty or over-long topic, an oversized
	// payload, an out-of-range qos, or a row that breaks the §3 invariants.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCapacityReached is returned by Store when priority >= 2 and the
	// row count is already at or above the configured capacity.
	ErrCapacityReached = errors.New("capacity reached")

	// ErrIdentityExhausted surfaces only when the identity sequence is
	// exhausted and either its reset or the single retry after it fails.
	ErrIdentityExhausted = errors.New("identity sequence exhausted")

	// ErrNotFound maps a backend no-rows fault for callers that query by
	// id outside the Get/GetNext paths, which return a nil *Message
	// instead (get(id) is optional per its contract, not error-bearing).
	ErrNotFound = errors.New("message not found")

	// ErrStoreError wraps any other backend fault that was rolled back.
	ErrStoreError = errors.New("store error")
)
