package engine

import "errors"

// Sentinel errors shared by the store and API layers. Every failed operation
// maps to exactly one of these; the HTTP layer translates them to statuses
// with errors.Is.
var (
	// ErrInvalidArgument covers malformed input: non-positive amounts,
	// unknown options, bad fee, fewer than two distinct options.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEventClosed covers lifecycle violations: staking on a settled
	// event, or settling an event twice.
	ErrEventClosed = errors.New("event closed")

	// ErrInsufficientFunds means the user's balance is below the stake.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound means a referenced user, event, or bet does not exist.
	ErrNotFound = errors.New("not found")
)
