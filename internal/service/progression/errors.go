package progression

import "errors"

// Sentinel errors returned by the ledger operations.
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInsufficientBalance = errors.New("insufficient coin balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownActivity     = errors.New("unknown activity kind")
	ErrPersistence         = errors.New("persistence failure")
)
