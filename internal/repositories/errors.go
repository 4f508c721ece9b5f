package repositories

import "errors"

// Storage-level error kinds. Repositories wrap these with context so callers
// can branch with errors.Is instead of matching message strings.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a stock decrement would go below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a versioned update lost a concurrent write race.
	ErrConflict = errors.New("version conflict")
)
