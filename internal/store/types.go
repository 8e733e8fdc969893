package store

import "github.com/pkg/errors"

const (
	// DefaultRecentLimit is used when callers ask for zero or fewer entries.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps a single journal read.
	MaxRecentLimit = 500
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: record not found")

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
