package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row the caller named does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when an insert collides with an existing id.
	ErrConflict = errors.New("storage: conflict")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Placement sets one task's scheduled block. A batch of placements is
// applied in a single transaction so a pass result lands atomically.
type Placement struct {
	TaskID string
	Start  time.Time
	End    time.Time
}
