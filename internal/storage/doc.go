// Package storage persists the scheduling state between passes.
//
// It holds:
//   - Task rows (one-off and materialized recurring instances)
//   - Ordered task dependency edges
//   - Recurring templates
//   - Calendar events mirrored from the import directory
package storage
