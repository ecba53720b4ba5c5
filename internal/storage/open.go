package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"timeblock/internal/model"
	"timeblock/pkg/logx"
)

// Store is the persistence API used by the planner and the calendar
// importer.
type Store interface {
	// Tasks.
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, id string, at time.Time) error
	// ListOpenTasks returns every non-completed task with its ordered
	// dependency ids attached.
	ListOpenTasks(ctx context.Context) ([]model.Task, error)
	// ApplyPlacements marks tasks scheduled with their blocks, atomically.
	ApplyPlacements(ctx context.Context, ps []Placement) error
	// CreateInstances inserts materialized recurring occurrences,
	// silently skipping (template, date) pairs that already exist.
	CreateInstances(ctx context.Context, tasks []model.Task) (int64, error)
	// ClearSchedule sends every non-completed task back to unscheduled
	// and drops its block. Returns how many rows changed.
	ClearSchedule(ctx context.Context) (int64, error)

	// Recurring templates.
	CreateTemplate(ctx context.Context, t model.RecurringTemplate) error
	GetTemplate(ctx context.Context, id string) (model.RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, t model.RecurringTemplate) error
	// DeleteTemplate removes the template and cascades to its instances.
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, activeOnly bool) ([]model.RecurringTemplate, error)
	// ListInstanceKeys returns every materialized (template, date) pair
	// regardless of task status, for idempotent expansion.
	ListInstanceKeys(ctx context.Context) ([]model.InstanceKey, error)

	// Calendar events.
	UpsertEvent(ctx context.Context, e model.CalendarEvent) error
	ListEventsOverlapping(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error)
	// DeleteEventsNotIn removes events whose id is absent from keep,
	// completing a sync against the import directory.
	DeleteEventsNotIn(ctx context.Context, keep []string) (int64, error)

	Close() error
}

// Open initializes the configured store. A store is required; an empty
// driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
