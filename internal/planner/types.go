package planner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"timeblock/internal/engine"
	"timeblock/internal/model"
	"timeblock/internal/storage"
	"timeblock/pkg/logx"
)

// ErrPassInFlight is returned when a pass is requested while another one
// is still running. Triggers treat it as a skip, not a failure.
var ErrPassInFlight = errors.New("planner: pass already running")

// Config controls the pass runner.
type Config struct {
	Enabled bool

	// Schedule is the trigger spec: cron expression, "@every <duration>",
	// bare Go duration, or HH:MM interval shorthand.
	Schedule string

	// HorizonDays is how many days ahead a pass expands and places
	// (default 7).
	HorizonDays int

	Hours model.WorkHours
}

// Store is the slice of the storage layer a pass reads and writes.
type Store interface {
	ListOpenTasks(ctx context.Context) ([]model.Task, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]model.RecurringTemplate, error)
	ListInstanceKeys(ctx context.Context) ([]model.InstanceKey, error)
	ListEventsOverlapping(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error)
	CreateInstances(ctx context.Context, tasks []model.Task) (int64, error)
	ApplyPlacements(ctx context.Context, ps []storage.Placement) error
}

// RunSummary reports what one pass did.
type RunSummary struct {
	Window       model.ScheduleWindow
	TasksLoaded  int
	TemplatesIn  int
	InstancesNew int64
	Placed       int
	Failed       int
	Failures     map[engine.ReasonCode]int
	Took         time.Duration
}

// Snapshot is a point-in-time view of the service for diagnostics.
type Snapshot struct {
	Enabled  bool
	Schedule string
	Running  bool
	Runs     uint64
	Skipped  uint64
	LastRun  time.Time
	LastErr  string
	Last     RunSummary
	Next     time.Time
}

// Service triggers scheduling passes on a cron/interval schedule and runs
// them single-flight: a trigger that fires while a pass is still running
// is skipped.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store Store

	parser cron.Parser
	c      *cron.Cron
	entry  cron.EntryID

	running atomic.Bool

	// now is the clock seam; tests pin it.
	now func() time.Time

	runs    uint64
	skipped uint64
	lastRun time.Time
	lastErr string
	last    RunSummary
}
