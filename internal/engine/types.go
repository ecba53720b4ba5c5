package engine

import (
	"time"

	"timeblock/internal/model"
)

// ReasonCode classifies why a unit could not be placed in a pass.
type ReasonCode string

const (
	// ReasonNoCapacity: no free contiguous block of the required length
	// exists before the unit's due-by (or the window end).
	ReasonNoCapacity ReasonCode = "NO_CAPACITY"
	// ReasonCyclicDependency: the task sits on a dependency cycle.
	ReasonCyclicDependency ReasonCode = "CYCLIC_DEPENDENCY"
	// ReasonBlockedDependency: a dependency failed, so the task's lower
	// bound can never be resolved this pass.
	ReasonBlockedDependency ReasonCode = "BLOCKED_BY_UNSCHEDULABLE_DEPENDENCY"
	// ReasonOutsideWorkWindow: the unit's time-of-day window is inverted,
	// disjoint from work hours, or too narrow for its duration.
	ReasonOutsideWorkWindow ReasonCode = "OUTSIDE_WORK_WINDOW"
)

// Request carries everything one pass needs. The engine reads no stores;
// callers snapshot the scope up front.
type Request struct {
	Window model.ScheduleWindow
	Hours  model.WorkHours

	// Tasks are the scope's non-completed tasks. Scheduled ones only
	// contribute busy time; unscheduled and rescheduled ones compete
	// for placement.
	Tasks []model.Task

	// Templates are the recurring templates to expand. Inactive ones
	// are skipped.
	Templates []model.RecurringTemplate

	// Events are the calendar events overlapping Window, engine-managed
	// and imported alike.
	Events []model.CalendarEvent

	// Materialized lists every (template, date) pair that already exists
	// as a task row in any status, keeping expansion idempotent across
	// passes. Instance rows present in Tasks are recognized either way.
	Materialized []model.InstanceKey
}

// Assignment is one placed block, to be persisted by the caller.
type Assignment struct {
	TaskID string
	Start  time.Time
	End    time.Time
}

// Instance is a recurring occurrence materialized by this pass. It is
// emitted whether or not placement succeeded; a failed placement shows
// up in Failures under the same TaskID.
type Instance struct {
	TemplateID   string
	InstanceDate model.Date
	TaskID       string

	// Task is the ready-to-persist row for this occurrence.
	Task model.Task
}

// Failure names a unit the pass could not place and why.
type Failure struct {
	TaskID string
	Reason ReasonCode
}

// Result is the complete outcome of one pass: every schedulable unit
// lands either in Assignments or in Failures.
type Result struct {
	Assignments []Assignment
	Instances   []Instance
	Failures    []Failure
}

func (r *Result) Placed() int { return len(r.Assignments) }
func (r *Result) Failed() int { return len(r.Failures) }

type unitState uint8

const (
	statePending unitState = iota
	stateReady
	statePlaced
	stateUnschedulable
	stateInvalid
)

// workItem tracks one unit's progress through a pass.
type workItem struct {
	unit   unit
	state  unitState
	reason ReasonCode

	due    time.Time
	hasDue bool
	depth  int
}

func (it *workItem) fail(s unitState, r ReasonCode) {
	it.state = s
	it.reason = r
}

// terminal reports whether the item has left the Pending/Ready states.
func (it *workItem) terminal() bool {
	return it.state == statePlaced || it.state == stateUnschedulable || it.state == stateInvalid
}
