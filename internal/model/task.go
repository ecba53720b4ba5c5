// Package model holds the persistent domain types shared by the stores,
// the scheduling engine, and the planner service.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus = errors.New("model: invalid task status")
)

type TaskStatus string

const (
	StatusUnscheduled TaskStatus = "unscheduled"
	StatusScheduled   TaskStatus = "scheduled"
	StatusCompleted   TaskStatus = "completed"
	StatusRescheduled TaskStatus = "rescheduled"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusUnscheduled, StatusScheduled, StatusCompleted, StatusRescheduled:
		return true
	default:
		return false
	}
}

// Completed reports whether the task no longer competes for calendar time.
func (s TaskStatus) Completed() bool { return s == StatusCompleted }

// NeedsPlacement reports whether a pass should try to place the task.
// Rescheduled tasks are eligible again; their previous block is ignored.
func (s TaskStatus) NeedsPlacement() bool {
	return s == StatusUnscheduled || s == StatusRescheduled
}

// Task is one schedulable unit. A one-off task may carry a due-by instant
// and dependencies; an instance materialized from a recurring template
// carries TemplateID+InstanceDate and an inherited time-of-day window
// instead.
type Task struct {
	ID          string
	Content     string
	DurationMin int
	DueBy       *time.Time
	DependsOn   []string
	Status      TaskStatus

	// Set once placed. StatusRescheduled keeps stale values around until
	// the next pass overwrites them; readers must gate on Status.
	Start *time.Time
	End   *time.Time

	// Recurring-instance provenance. (TemplateID, InstanceDate) is unique.
	TemplateID   string
	InstanceDate *Date

	WindowStart *TimeOfDay
	WindowEnd   *TimeOfDay

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsInstance reports whether the task was materialized from a template.
func (t Task) IsInstance() bool { return t.TemplateID != "" }

// Duration returns the task length as a time.Duration.
func (t Task) Duration() time.Duration { return time.Duration(t.DurationMin) * time.Minute }

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Content) == "" {
		return errors.New("model: task content is required")
	}
	if t.DurationMin <= 0 {
		return fmt.Errorf("model: task %s: duration must be positive, got %d", t.ID, t.DurationMin)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if (t.TemplateID == "") != (t.InstanceDate == nil) {
		return fmt.Errorf("model: task %s: template id and instance date must be set together", t.ID)
	}
	if t.IsInstance() && len(t.DependsOn) > 0 {
		return fmt.Errorf("model: task %s: recurring instances cannot declare dependencies", t.ID)
	}
	if (t.Start == nil) != (t.End == nil) {
		return fmt.Errorf("model: task %s: start and end must be set together", t.ID)
	}
	if t.Start != nil && !t.Start.Before(*t.End) {
		return fmt.Errorf("model: task %s: start must precede end", t.ID)
	}
	if (t.WindowStart == nil) != (t.WindowEnd == nil) {
		return fmt.Errorf("model: task %s: window start and end must be set together", t.ID)
	}
	return nil
}
