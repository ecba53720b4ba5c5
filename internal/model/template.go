package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRecurrence = errors.New("model: invalid recurrence kind")

type RecurrenceKind string

const (
	// RecurDaily expands on every configured working weekday.
	RecurDaily RecurrenceKind = "daily"
	// RecurWeekly expands on the explicit weekday set, intersected with
	// the configured working weekdays.
	RecurWeekly RecurrenceKind = "weekly"
)

func (k RecurrenceKind) IsValid() bool {
	return k == RecurDaily || k == RecurWeekly
}

// Recurrence describes on which weekdays a template produces instances.
// Days is meaningful for RecurWeekly only; an empty set simply expands
// to nothing.
type Recurrence struct {
	Kind RecurrenceKind
	Days []time.Weekday
}

// Matches reports whether the pattern fires on the given weekday.
func (r Recurrence) Matches(d time.Weekday) bool {
	switch r.Kind {
	case RecurDaily:
		return true
	case RecurWeekly:
		for _, wd := range r.Days {
			if wd == d {
				return true
			}
		}
	}
	return false
}

func (r Recurrence) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurrence, r.Kind)
	}
	for _, d := range r.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("model: recurrence weekday out of range: %d", d)
		}
	}
	return nil
}

// InstanceKey identifies one materialized occurrence of a template.
// The pair is unique: expansion never creates a second row for it.
type InstanceKey struct {
	TemplateID string
	Date       Date
}

// RecurringTemplate generates dated task instances on a weekday schedule.
// Templates never carry due dates or dependencies; every instance is due
// at the end of its own calendar date.
type RecurringTemplate struct {
	ID          string
	Content     string
	DurationMin int
	Recurrence  Recurrence

	// Optional preferred time-of-day window, inherited by instances.
	WindowStart *TimeOfDay
	WindowEnd   *TimeOfDay

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t RecurringTemplate) Duration() time.Duration {
	return time.Duration(t.DurationMin) * time.Minute
}

func (t RecurringTemplate) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: template id is required")
	}
	if strings.TrimSpace(t.Content) == "" {
		return errors.New("model: template content is required")
	}
	if t.DurationMin <= 0 {
		return fmt.Errorf("model: template %s: duration must be positive, got %d", t.ID, t.DurationMin)
	}
	if err := t.Recurrence.Validate(); err != nil {
		return fmt.Errorf("model: template %s: %w", t.ID, err)
	}
	if (t.WindowStart == nil) != (t.WindowEnd == nil) {
		return fmt.Errorf("model: template %s: window start and end must be set together", t.ID)
	}
	return nil
}
