package model

import (
	"errors"
	"fmt"
	"time"
)

// WorkHours bounds every placement: [StartHour, EndHour) local wall-clock
// hours on the listed weekdays, interpreted in Location.
type WorkHours struct {
	StartHour int
	EndHour   int
	Weekdays  []time.Weekday
	Location  *time.Location
}

func (w WorkHours) IsWorkday(d time.Weekday) bool {
	for _, wd := range w.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

// DayStart returns the first workable instant on the given date.
func (w WorkHours) DayStart(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, w.StartHour, 0, 0, 0, w.Loc())
}

// DayEnd returns the first instant past the workable range on the given date.
func (w WorkHours) DayEnd(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, w.EndHour, 0, 0, 0, w.Loc())
}

// Loc returns the configured location, never nil.
func (w WorkHours) Loc() *time.Location {
	if w.Location != nil {
		return w.Location
	}
	return time.UTC
}

// Validate rejects configurations under which no task could ever be
// placed. An empty weekday set is allowed; it yields empty passes.
func (w WorkHours) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return fmt.Errorf("model: work start hour out of range: %d", w.StartHour)
	}
	if w.EndHour < 1 || w.EndHour > 24 {
		return fmt.Errorf("model: work end hour out of range: %d", w.EndHour)
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("model: work hours inverted: start %d >= end %d", w.StartHour, w.EndHour)
	}
	for _, d := range w.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("model: work weekday out of range: %d", d)
		}
	}
	return nil
}

// ScheduleWindow is the half-open [Start, End) instant range one pass
// operates over. Placements never leave it.
type ScheduleWindow struct {
	Start time.Time
	End   time.Time
}

func (w ScheduleWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("model: schedule window is unset")
	}
	if !w.Start.Before(w.End) {
		return errors.New("model: schedule window start must precede end")
	}
	return nil
}

func (w ScheduleWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w ScheduleWindow) Duration() time.Duration { return w.End.Sub(w.Start) }
