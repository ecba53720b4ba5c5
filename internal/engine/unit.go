package engine

import (
	"time"

	"timeblock/internal/model"
)

// unit is the common shape of everything a pass can place: persisted
// one-off task rows and instances expanded from templates this pass.
// The two variants differ in where their due-by, window and dependency
// data come from, not in how they are placed.
type unit interface {
	id() string
	duration() time.Duration
	// dueBy returns the effective deadline and whether one exists.
	dueBy(loc *time.Location) (time.Time, bool)
	// window returns the optional time-of-day bounds.
	window() (lo, hi *model.TimeOfDay)
	// deps returns dependency task ids; always empty for instances.
	deps() []string
}

// taskUnit wraps a persisted task row.
type taskUnit struct{ t model.Task }

func (u taskUnit) id() string              { return u.t.ID }
func (u taskUnit) duration() time.Duration { return u.t.Duration() }

func (u taskUnit) dueBy(loc *time.Location) (time.Time, bool) {
	if u.t.DueBy != nil {
		return *u.t.DueBy, true
	}
	if u.t.IsInstance() {
		// An instance is due by the end of its own date even when the
		// row was persisted without an explicit due-by.
		return u.t.InstanceDate.EndOfDay(loc), true
	}
	return time.Time{}, false
}

func (u taskUnit) window() (*model.TimeOfDay, *model.TimeOfDay) {
	return u.t.WindowStart, u.t.WindowEnd
}

func (u taskUnit) deps() []string {
	if u.t.IsInstance() {
		return nil
	}
	return u.t.DependsOn
}

// instanceUnit is a not-yet-persisted occurrence expanded this pass.
type instanceUnit struct {
	taskID string
	tpl    model.RecurringTemplate
	date   model.Date
}

func (u instanceUnit) id() string              { return u.taskID }
func (u instanceUnit) duration() time.Duration { return u.tpl.Duration() }

func (u instanceUnit) dueBy(loc *time.Location) (time.Time, bool) {
	return u.date.EndOfDay(loc), true
}

func (u instanceUnit) window() (*model.TimeOfDay, *model.TimeOfDay) {
	return u.tpl.WindowStart, u.tpl.WindowEnd
}

func (u instanceUnit) deps() []string { return nil }

// materialize builds the persistable task row for this occurrence.
func (u instanceUnit) materialize(loc *time.Location) model.Task {
	due := u.date.EndOfDay(loc)
	d := u.date
	return model.Task{
		ID:           u.taskID,
		Content:      u.tpl.Content,
		DurationMin:  u.tpl.DurationMin,
		DueBy:        &due,
		Status:       model.StatusUnscheduled,
		TemplateID:   u.tpl.ID,
		InstanceDate: &d,
		WindowStart:  u.tpl.WindowStart,
		WindowEnd:    u.tpl.WindowEnd,
	}
}
