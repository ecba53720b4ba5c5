package engine

import (
	"sort"
	"time"

	"timeblock/internal/model"
)

// block is one half-open busy interval.
type block struct {
	start time.Time
	end   time.Time
}

// availability is the merged busy timeline a pass allocates against.
// Not safe for concurrent use; a pass is single-threaded by design,
// since every commit changes what later queries must see.
type availability struct {
	hours  model.WorkHours
	window model.ScheduleWindow
	busy   []block // sorted by start, pairwise disjoint
}

// newAvailability folds calendar events and already-scheduled task blocks
// into one merged timeline. Rescheduled tasks contribute nothing; their
// stale block is released the moment the status flips.
func newAvailability(hours model.WorkHours, window model.ScheduleWindow, events []model.CalendarEvent, tasks []model.Task) *availability {
	raw := make([]block, 0, len(events)+len(tasks))
	for _, ev := range events {
		if ev.End.After(ev.Start) {
			raw = append(raw, block{start: ev.Start, end: ev.End})
		}
	}
	for _, t := range tasks {
		if t.Status == model.StatusScheduled && t.Start != nil && t.End != nil && t.End.After(*t.Start) {
			raw = append(raw, block{start: *t.Start, end: *t.End})
		}
	}
	return &availability{hours: hours, window: window, busy: mergeBlocks(raw)}
}

// mergeBlocks sorts and coalesces overlapping or touching intervals.
func mergeBlocks(raw []block) []block {
	if len(raw) == 0 {
		return nil
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].start.Before(raw[j].start) })
	out := make([]block, 0, len(raw))
	cur := raw[0]
	for _, b := range raw[1:] {
		if !b.start.After(cur.end) {
			if b.end.After(cur.end) {
				cur.end = b.end
			}
			continue
		}
		out = append(out, cur)
		cur = b
	}
	return append(out, cur)
}

// commit records a placed block so later queries in the same pass see it.
func (a *availability) commit(start, end time.Time) {
	a.busy = mergeBlocks(append(a.busy, block{start: start, end: end}))
}

type slotOutcome uint8

const (
	slotFound slotOutcome = iota
	slotNoCapacity
	slotNoWindow
)

// findSlot returns the earliest start of a free block of length d with
// start >= earliest and start+d <= latest, on a working weekday, inside
// work hours intersected with the optional narrower time-of-day window.
// slotNoWindow means the day geometry can never hold the duration
// regardless of busy time; slotNoCapacity means it could, but no gap is
// free in range.
func (a *availability) findSlot(d time.Duration, earliest, latest time.Time, winLo, winHi *model.TimeOfDay) (time.Time, slotOutcome) {
	if d <= 0 {
		return time.Time{}, slotNoCapacity
	}
	if !a.fitsDayGeometry(d, winLo, winHi) {
		return time.Time{}, slotNoWindow
	}

	from := earliest
	if from.Before(a.window.Start) {
		from = a.window.Start
	}
	if latest.After(a.window.End) {
		latest = a.window.End
	}

	loc := a.hours.Loc()
	for day := model.DateOf(from.In(loc)); day.StartOfDay(loc).Before(latest); day = day.AddDays(1) {
		if !a.hours.IsWorkday(day.Weekday()) {
			continue
		}
		lo := a.hours.DayStart(day)
		hi := a.hours.DayEnd(day)
		if winLo != nil {
			if s := winLo.On(day, loc); s.After(lo) {
				lo = s
			}
		}
		if winHi != nil {
			if e := winHi.On(day, loc); e.Before(hi) {
				hi = e
			}
		}
		if lo.Before(from) {
			lo = from
		}
		if hi.After(latest) {
			hi = latest
		}
		if hi.Sub(lo) < d {
			continue
		}
		if start, ok := a.scanDay(d, lo, hi); ok {
			return start, slotFound
		}
	}
	return time.Time{}, slotNoCapacity
}

// scanDay walks the busy blocks overlapping [lo, hi) and returns the
// first gap of length d. Touching a busy block is not a conflict; the
// intervals are half-open.
func (a *availability) scanDay(d time.Duration, lo, hi time.Time) (time.Time, bool) {
	cursor := lo
	for _, b := range a.busy {
		if !b.end.After(cursor) {
			continue
		}
		if !b.start.Before(hi) {
			break
		}
		if b.start.Sub(cursor) >= d {
			return cursor, true
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
		if hi.Sub(cursor) < d {
			return time.Time{}, false
		}
	}
	if hi.Sub(cursor) >= d {
		return cursor, true
	}
	return time.Time{}, false
}

// fitsDayGeometry reports whether an entirely free working day could hold
// the duration inside work hours intersected with the unit's window.
func (a *availability) fitsDayGeometry(d time.Duration, winLo, winHi *model.TimeOfDay) bool {
	if len(a.hours.Weekdays) == 0 {
		return false
	}
	loMin := a.hours.StartHour * 60
	hiMin := a.hours.EndHour * 60
	if winLo != nil && winLo.MinuteOfDay() > loMin {
		loMin = winLo.MinuteOfDay()
	}
	if winHi != nil && winHi.MinuteOfDay() < hiMin {
		hiMin = winHi.MinuteOfDay()
	}
	if hiMin <= loMin {
		return false
	}
	return time.Duration(hiMin-loMin)*time.Minute >= d
}
