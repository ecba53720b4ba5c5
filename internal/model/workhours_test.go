package model

import (
	"testing"
	"time"
)

func TestWorkHoursValidate(t *testing.T) {
	base := WorkHours{StartHour: 9, EndHour: 17, Weekdays: []time.Weekday{time.Monday}}
	cases := []struct {
		name    string
		mut     func(*WorkHours)
		wantErr bool
	}{
		{name: "ok", mut: func(*WorkHours) {}},
		{name: "full day ok", mut: func(w *WorkHours) { w.StartHour, w.EndHour = 0, 24 }},
		{name: "no weekdays ok", mut: func(w *WorkHours) { w.Weekdays = nil }},
		{name: "negative start", mut: func(w *WorkHours) { w.StartHour = -1 }, wantErr: true},
		{name: "start too late", mut: func(w *WorkHours) { w.StartHour = 24 }, wantErr: true},
		{name: "end too large", mut: func(w *WorkHours) { w.EndHour = 25 }, wantErr: true},
		{name: "zero end", mut: func(w *WorkHours) { w.EndHour = 0 }, wantErr: true},
		{name: "inverted", mut: func(w *WorkHours) { w.StartHour, w.EndHour = 17, 9 }, wantErr: true},
		{name: "equal", mut: func(w *WorkHours) { w.StartHour, w.EndHour = 9, 9 }, wantErr: true},
		{name: "bad weekday", mut: func(w *WorkHours) { w.Weekdays = []time.Weekday{9} }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := base
			tc.mut(&w)
			err := w.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate() accepted %+v", w)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate() = %v", err)
			}
		})
	}
}

func TestWorkHoursDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	w := WorkHours{StartHour: 9, EndHour: 17, Weekdays: []time.Weekday{time.Monday}, Location: loc}
	d := Date{Year: 2026, Month: time.March, Day: 2}

	if got := w.DayStart(d); !got.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, loc)) {
		t.Fatalf("DayStart = %v", got)
	}
	if got := w.DayEnd(d); !got.Equal(time.Date(2026, 3, 2, 17, 0, 0, 0, loc)) {
		t.Fatalf("DayEnd = %v", got)
	}
	if !w.IsWorkday(time.Monday) || w.IsWorkday(time.Sunday) {
		t.Fatal("IsWorkday broken")
	}
	if (WorkHours{}).Loc() != time.UTC {
		t.Fatal("Loc() must default to UTC")
	}
}

func TestScheduleWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)
	w := ScheduleWindow{Start: start, End: end}

	if err := w.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := (ScheduleWindow{Start: start}).Validate(); err == nil {
		t.Fatal("Validate() accepted an unset end")
	}
	if err := (ScheduleWindow{Start: end, End: start}).Validate(); err == nil {
		t.Fatal("Validate() accepted an inverted window")
	}
	if err := (ScheduleWindow{Start: start, End: start}).Validate(); err == nil {
		t.Fatal("Validate() accepted an empty window")
	}

	if !w.Contains(start) {
		t.Fatal("window must contain its start")
	}
	if w.Contains(end) {
		t.Fatal("window must not contain its end")
	}
	if !w.Contains(start.Add(time.Hour)) || w.Contains(start.Add(-time.Second)) {
		t.Fatal("Contains() broken")
	}
	if got := w.Duration(); got != 7*24*time.Hour {
		t.Fatalf("Duration() = %v", got)
	}
}
