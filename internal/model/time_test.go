package model

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "09:30", want: TimeOfDay{Hour: 9, Minute: 30}},
		{in: "9:05", want: TimeOfDay{Hour: 9, Minute: 5}},
		{in: "00:00", want: TimeOfDay{}},
		{in: "23:59", want: TimeOfDay{Hour: 23, Minute: 59}},
		{in: " 10:15 ", want: TimeOfDay{Hour: 10, Minute: 15}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "1230", wantErr: true},
		{in: "12:30:00", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTimeOfDay(%q) accepted, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTimeOfDayRoundTripAndOrder(t *testing.T) {
	v := TimeOfDay{Hour: 7, Minute: 5}
	if got := v.String(); got != "07:05" {
		t.Fatalf("String() = %q, want 07:05", got)
	}
	back, err := ParseTimeOfDay(v.String())
	if err != nil || back != v {
		t.Fatalf("round trip = %v (%v), want %v", back, err, v)
	}
	if !v.Before(TimeOfDay{Hour: 7, Minute: 6}) || v.Before(v) {
		t.Fatal("Before() ordering broken")
	}
	if got := v.MinuteOfDay(); got != 425 {
		t.Fatalf("MinuteOfDay() = %d, want 425", got)
	}
}

func TestTimeOfDayOn(t *testing.T) {
	d := Date{Year: 2026, Month: time.March, Day: 2}
	got := TimeOfDay{Hour: 13, Minute: 30}.On(d, time.UTC)
	want := time.Date(2026, time.March, 2, 13, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("On() = %v, want %v", got, want)
	}
	// nil location falls back to UTC.
	if got := (TimeOfDay{Hour: 1}).On(d, nil); got.Location() != time.UTC {
		t.Fatalf("On(nil loc) location = %v, want UTC", got.Location())
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if want := (Date{Year: 2026, Month: time.March, Day: 2}); got != want {
		t.Fatalf("ParseDate = %v, want %v", got, want)
	}
	for _, bad := range []string{"2026-3-2", "02.03.2026", "2026-13-01", "2026-02-30", ""} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("ParseDate(%q) accepted", bad)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2026, Month: time.February, Day: 27}
	if got := d.AddDays(2); got != (Date{Year: 2026, Month: time.March, Day: 1}) {
		t.Fatalf("AddDays(2) = %v, want month rollover", got)
	}
	if got := d.AddDays(-27); got != (Date{Year: 2026, Month: time.January, Day: 31}) {
		t.Fatalf("AddDays(-27) = %v", got)
	}
	if got := d.Weekday(); got != time.Friday {
		t.Fatalf("Weekday() = %v, want Friday", got)
	}
	if d.String() != "2026-02-27" {
		t.Fatalf("String() = %q", d.String())
	}
	if d.IsZero() || !(Date{}).IsZero() {
		t.Fatal("IsZero() broken")
	}
}

func TestDateCompare(t *testing.T) {
	a := Date{Year: 2026, Month: time.March, Day: 2}
	cases := []struct {
		b    Date
		want int
	}{
		{b: Date{Year: 2026, Month: time.March, Day: 2}, want: 0},
		{b: Date{Year: 2026, Month: time.March, Day: 3}, want: -1},
		{b: Date{Year: 2026, Month: time.February, Day: 28}, want: 1},
		{b: Date{Year: 2025, Month: time.December, Day: 31}, want: 1},
	}
	for _, tc := range cases {
		if got := a.Compare(tc.b); got != tc.want {
			t.Fatalf("Compare(%v, %v) = %d, want %d", a, tc.b, got, tc.want)
		}
	}
}

func TestDateDayBounds(t *testing.T) {
	d := Date{Year: 2026, Month: time.March, Day: 2}
	if got := d.StartOfDay(time.UTC); !got.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartOfDay = %v", got)
	}
	if got := d.EndOfDay(time.UTC); !got.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("EndOfDay = %v", got)
	}

	// The bounds track the location's wall clock.
	loc := time.FixedZone("UTC+2", 2*3600)
	start := d.StartOfDay(loc)
	if !start.Equal(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartOfDay in UTC+2 = %v", start)
	}
	if got := d.EndOfDay(loc).Sub(start); got != 24*time.Hour {
		t.Fatalf("day length = %v, want 24h", got)
	}
}

func TestDateOfUsesInstantLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 02:00 UTC on March 2nd is still March 1st at UTC-5.
	instant := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC).In(loc)
	if got := DateOf(instant); got != (Date{Year: 2026, Month: time.March, Day: 1}) {
		t.Fatalf("DateOf = %v, want 2026-03-01", got)
	}
}
