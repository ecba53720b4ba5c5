package config

import (
	"fmt"
	"strings"
	"time"

	"timeblock/internal/model"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	WorkHours WorkHoursConfig `json:"work_hours"`
	Calendar  CalendarConfig  `json:"calendar,omitempty"`
	Planner   PlannerConfig   `json:"planner"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/timeblock.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // default: "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// WorkHoursConfig bounds placements to [start_hour, end_hour) local time on
// the listed weekdays (0=Sunday .. 6=Saturday).
//
// An omitted section defaults to 15:00-23:00 UTC on Monday through Friday.
type WorkHoursConfig struct {
	StartHour *int   `json:"start_hour,omitempty"`
	EndHour   *int   `json:"end_hour,omitempty"`
	Weekdays  []int  `json:"weekdays,omitempty"`
	Timezone  string `json:"timezone,omitempty"` // IANA name, default "UTC"
}

// CalendarConfig controls the calendar export import.
//
// Dir is scanned for *.json exports; with watch enabled the directory is
// followed with fsnotify and re-imported on changes.
type CalendarConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir,omitempty"`
	Watch    bool   `json:"watch,omitempty"`
	Category string `json:"category,omitempty"` // default: "timeblock"
	// Debounce is a Go duration string; changes within it coalesce into
	// one re-import.
	Debounce string `json:"debounce,omitempty"`
	// ResyncPerMin caps watcher-triggered imports per minute.
	ResyncPerMin int `json:"resync_per_min,omitempty"`
}

// PlannerConfig controls the scheduling pass runner.
//
// Schedule accepts a 5/6-field cron expression, "@every <duration>", a bare
// Go duration, or "HH:MM" as an interval ("01:30" runs every 90 minutes).
type PlannerConfig struct {
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule,omitempty"`     // default: "@every 15m"
	HorizonDays int    `json:"horizon_days,omitempty"` // default: 7
}

const (
	defaultWorkStartHour = 15
	defaultWorkEndHour   = 23

	DefaultCategory    = "timeblock"
	DefaultSchedule    = "@every 15m"
	DefaultHorizonDays = 7
)

// ResolveWorkHours applies section defaults and returns the validated
// domain value.
func (w WorkHoursConfig) ResolveWorkHours() (model.WorkHours, error) {
	out := model.WorkHours{
		StartHour: defaultWorkStartHour,
		EndHour:   defaultWorkEndHour,
		Location:  time.UTC,
	}
	if w.StartHour != nil {
		out.StartHour = *w.StartHour
	}
	if w.EndHour != nil {
		out.EndHour = *w.EndHour
	}
	if len(w.Weekdays) == 0 {
		out.Weekdays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	} else {
		for _, d := range w.Weekdays {
			out.Weekdays = append(out.Weekdays, time.Weekday(d))
		}
	}
	if tz := strings.TrimSpace(w.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return model.WorkHours{}, fmt.Errorf("work_hours.timezone: %w", err)
		}
		out.Location = loc
	}
	if err := out.Validate(); err != nil {
		return model.WorkHours{}, err
	}
	return out, nil
}

// CategoryOrDefault returns the engine-managed event marker, defaulted.
func (c CalendarConfig) CategoryOrDefault() string {
	if s := strings.TrimSpace(c.Category); s != "" {
		return s
	}
	return DefaultCategory
}

// ScheduleOrDefault returns the pass trigger spec, defaulted.
func (p PlannerConfig) ScheduleOrDefault() string {
	if s := strings.TrimSpace(p.Schedule); s != "" {
		return s
	}
	return DefaultSchedule
}

// Horizon returns the expansion horizon in days, defaulted.
func (p PlannerConfig) Horizon() int {
	if p.HorizonDays > 0 {
		return p.HorizonDays
	}
	return DefaultHorizonDays
}

// Validate checks everything decidable without external packages: work
// hours, durations, the storage section. The planner schedule spec is
// validated by the caller that owns the parser.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: empty")
	}
	if _, err := c.WorkHours.ResolveWorkHours(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	switch strings.TrimSpace(strings.ToLower(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("calendar.debounce", c.Calendar.Debounce); err != nil {
		return err
	}
	if c.Calendar.Enabled && strings.TrimSpace(c.Calendar.Dir) == "" {
		return fmt.Errorf("calendar.dir is required when calendar.enabled")
	}
	if c.Calendar.ResyncPerMin < 0 {
		return fmt.Errorf("calendar.resync_per_min must be >= 0")
	}
	if c.Planner.HorizonDays < 0 {
		return fmt.Errorf("planner.horizon_days must be >= 0")
	}
	return nil
}
