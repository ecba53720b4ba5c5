package config

import (
	"reflect"
	"sort"
	"strings"

	"timeblock/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// structured attrs describing the new values, for the reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.WorkHours, newCfg.WorkHours) {
		changed = append(changed, "work_hours")
		if hours, err := newCfg.WorkHours.ResolveWorkHours(); err == nil {
			attrs = append(attrs,
				logx.Int("work_hours.start", hours.StartHour),
				logx.Int("work_hours.end", hours.EndHour),
				logx.Int("work_hours.weekday_count", len(hours.Weekdays)),
				logx.String("work_hours.timezone", hours.Loc().String()),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.Bool("calendar.enabled", newCfg.Calendar.Enabled),
			logx.Bool("calendar.watch", newCfg.Calendar.Watch),
			logx.Bool("calendar.dir_set", strings.TrimSpace(newCfg.Calendar.Dir) != ""),
			logx.String("calendar.category", newCfg.Calendar.CategoryOrDefault()),
		)
	}

	if oldCfg.Planner != newCfg.Planner {
		changed = append(changed, "planner")
		attrs = append(attrs,
			logx.Bool("planner.enabled", newCfg.Planner.Enabled),
			logx.String("planner.schedule", newCfg.Planner.ScheduleOrDefault()),
			logx.Int("planner.horizon_days", newCfg.Planner.Horizon()),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
