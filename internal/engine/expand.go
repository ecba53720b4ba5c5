package engine

import (
	"github.com/google/uuid"

	"timeblock/internal/model"
)

// instanceID derives a stable task id for a (template, date) occurrence.
// Re-running expansion can never mint a second id for the same pair.
func instanceID(templateID string, date model.Date) string {
	name := "timeblock://instance/" + templateID + "/" + date.String()
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// expand walks every calendar date the window touches and yields one
// occurrence per (active template, matching workday) pair that is not
// already materialized. Dates ascend, so the output order is stable.
func expand(req Request) []instanceUnit {
	seen := make(map[model.InstanceKey]bool, len(req.Materialized))
	for _, k := range req.Materialized {
		seen[k] = true
	}
	for _, t := range req.Tasks {
		if t.IsInstance() && t.InstanceDate != nil {
			seen[model.InstanceKey{TemplateID: t.TemplateID, Date: *t.InstanceDate}] = true
		}
	}

	loc := req.Hours.Loc()
	var out []instanceUnit
	first := model.DateOf(req.Window.Start.In(loc))
	for d := first; d.StartOfDay(loc).Before(req.Window.End); d = d.AddDays(1) {
		wd := d.Weekday()
		if !req.Hours.IsWorkday(wd) {
			continue
		}
		for _, tpl := range req.Templates {
			if !tpl.Active || !tpl.Recurrence.Matches(wd) {
				continue
			}
			key := model.InstanceKey{TemplateID: tpl.ID, Date: d}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, instanceUnit{taskID: instanceID(tpl.ID, d), tpl: tpl, date: d})
		}
	}
	return out
}
