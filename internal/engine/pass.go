package engine

import (
	"fmt"
	"time"

	"timeblock/internal/model"
	"timeblock/pkg/logx"
)

// Run executes one scheduling pass. It always returns the complete
// outcome (placements plus per-task failures); an error means the
// configuration could never place anything, and nothing was attempted.
func Run(req Request, log logx.Logger) (*Result, error) {
	if err := req.Hours.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if err := req.Window.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	loc := req.Hours.Loc()
	res := &Result{}

	// Drop malformed rows up front; they are data defects, not
	// scheduling outcomes.
	tpls := req.Templates[:0:0]
	for _, tpl := range req.Templates {
		if err := tpl.Validate(); err != nil {
			log.Warn("skipping invalid template", logx.String("template", tpl.ID), logx.Err(err))
			continue
		}
		tpls = append(tpls, tpl)
	}
	req.Templates = tpls

	// Expansion first: fresh instances join the work list exactly like
	// persisted tasks.
	expanded := expand(req)
	for _, inst := range expanded {
		res.Instances = append(res.Instances, Instance{
			TemplateID:   inst.tpl.ID,
			InstanceDate: inst.date,
			TaskID:       inst.taskID,
			Task:         inst.materialize(loc),
		})
	}

	// Intake: split tasks into placement candidates and busy-time
	// contributors. assignedEnd carries the dependency lower bounds.
	items := make(map[string]*workItem)
	list := make([]*workItem, 0, len(req.Tasks)+len(expanded))
	assignedEnd := make(map[string]time.Time)

	for _, t := range req.Tasks {
		switch {
		case t.Status == model.StatusCompleted:
			continue
		case t.Status == model.StatusScheduled:
			if t.End != nil {
				assignedEnd[t.ID] = *t.End
			}
		default:
			if err := t.Validate(); err != nil {
				log.Warn("skipping invalid task", logx.String("task", t.ID), logx.Err(err))
				continue
			}
			it := &workItem{unit: taskUnit{t: t}, state: statePending}
			items[t.ID] = it
			list = append(list, it)
		}
	}
	for _, inst := range expanded {
		it := &workItem{unit: inst, state: statePending}
		items[inst.taskID] = it
		list = append(list, it)
	}

	g := buildDepGraph(items)
	depths := g.depths()
	for _, it := range list {
		it.due, it.hasDue = it.unit.dueBy(loc)
		it.depth = depths[it.unit.id()]
	}

	// Structural failures before any placement attempt: dependency
	// cycles and inverted time-of-day windows.
	for id := range g.cyclic() {
		items[id].fail(stateInvalid, ReasonCyclicDependency)
	}
	for _, it := range list {
		if it.terminal() {
			continue
		}
		if lo, hi := it.unit.window(); lo != nil && hi != nil && !lo.Before(*hi) {
			it.fail(stateUnschedulable, ReasonOutsideWorkWindow)
		}
	}

	orderItems(list)
	avail := newAvailability(req.Hours, req.Window, req.Events, req.Tasks)

	// Greedy loop: take the highest-priority ready item, attempt it,
	// rescan. Every placement can unblock a dependent ahead of items
	// not yet considered, so the scan restarts from the head each time.
	for {
		it := nextReady(list, items, assignedEnd)
		if it == nil {
			break
		}
		it.state = stateReady

		earliest := req.Window.Start
		for _, dep := range it.unit.deps() {
			if end, ok := assignedEnd[dep]; ok && end.After(earliest) {
				earliest = end
			}
		}
		latest := req.Window.End
		if it.hasDue && it.due.Before(latest) {
			latest = it.due
		}

		winLo, winHi := it.unit.window()
		start, outcome := avail.findSlot(it.unit.duration(), earliest, latest, winLo, winHi)
		switch outcome {
		case slotFound:
			end := start.Add(it.unit.duration())
			avail.commit(start, end)
			assignedEnd[it.unit.id()] = end
			it.state = statePlaced
			res.Assignments = append(res.Assignments, Assignment{TaskID: it.unit.id(), Start: start, End: end})
			log.Debug("placed",
				logx.String("task", it.unit.id()),
				logx.Time("start", start),
				logx.Time("end", end))
		case slotNoWindow:
			it.fail(stateUnschedulable, ReasonOutsideWorkWindow)
		default:
			it.fail(stateUnschedulable, ReasonNoCapacity)
		}
	}

	// Whatever is still pending waits on a dependency that failed.
	for _, it := range list {
		if !it.terminal() {
			it.fail(stateInvalid, ReasonBlockedDependency)
		}
	}

	for _, it := range list {
		if it.state == stateUnschedulable || it.state == stateInvalid {
			res.Failures = append(res.Failures, Failure{TaskID: it.unit.id(), Reason: it.reason})
			log.Debug("not placed",
				logx.String("task", it.unit.id()),
				logx.String("reason", string(it.reason)))
		}
	}
	return res, nil
}

// nextReady returns the first item in priority order whose dependencies
// are all satisfied. Items whose dependencies can still be placed later
// stay pending; items behind a failed dependency are never returned.
func nextReady(list []*workItem, items map[string]*workItem, assignedEnd map[string]time.Time) *workItem {
	for _, it := range list {
		if it.terminal() || it.state == stateReady {
			continue
		}
		if isReady(it, items, assignedEnd) {
			return it
		}
	}
	return nil
}

func isReady(it *workItem, items map[string]*workItem, assignedEnd map[string]time.Time) bool {
	for _, dep := range it.unit.deps() {
		if _, done := assignedEnd[dep]; done {
			continue
		}
		if _, loaded := items[dep]; !loaded {
			// completed or deleted; nothing to wait for
			continue
		}
		return false
	}
	return true
}
