package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"timeblock/internal/model"
	"timeblock/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "timeblock.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func at(h, m int) time.Time {
	return time.Date(2026, time.March, 2, h, m, 0, 0, time.UTC)
}

func timePtr(v time.Time) *time.Time { return &v }

func testTask(id string) model.Task {
	return model.Task{
		ID:          id,
		Content:     "task " + id,
		DurationMin: 30,
		Status:      model.StatusUnscheduled,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := testTask("a")
	task.DueBy = timePtr(at(18, 0))
	task.DependsOn = []string{"c", "b"}
	winLo := model.TimeOfDay{Hour: 16}
	winHi := model.TimeOfDay{Hour: 20}
	task.WindowStart = &winLo
	task.WindowEnd = &winHi

	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != task.Content || got.DurationMin != 30 || got.Status != model.StatusUnscheduled {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.DueBy == nil || !got.DueBy.Equal(at(18, 0)) {
		t.Fatalf("due-by did not survive: %v", got.DueBy)
	}
	if len(got.DependsOn) != 2 || got.DependsOn[0] != "c" || got.DependsOn[1] != "b" {
		t.Fatalf("dependency order not preserved: %v", got.DependsOn)
	}
	if got.WindowStart == nil || got.WindowStart.Hour != 16 || got.WindowEnd == nil || got.WindowEnd.Hour != 20 {
		t.Fatalf("window did not survive: %v %v", got.WindowStart, got.WindowEnd)
	}

	got.Content = "renamed"
	got.DependsOn = []string{"b"}
	if err := st.UpdateTask(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = st.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Content != "renamed" || len(got.DependsOn) != 1 || got.DependsOn[0] != "b" {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := st.DeleteTask(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetTask(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := st.UpdateTask(ctx, testTask("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := st.DeleteTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestCreateTaskConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateTask(ctx, testTask("dup")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateTask(ctx, testTask("dup")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCompleteTaskAndListOpen(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateTask(ctx, testTask("keep")); err != nil {
		t.Fatalf("create keep: %v", err)
	}
	if err := st.CreateTask(ctx, testTask("done")); err != nil {
		t.Fatalf("create done: %v", err)
	}
	if err := st.CompleteTask(ctx, "done", at(12, 0)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := st.CompleteTask(ctx, "missing", at(12, 0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	open, err := st.ListOpenTasks(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != "keep" {
		t.Fatalf("expected only the open task, got %+v", open)
	}
}

func TestCreateInstancesIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tpl := model.RecurringTemplate{
		ID:          "standup",
		Content:     "daily standup",
		DurationMin: 15,
		Recurrence:  model.Recurrence{Kind: model.RecurDaily},
		Active:      true,
	}
	if err := st.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	mkInstance := func(id string, d model.Date) model.Task {
		task := testTask(id)
		task.TemplateID = "standup"
		task.InstanceDate = &d
		task.DueBy = timePtr(d.EndOfDay(time.UTC))
		return task
	}
	d1 := model.Date{Year: 2026, Month: time.March, Day: 2}
	d2 := d1.AddDays(1)
	d3 := d1.AddDays(2)

	n, err := st.CreateInstances(ctx, []model.Task{mkInstance("i1", d1), mkInstance("i2", d2)})
	if err != nil {
		t.Fatalf("create instances: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 created, got %d", n)
	}

	// A second pass over the same dates inserts nothing, even under new IDs.
	n, err = st.CreateInstances(ctx, []model.Task{mkInstance("i1", d1), mkInstance("other-id", d2), mkInstance("i3", d3)})
	if err != nil {
		t.Fatalf("create instances again: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 created on rerun, got %d", n)
	}

	keys, err := st.ListInstanceKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 instance keys, got %v", keys)
	}
}

func TestApplyPlacementsAtomic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateTask(ctx, testTask("a")); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := st.ApplyPlacements(ctx, []Placement{
		{TaskID: "a", Start: at(15, 0), End: at(15, 30)},
		{TaskID: "missing", Start: at(16, 0), End: at(16, 30)},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := st.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusUnscheduled || got.Start != nil {
		t.Fatalf("placement leaked through a failed batch: %+v", got)
	}

	if err := st.ApplyPlacements(ctx, []Placement{{TaskID: "a", Start: at(15, 0), End: at(15, 30)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err = st.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("get after apply: %v", err)
	}
	if got.Status != model.StatusScheduled || got.Start == nil || !got.Start.Equal(at(15, 0)) || !got.End.Equal(at(15, 30)) {
		t.Fatalf("placement not applied: %+v", got)
	}
}

func TestClearSchedule(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scheduled := testTask("s")
	scheduled.Status = model.StatusScheduled
	scheduled.Start = timePtr(at(15, 0))
	scheduled.End = timePtr(at(15, 30))

	rescheduled := testTask("r")
	rescheduled.Status = model.StatusRescheduled
	rescheduled.Start = timePtr(at(16, 0))
	rescheduled.End = timePtr(at(16, 30))

	completed := testTask("c")
	completed.Status = model.StatusCompleted

	for _, task := range []model.Task{scheduled, rescheduled, completed, testTask("u")} {
		if err := st.CreateTask(ctx, task); err != nil {
			t.Fatalf("create %s: %v", task.ID, err)
		}
	}

	n, err := st.ClearSchedule(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cleared rows, got %d", n)
	}
	for _, id := range []string{"s", "r", "u"} {
		got, err := st.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Status != model.StatusUnscheduled || got.Start != nil || got.End != nil {
			t.Fatalf("task %s not reset: %+v", id, got)
		}
	}
	got, err := st.GetTask(ctx, "c")
	if err != nil {
		t.Fatalf("get c: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("clear must not touch completed tasks: %+v", got)
	}
}

func TestTemplateRoundTripAndCascade(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tpl := model.RecurringTemplate{
		ID:          "review",
		Content:     "weekly review",
		DurationMin: 60,
		Recurrence:  model.Recurrence{Kind: model.RecurWeekly, Days: []time.Weekday{time.Friday}},
		Active:      true,
	}
	if err := st.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetTemplate(ctx, "review")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Recurrence.Kind != model.RecurWeekly || len(got.Recurrence.Days) != 1 || got.Recurrence.Days[0] != time.Friday {
		t.Fatalf("recurrence did not survive: %+v", got.Recurrence)
	}
	if _, err := st.GetTemplate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got.Active = false
	got.Recurrence.Days = []time.Weekday{time.Monday, time.Thursday}
	if err := st.UpdateTemplate(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, err := st.ListTemplates(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated template still listed: %+v", active)
	}
	all, err := st.ListTemplates(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 || len(all[0].Recurrence.Days) != 2 {
		t.Fatalf("unexpected template list: %+v", all)
	}

	d := model.Date{Year: 2026, Month: time.March, Day: 5}
	instance := testTask("inst")
	instance.TemplateID = "review"
	instance.InstanceDate = &d
	if _, err := st.CreateInstances(ctx, []model.Task{instance}); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	if err := st.DeleteTemplate(ctx, "review"); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if _, err := st.GetTask(ctx, "inst"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected instance to cascade away, got %v", err)
	}
}

func TestEventsOverlapAndSync(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mkEvent := func(id string, start, end time.Time) model.CalendarEvent {
		return model.CalendarEvent{ID: id, Subject: id, Start: start, End: end, SourceFile: "cal.json"}
	}
	for _, e := range []model.CalendarEvent{
		mkEvent("before", at(9, 0), at(10, 0)),
		mkEvent("inside", at(10, 30), at(10, 45)),
		mkEvent("after", at(11, 0), at(12, 0)),
	} {
		if err := st.UpsertEvent(ctx, e); err != nil {
			t.Fatalf("upsert %s: %v", e.ID, err)
		}
	}

	// Half-open semantics: blocks that merely touch the window do not overlap it.
	got, err := st.ListEventsOverlapping(ctx, at(10, 0), at(11, 0))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inside" {
		t.Fatalf("expected only the inside event, got %+v", got)
	}

	update := mkEvent("inside", at(10, 30), at(10, 45))
	update.Subject = "renamed"
	update.EngineManaged = true
	update.Categories = []string{"timeblock"}
	if err := st.UpsertEvent(ctx, update); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	got, err = st.ListEventsOverlapping(ctx, at(10, 0), at(11, 0))
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "renamed" || !got[0].EngineManaged || len(got[0].Categories) != 1 {
		t.Fatalf("upsert did not replace the row: %+v", got)
	}

	n, err := st.DeleteEventsNotIn(ctx, []string{"inside"})
	if err != nil {
		t.Fatalf("delete not in: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stale events removed, got %d", n)
	}
	n, err = st.DeleteEventsNotIn(ctx, nil)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining event removed, got %d", n)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
