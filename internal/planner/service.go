// Package planner runs scheduling passes: it snapshots the store, hands
// the scope to the engine, and persists what the engine decided.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"timeblock/internal/engine"
	"timeblock/internal/model"
	"timeblock/internal/storage"
	"timeblock/pkg/logx"
)

const defaultHorizonDays = 7

func New(cfg Config, store Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		store: store,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

// Start begins cron triggering. A disabled service starts nothing; RunOnce
// remains callable either way.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("planner disabled; passes run on demand only")
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	spec, err := cronSpec(s.cfg.Schedule)
	if err != nil {
		return err
	}
	loc := s.cfg.Hours.Loc()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	entry, err := c.AddFunc(spec, func() { s.trigger(ctx) })
	if err != nil {
		return fmt.Errorf("planner: register schedule %q: %w", spec, err)
	}
	s.c = c
	s.entry = entry
	c.Start()
	s.log.Info("planner started",
		logx.String("schedule", spec),
		logx.String("tz", loc.String()),
		logx.Int("horizon_days", s.horizonLocked()),
	)
	return nil
}

// Stop halts triggering. A pass already in flight finishes on its own.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("planner stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps the config. A running trigger schedule is rebuilt when the
// schedule, enablement, or work hours changed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg

	sameTrigger := old.Enabled == cfg.Enabled &&
		strings.TrimSpace(old.Schedule) == strings.TrimSpace(cfg.Schedule) &&
		old.Hours.Loc().String() == cfg.Hours.Loc().String()
	if sameTrigger || (s.c == nil && !cfg.Enabled) {
		return
	}

	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if !cfg.Enabled {
		s.log.Info("planner disabled by config reload")
		return
	}
	if err := s.startLocked(ctx); err != nil {
		s.log.Error("planner restart failed", logx.Any("err", err))
	}
}

// trigger is the cron callback: one pass, skipped when one is in flight.
func (s *Service) trigger(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrPassInFlight) {
			s.log.Debug("pass trigger skipped; previous pass still running")
			return
		}
		s.log.Warn("pass failed", logx.Any("err", err))
	}
}

// RunOnce runs one scheduling pass: snapshot the scope, run the engine,
// persist new instances, then persist placements. Returns ErrPassInFlight
// if another pass is running.
func (s *Service) RunOnce(ctx context.Context) (RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		return RunSummary{}, ErrPassInFlight
	}
	defer s.running.Store(false)

	s.mu.Lock()
	cfg := s.cfg
	horizon := s.horizonLocked()
	s.mu.Unlock()

	started := s.now()
	loc := cfg.Hours.Loc()
	now := started.In(loc)
	window := model.ScheduleWindow{
		Start: now,
		End:   model.DateOf(now).AddDays(horizon).StartOfDay(loc),
	}

	sum, err := s.runPass(ctx, cfg, window)
	sum.Took = time.Since(started)

	s.mu.Lock()
	s.runs++
	s.lastRun = started
	s.last = sum
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		return sum, err
	}
	s.log.Info("pass complete",
		logx.Time("window_start", window.Start),
		logx.Time("window_end", window.End),
		logx.Int("tasks", sum.TasksLoaded),
		logx.Int64("instances_new", sum.InstancesNew),
		logx.Int("placed", sum.Placed),
		logx.Int("failed", sum.Failed),
		logx.Duration("took", sum.Took),
	)
	return sum, nil
}

func (s *Service) runPass(ctx context.Context, cfg Config, window model.ScheduleWindow) (RunSummary, error) {
	sum := RunSummary{Window: window}

	tasks, err := s.store.ListOpenTasks(ctx)
	if err != nil {
		return sum, fmt.Errorf("planner: load tasks: %w", err)
	}
	templates, err := s.store.ListTemplates(ctx, true)
	if err != nil {
		return sum, fmt.Errorf("planner: load templates: %w", err)
	}
	keys, err := s.store.ListInstanceKeys(ctx)
	if err != nil {
		return sum, fmt.Errorf("planner: load instance keys: %w", err)
	}
	events, err := s.store.ListEventsOverlapping(ctx, window.Start, window.End)
	if err != nil {
		return sum, fmt.Errorf("planner: load events: %w", err)
	}
	sum.TasksLoaded = len(tasks)
	sum.TemplatesIn = len(templates)

	res, err := engine.Run(engine.Request{
		Window:       window,
		Hours:        cfg.Hours,
		Tasks:        tasks,
		Templates:    templates,
		Events:       events,
		Materialized: keys,
	}, s.log)
	if err != nil {
		return sum, fmt.Errorf("planner: pass: %w", err)
	}

	// Instances first: placements may belong to rows created right here.
	if len(res.Instances) > 0 {
		rows := make([]model.Task, 0, len(res.Instances))
		for _, in := range res.Instances {
			rows = append(rows, in.Task)
		}
		n, err := s.store.CreateInstances(ctx, rows)
		if err != nil {
			return sum, fmt.Errorf("planner: persist instances: %w", err)
		}
		sum.InstancesNew = n
	}

	if len(res.Assignments) > 0 {
		ps := make([]storage.Placement, 0, len(res.Assignments))
		for _, a := range res.Assignments {
			ps = append(ps, storage.Placement{TaskID: a.TaskID, Start: a.Start, End: a.End})
		}
		if err := s.store.ApplyPlacements(ctx, ps); err != nil {
			return sum, fmt.Errorf("planner: persist placements: %w", err)
		}
	}
	sum.Placed = res.Placed()
	sum.Failed = res.Failed()
	if len(res.Failures) > 0 {
		sum.Failures = make(map[engine.ReasonCode]int, 4)
		for _, f := range res.Failures {
			sum.Failures[f.Reason]++
		}
	}
	return sum, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Schedule: s.cfg.Schedule,
		Running:  s.running.Load(),
		Runs:     s.runs,
		Skipped:  s.skipped,
		LastRun:  s.lastRun,
		LastErr:  s.lastErr,
		Last:     s.last,
	}
	if s.c != nil {
		snap.Next = s.c.Entry(s.entry).Next
	}
	return snap
}

func (s *Service) horizonLocked() int {
	if s.cfg.HorizonDays > 0 {
		return s.cfg.HorizonDays
	}
	return defaultHorizonDays
}

// cronSpec normalizes a schedule string to a robfig/cron registration spec.
func cronSpec(raw string) (string, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return "", err
	}
	if ps.Kind == SpecInterval {
		return fmt.Sprintf("@every %s", ps.Every), nil
	}
	return ps.Cron, nil
}
