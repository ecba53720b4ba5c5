package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"timeblock/internal/calendar"
	"timeblock/internal/config"
	"timeblock/internal/planner"
	"timeblock/internal/runtime/supervisor"
	"timeblock/internal/storage"
	"timeblock/pkg/logx"
)

func main() {
	var (
		cfgPath       string
		runOnce       bool
		syncOnce      bool
		clearSchedule bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json")
	flag.BoolVar(&runOnce, "once", false, "run one scheduling pass and exit")
	flag.BoolVar(&syncOnce, "sync", false, "import calendar exports once and exit")
	flag.BoolVar(&clearSchedule, "clear-schedule", false, "reset every scheduled task to unscheduled and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	switch {
	case clearSchedule:
		err = a.clearSchedule(ctx)
	case syncOnce:
		err = a.syncOnce(ctx)
	case runOnce:
		err = a.passOnce(ctx)
	default:
		err = a.runDaemon(ctx)
	}
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

// app wires the daemon: config manager, logging, store, planner, and the
// optional calendar importer.
type app struct {
	cfgm *config.Manager
	cfg  *config.Config

	logs *logx.Service
	log  logx.Logger

	store storage.Store
	plan  *planner.Service
	imp   *calendar.Importer
}

func newApp(cfgPath string) (*app, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)

	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Load() only parses; hold the boot config to the same checks a hot
	// reload has to pass.
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "timeblockd"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	pc, err := mapPlannerConfig(cfg)
	if err != nil {
		return nil, err
	}
	plan := planner.New(pc, store, log.With(logx.String("comp", "planner")))

	var imp *calendar.Importer
	if cfg.Calendar.Enabled {
		imp = calendar.NewImporter(cfg.Calendar.Dir, cfg.Calendar.CategoryOrDefault(), store,
			log.With(logx.String("comp", "calendar")))
	}

	return &app{
		cfgm:  cfgm,
		cfg:   cfg,
		logs:  logSvc,
		log:   log,
		store: store,
		plan:  plan,
		imp:   imp,
	}, nil
}

func (a *app) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		if cerr := a.logs.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// validateConfig gates both boot and hot reloads: the structural checks from
// the config package plus the trigger spec, whose parser lives with the
// planner.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := planner.ParseSchedule(cfg.Planner.ScheduleOrDefault()); err != nil {
		return fmt.Errorf("planner.schedule: %w", err)
	}
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapPlannerConfig(cfg *config.Config) (planner.Config, error) {
	hours, err := cfg.WorkHours.ResolveWorkHours()
	if err != nil {
		return planner.Config{}, err
	}
	return planner.Config{
		Enabled:     cfg.Planner.Enabled,
		Schedule:    cfg.Planner.ScheduleOrDefault(),
		HorizonDays: cfg.Planner.Horizon(),
		Hours:       hours,
	}, nil
}

// clearSchedule resets every placed task so the next pass starts clean.
func (a *app) clearSchedule(ctx context.Context) error {
	n, err := a.store.ClearSchedule(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d scheduled task(s)\n", n)
	return nil
}

func (a *app) syncOnce(ctx context.Context) error {
	if a.imp == nil {
		return fmt.Errorf("calendar import is not configured (set calendar.enabled and calendar.dir)")
	}
	sum, err := a.imp.Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("synced %d event(s) from %d file(s), deleted %d stale\n",
		sum.EventsSynced, len(sum.Files), sum.EventsDeleted)
	return nil
}

func (a *app) passOnce(ctx context.Context) error {
	// Refresh busy time first so the pass places against current events.
	if a.imp != nil {
		if _, err := a.imp.Sync(ctx); err != nil {
			a.log.Warn("calendar sync before pass failed", logx.Any("err", err))
		}
	}
	sum, err := a.plan.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("placed %d task(s), %d unplaced, %d new instance(s)\n",
		sum.Placed, sum.Failed, sum.InstancesNew)
	return nil
}

func (a *app) runDaemon(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Initial import before the first pass so placements see current busy
	// time.
	if a.imp != nil {
		if _, err := a.imp.Sync(sup.Context()); err != nil {
			a.log.Warn("initial calendar sync failed", logx.Any("err", err))
		}
	}

	if err := a.plan.Start(sup.Context()); err != nil {
		sup.Cancel()
		return err
	}

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	sup.Go("config.watch", a.cfgm.Watch)

	if a.imp != nil && a.cfg.Calendar.Watch {
		debounce, err := config.ParseDurationField("calendar.debounce", a.cfg.Calendar.Debounce)
		if err != nil {
			sup.Cancel()
			return err
		}
		w := calendar.NewWatcher(a.imp, debounce, a.cfg.Calendar.ResyncPerMin,
			a.log.With(logx.String("comp", "calendar")))
		w.OnSync(func(sum calendar.SyncSummary) {
			if sum.EventsSynced == 0 && sum.EventsDeleted == 0 {
				return
			}
			// Busy time changed; re-place now instead of waiting for the
			// next trigger.
			if _, err := a.plan.RunOnce(sup.Context()); err != nil && !errors.Is(err, planner.ErrPassInFlight) {
				a.log.Warn("pass after calendar sync failed", logx.Any("err", err))
			}
		})
		sup.Go("calendar.watch", w.Run)
	}

	sup.Go0("watchdog", a.watchdogLoop)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("timeblockd started",
		logx.Bool("planner", a.cfg.Planner.Enabled),
		logx.Bool("calendar", a.cfg.Calendar.Enabled))

	<-sup.Context().Done()

	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.plan.Stop(stopCtx)

	if err := sup.Wait(stopCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("shutdown timed out; exiting anyway")
			return sup.Err()
		}
		return err
	}
	return nil
}

// reloadLoop applies validated config updates: logging and the planner
// trigger live, storage and calendar topology with a warning that a restart
// is needed.
func (a *app) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}

			a.logs.Apply(mapLogConfig(newCfg))

			for _, s := range sections {
				if s == "storage" || s == "calendar" {
					a.log.Warn("section changed; restart required to take effect",
						logx.String("section", s))
				}
			}

			if pc, err := mapPlannerConfig(newCfg); err != nil {
				// The validator runs before publish, so this only fires if
				// the validator and the mapping drift apart.
				a.log.Warn("invalid planner config; keeping previous", logx.Any("err", err))
			} else {
				a.plan.Apply(ctx, pc)
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// notify forwards daemon state to systemd. Outside systemd it is a no-op.
func (a *app) notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		a.log.Warn("sd_notify failed", logx.Any("err", err))
	}
}

// watchdogLoop pings the systemd watchdog at half the configured interval.
// With WatchdogSec unset (or outside systemd) it exits immediately.
func (a *app) watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog detection failed", logx.Any("err", err))
		return
	}
	if interval == 0 {
		return
	}
	a.log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))

	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			a.notify(daemon.SdNotifyWatchdog)
		}
	}
}
