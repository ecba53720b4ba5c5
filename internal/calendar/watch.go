package calendar

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"timeblock/pkg/logx"
)

const (
	defaultDebounce     = 2 * time.Second
	defaultResyncPerMin = 6

	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher follows the export directory and re-imports when files change.
// Bursts of writes coalesce through a debounce timer; sync frequency is
// capped by a rate limiter so a misbehaving exporter cannot spin the
// store.
type Watcher struct {
	imp      *Importer
	debounce time.Duration
	limiter  *rate.Limiter
	log      logx.Logger

	// onSync, when set, observes every completed sync. Used by the
	// planner wiring to trigger a pass after busy time changed.
	onSync func(SyncSummary)
}

func NewWatcher(imp *Importer, debounce time.Duration, resyncPerMin int, log logx.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if resyncPerMin <= 0 {
		resyncPerMin = defaultResyncPerMin
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		imp:      imp,
		debounce: debounce,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(resyncPerMin)), 1),
		log:      log,
	}
}

// OnSync registers a callback invoked after each successful watcher-driven
// import. Must be set before Run.
func (w *Watcher) OnSync(fn func(SyncSummary)) { w.onSync = fn }

// Run watches the directory until ctx is canceled. A broken watcher is
// recreated with jittered exponential backoff, mirroring the config
// watcher's self-heal behavior.
func (w *Watcher) Run(ctx context.Context) error {
	dir := w.imp.dir

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	waitRestart := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.log.Warn("calendar watch init failed", logx.Any("err", err), logx.String("dir", dir))
			if !waitRestart() {
				return nil
			}
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.log.Warn("calendar watch add failed", logx.Any("err", err), logx.String("dir", dir))
			if !waitRestart() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		w.log.Debug("calendar watcher started", logx.String("dir", dir))

		timer := time.NewTimer(time.Hour)
		if !timer.Stop() {
			<-timer.C
		}
		arm := func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		}

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil

			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					arm()
				}

			case <-timer.C:
				if err := w.limiter.Wait(ctx); err != nil {
					_ = fw.Close()
					return nil
				}
				sum, err := w.imp.Sync(ctx)
				if err != nil {
					w.log.Warn("calendar resync failed", logx.Any("err", err))
					continue
				}
				if w.onSync != nil {
					w.onSync(sum)
				}

			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					w.log.Warn("calendar watch overflow; forcing resync", logx.Any("err", err))
					arm()
					continue
				}
				w.log.Warn("calendar watch error", logx.Any("err", err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = fw.Close()
		if ctx.Err() != nil {
			return nil
		}
		w.log.Warn("calendar watcher stopped; restarting", logx.String("dir", dir))
		if !waitRestart() {
			return nil
		}
	}
}
