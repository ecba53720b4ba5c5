// Package calendar imports busy time from exported calendar JSON files
// and keeps the mirrored event rows in sync with what the files contain.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"timeblock/internal/model"
	"timeblock/pkg/logx"
)

var (
	ErrDirNotFound = errors.New("calendar: export directory does not exist")
	ErrNoExports   = errors.New("calendar: no json files in export directory")
)

// EventStore is the slice of the storage layer the importer writes through.
type EventStore interface {
	UpsertEvent(ctx context.Context, e model.CalendarEvent) error
	DeleteEventsNotIn(ctx context.Context, keep []string) (int64, error)
}

// Importer reconciles the event table against a directory of exported
// calendar files. Every sync is a full pass: events present in the files
// are upserted, events that disappeared are deleted.
type Importer struct {
	dir    string
	marker string
	store  EventStore
	log    logx.Logger
}

func NewImporter(dir, marker string, store EventStore, log logx.Logger) *Importer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Importer{dir: dir, marker: strings.ToLower(marker), store: store, log: log}
}

// SyncSummary reports what one full import pass did.
type SyncSummary struct {
	Files         []string
	EventsSynced  int
	EventsDeleted int64
	AllDaySkipped int
	FilesFailed   int
}

// exportEvent is the subset of an exported calendar entry the importer
// reads. Exports carry many more fields; unknown ones are ignored.
type exportEvent struct {
	ID                string      `json:"id"`
	Subject           string      `json:"subject"`
	Start             *exportTime `json:"start"`
	End               *exportTime `json:"end"`
	StartWithTimeZone string      `json:"startWithTimeZone"`
	EndWithTimeZone   string      `json:"endWithTimeZone"`
	IsAllDay          bool        `json:"isAllDay"`
	Categories        []string    `json:"categories"`
}

type exportTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

// Sync runs one full import pass. Per-file errors are logged and counted,
// not fatal; the reconciling delete still runs so stale rows never outlive
// their files.
func (im *Importer) Sync(ctx context.Context) (SyncSummary, error) {
	var sum SyncSummary

	entries, err := os.ReadDir(im.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return sum, fmt.Errorf("%w: %s", ErrDirNotFound, im.dir)
		}
		return sum, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	if len(files) == 0 {
		return sum, fmt.Errorf("%w: %s", ErrNoExports, im.dir)
	}

	now := time.Now()
	keep := make([]string, 0, 64)
	for _, name := range files {
		sum.Files = append(sum.Files, name)
		synced, skipped, err := im.importFile(ctx, name, now, &keep)
		if err != nil {
			sum.FilesFailed++
			im.log.Warn("calendar file import failed",
				logx.String("file", name), logx.Any("err", err))
			continue
		}
		sum.EventsSynced += synced
		sum.AllDaySkipped += skipped
	}

	deleted, err := im.store.DeleteEventsNotIn(ctx, keep)
	if err != nil {
		return sum, fmt.Errorf("calendar: reconcile delete: %w", err)
	}
	sum.EventsDeleted = deleted

	im.log.Info("calendar synced",
		logx.Int("files", len(sum.Files)),
		logx.Int("failed", sum.FilesFailed),
		logx.Int("events", sum.EventsSynced),
		logx.Int64("deleted", sum.EventsDeleted),
		logx.Int("all_day_skipped", sum.AllDaySkipped),
	)
	return sum, nil
}

func (im *Importer) importFile(ctx context.Context, name string, now time.Time, keep *[]string) (synced, allDaySkipped int, err error) {
	b, err := os.ReadFile(filepath.Join(im.dir, name))
	if err != nil {
		return 0, 0, err
	}

	// A file holds either one event object or an array of them.
	var events []exportEvent
	if err := json.Unmarshal(b, &events); err != nil {
		var one exportEvent
		if err2 := json.Unmarshal(b, &one); err2 != nil {
			return 0, 0, err
		}
		events = []exportEvent{one}
	}

	for _, ev := range events {
		if ev.ID == "" || ev.Subject == "" || ev.Start == nil || ev.End == nil {
			continue
		}
		if ev.IsAllDay {
			allDaySkipped++
			continue
		}
		start, ok := resolveTime(ev.StartWithTimeZone, ev.Start)
		if !ok {
			continue
		}
		end, ok := resolveTime(ev.EndWithTimeZone, ev.End)
		if !ok {
			continue
		}
		row := model.CalendarEvent{
			ID:            ev.ID,
			Subject:       ev.Subject,
			Start:         start,
			End:           end,
			EngineManaged: im.isManaged(ev.Categories),
			SourceFile:    name,
			Categories:    ev.Categories,
			UpdatedAt:     now,
		}
		if err := row.Validate(); err != nil {
			im.log.Debug("calendar event skipped",
				logx.String("file", name), logx.String("id", ev.ID), logx.Any("err", err))
			continue
		}
		if err := im.store.UpsertEvent(ctx, row); err != nil {
			return synced, allDaySkipped, err
		}
		*keep = append(*keep, ev.ID)
		synced++
	}
	return synced, allDaySkipped, nil
}

// isManaged reports whether any category contains the marker, case
// insensitively. Substring match: "My Timeblock" still counts.
func (im *Importer) isManaged(categories []string) bool {
	if im.marker == "" {
		return false
	}
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c), im.marker) {
			return true
		}
	}
	return false
}

// resolveTime prefers the zone-qualified field; exports duplicate the
// instant there with an explicit offset.
func resolveTime(withZone string, obj *exportTime) (time.Time, bool) {
	if s := strings.TrimSpace(withZone); s != "" {
		return parseExportTime(s)
	}
	if s := strings.TrimSpace(obj.DateTime); s != "" {
		return parseExportTime(s)
	}
	return parseExportTime(obj.Date)
}

// reUnderscoreTime matches the filename-safe export form
// "2024-01-15T10_30_00.0000000" where colons were replaced.
var reUnderscoreTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}_\d{2}_\d{2}`)

// parseExportTime parses the timestamp shapes that occur in exports:
// RFC 3339 with zone, the underscore filename form, and naive local
// stamps, which are taken as UTC. Date-only values fail; a dated span
// without a clock is all-day busy time we do not import.
func parseExportTime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if reUnderscoreTime.MatchString(s) {
		s = strings.ReplaceAll(s, "_", ":")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}
