package model

import (
	"errors"
	"strings"
	"time"
)

// CalendarEvent is a busy block on the calendar. Events imported from
// exported calendar files and events the engine wrote itself both count
// as busy time; EngineManaged only matters for sync reconciliation.
type CalendarEvent struct {
	ID      string
	Subject string
	Start   time.Time
	End     time.Time

	// EngineManaged marks events this system created (category match),
	// as opposed to externally imported busy time.
	EngineManaged bool

	// SourceFile is the calendar export file the event came from.
	SourceFile string

	Categories []string

	UpdatedAt time.Time
}

func (e CalendarEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("model: event id is required")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return errors.New("model: event start and end are required")
	}
	if !e.Start.Before(e.End) {
		return errors.New("model: event start must precede end")
	}
	return nil
}
