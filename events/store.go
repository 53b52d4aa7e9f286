package events

import (
	"context"
	"fmt"
	"log"

	"price_tracker/models"
)

// LogWriter is the operational log table.
type LogWriter interface {
	Log(runID *int64, level models.LogLevel, event, message, searchID string) error
}

// StoreSink persists notable events to the scrape_logs table. Routine
// processed and price events are left to the log file.
type StoreSink struct {
	Store LogWriter
	RunID *int64
}

func (s StoreSink) Emit(_ context.Context, e Event) {
	if s.Store == nil {
		return
	}

	var level models.LogLevel
	var msg string
	switch e.Kind {
	case Failed:
		level = models.LogLevelError
		msg = fmt.Sprintf("%s: %v", e.ExternalID, e.Err)
	case Dropped:
		level = models.LogLevelInfo
		msg = fmt.Sprintf("%s dropped: %s", e.ExternalID, e.Reason)
	case Ended:
		level = models.LogLevelInfo
		msg = fmt.Sprintf("%s ended", e.ExternalID)
	case CategoryMiss:
		level = models.LogLevelWarn
		msg = fmt.Sprintf("%s: no category for %q", e.ExternalID, e.Message)
	case RunStarted, RunFinished:
		level = models.LogLevelInfo
		msg = e.Message
	default:
		return
	}

	if err := s.Store.Log(s.RunID, level, string(e.Kind), msg, e.SearchID); err != nil {
		log.Printf("events: failed to persist %s: %v", e.Kind, err)
	}
}
