package workers

import "price_tracker/models"

// LogFunc writes a line to the scrape_logs table.
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

// LogWriter is the subset of the operational store LogFuncs write to.
type LogWriter interface {
	Log(runID *int64, level models.LogLevel, event, message, searchID string) error
}

// StoreLogger adapts the operational store into a LogFunc.
func StoreLogger(store LogWriter) LogFunc {
	return func(level models.LogLevel, source, message string) {
		store.Log(nil, level, source, message, "")
	}
}
