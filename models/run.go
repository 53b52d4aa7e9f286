package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type ScrapeRun struct {
	ID              int64      `json:"id" db:"id"`
	SearchID        string     `json:"search_id" db:"search_id"`
	CorrelationID   string     `json:"correlation_id" db:"correlation_id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	ListingsFound   int        `json:"listings_found" db:"listings_found"`
	ProductsNew     int        `json:"products_new" db:"products_new"`
	ProductsUpdated int        `json:"products_updated" db:"products_updated"`
	PricesAppended  int        `json:"prices_appended" db:"prices_appended"`
	Dropped         int        `json:"dropped" db:"dropped"`
	Ended           int        `json:"ended" db:"ended"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
}

type SearchStats struct {
	SearchID          string     `json:"search_id" db:"search_id"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalRuns         int        `json:"total_runs" db:"total_runs"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
