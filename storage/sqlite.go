package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"price_tracker/models"
)

// SQLiteStore holds operational state: runs, logs, per-search stats and the
// command queue the scheduler polls.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		search_id TEXT,
		correlation_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER DEFAULT 0,
		products_new INTEGER DEFAULT 0,
		products_updated INTEGER DEFAULT 0,
		prices_appended INTEGER DEFAULT 0,
		dropped INTEGER DEFAULT 0,
		ended INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		event TEXT,
		message TEXT,
		search_id TEXT
	);

	CREATE TABLE IF NOT EXISTS search_stats (
		search_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_runs INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER,
		resume_page TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (search_id, correlation_id, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.SearchID, run.CorrelationID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, listings_found = ?,
			products_new = ?, products_updated = ?, prices_appended = ?,
			dropped = ?, ended = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound,
		run.ProductsNew, run.ProductsUpdated, run.PricesAppended,
		run.Dropped, run.Ended, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	err := s.db.QueryRow(`
		SELECT id, search_id, correlation_id, started_at, finished_at, status, listings_found,
			products_new, products_updated, prices_appended, dropped, ended, errors_count
		FROM scrape_runs WHERE id = ?`, id).Scan(
		&run.ID, &run.SearchID, &run.CorrelationID, &run.StartedAt, &run.FinishedAt, &run.Status,
		&run.ListingsFound, &run.ProductsNew, &run.ProductsUpdated, &run.PricesAppended,
		&run.Dropped, &run.Ended, &run.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, search_id, correlation_id, started_at, finished_at, status, listings_found,
			products_new, products_updated, prices_appended, dropped, ended, errors_count
		FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var run models.ScrapeRun
		if err := rows.Scan(&run.ID, &run.SearchID, &run.CorrelationID, &run.StartedAt, &run.FinishedAt, &run.Status,
			&run.ListingsFound, &run.ProductsNew, &run.ProductsUpdated, &run.PricesAppended,
			&run.Dropped, &run.Ended, &run.ErrorsCount); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, event, message, searchID string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, event, message, search_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, time.Now(), level, event, message, searchID)
	return err
}

func (s *SQLiteStore) RecentLogs(limit int) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, event, message, search_id
		FROM scrape_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Event, &l.Message, &l.SearchID); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) UpdateSearchStats(searchID string) error {
	_, err := s.db.Exec(`
		INSERT INTO search_stats (search_id, last_run_at, last_run_status, total_runs,
			success_rate, avg_run_duration_sec)
		SELECT
			?,
			COALESCE(
				(SELECT started_at FROM scrape_runs WHERE search_id = ? AND status = 'completed' ORDER BY started_at DESC LIMIT 1),
				(SELECT started_at FROM scrape_runs WHERE search_id = ? ORDER BY started_at DESC LIMIT 1)
			),
			(SELECT status FROM scrape_runs WHERE search_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM scrape_runs WHERE search_id = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM scrape_runs WHERE search_id = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM scrape_runs WHERE search_id = ? AND finished_at IS NOT NULL)
		WHERE true
		ON CONFLICT(search_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_runs = excluded.total_runs,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		searchID, searchID, searchID, searchID, searchID, searchID, searchID)
	return err
}

func (s *SQLiteStore) ListSearchStats() ([]models.SearchStats, error) {
	rows, err := s.db.Query(`
		SELECT search_id, last_run_at, COALESCE(last_run_status, ''), COALESCE(total_runs, 0),
			COALESCE(success_rate, 0), COALESCE(avg_run_duration_sec, 0)
		FROM search_stats ORDER BY search_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.SearchStats
	for rows.Next() {
		var st models.SearchStats
		var lastRun sql.NullTime
		if err := rows.Scan(&st.SearchID, &lastRun, &st.LastRunStatus, &st.TotalRuns,
			&st.SuccessRate, &st.AvgRunDurationSec); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			t := lastRun.Time
			st.LastRunAt = &t
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) GetLastRunTime(searchID string) (time.Time, error) {
	var lastRun sql.NullTime
	err := s.db.QueryRow(`
		SELECT last_run_at FROM search_stats WHERE search_id = ?`, searchID).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return lastRun.Time, err
}

// =============================================================================
// Resume
// =============================================================================

// GetResumePage returns the results page URL an interrupted run stopped at, or "".
func (s *SQLiteStore) GetResumePage(searchID string) (string, error) {
	var page sql.NullString
	err := s.db.QueryRow(`
		SELECT resume_page FROM search_stats WHERE search_id = ?`, searchID).Scan(&page)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return page.String, err
}

func (s *SQLiteStore) SetResumePage(searchID, pageURL string) error {
	_, err := s.db.Exec(`
		INSERT INTO search_stats (search_id, resume_page)
		VALUES (?, ?)
		ON CONFLICT(search_id) DO UPDATE SET resume_page = ?`, searchID, pageURL, pageURL)
	return err
}

// GetSearchesWithResumePage lists searches an interrupted run left a page for.
func (s *SQLiteStore) GetSearchesWithResumePage() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT search_id FROM search_stats
		WHERE resume_page IS NOT NULL AND resume_page != ''
		ORDER BY search_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ClearResumePage(searchID string) error {
	_, err := s.db.Exec(`
		UPDATE search_stats SET resume_page = '' WHERE search_id = ?`, searchID)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, string(raw), time.Now())
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid && params.String != "" {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
