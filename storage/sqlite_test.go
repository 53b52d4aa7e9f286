package storage

import (
	"path/filepath"
	"testing"
	"time"

	"price_tracker/models"
)

func newTestOpsStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open ops store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreCommands(t *testing.T) {
	s := newTestOpsStore(t)

	if err := s.EnqueueCommand(models.CmdScrapeSearch, &models.CommandParams{Search: "funko-pop"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.EnqueueCommand(models.CmdPause, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cmds, err := s.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	if cmds[0].Command != models.CmdScrapeSearch {
		t.Fatalf("unexpected first command %s", cmds[0].Command)
	}

	params, err := s.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if params.Search != "funko-pop" {
		t.Fatalf("unexpected params %+v", params)
	}

	params, err = s.ParseCommandParams(&cmds[1])
	if err != nil || params.Search != "" {
		t.Fatalf("empty params should parse, got %+v, %v", params, err)
	}

	if err := s.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	cmds, err = s.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != models.CmdPause {
		t.Fatalf("expected only pause left, got %+v", cmds)
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s := newTestOpsStore(t)

	run := &models.ScrapeRun{SearchID: "funko-pop", CorrelationID: "abc", StartedAt: time.Now(), Status: models.RunStatusRunning}
	id, err := s.CreateRun(run)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	run.ID = id

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.ListingsFound = 40
	run.ProductsNew = 3
	run.PricesAppended = 5
	run.Dropped = 7
	if err := s.UpdateRun(run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	got, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got == nil || got.Status != models.RunStatusCompleted || got.ListingsFound != 40 || got.Dropped != 7 {
		t.Fatalf("unexpected run %+v", got)
	}

	if err := s.UpdateSearchStats("funko-pop"); err != nil {
		t.Fatalf("search stats: %v", err)
	}
	last, err := s.GetLastRunTime("funko-pop")
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last.IsZero() {
		t.Fatal("expected a last run time")
	}

	stats, err := s.ListSearchStats()
	if err != nil {
		t.Fatalf("list stats: %v", err)
	}
	if len(stats) != 1 || stats[0].TotalRuns != 1 || stats[0].LastRunStatus != "completed" || stats[0].SuccessRate != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].PricesAppended != 5 {
		t.Fatalf("unexpected runs %+v", runs)
	}

	if err := s.Log(&id, models.LogLevelInfo, "run_finished", "done", "funko-pop"); err != nil {
		t.Fatalf("log: %v", err)
	}
	logs, err := s.RecentLogs(5)
	if err != nil {
		t.Fatalf("recent logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Event != "run_finished" || logs[0].RunID == nil || *logs[0].RunID != id {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestSQLiteStoreResumePage(t *testing.T) {
	s := newTestOpsStore(t)

	page, err := s.GetResumePage("funko-pop")
	if err != nil || page != "" {
		t.Fatalf("expected no resume page, got %q, %v", page, err)
	}

	if err := s.SetResumePage("funko-pop", "https://www.ebay.com/sch/i.html?_pgn=3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	page, err = s.GetResumePage("funko-pop")
	if err != nil || page != "https://www.ebay.com/sch/i.html?_pgn=3" {
		t.Fatalf("unexpected resume page %q, %v", page, err)
	}

	if err := s.SetResumePage("star-wars", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	ids, err := s.GetSearchesWithResumePage()
	if err != nil {
		t.Fatalf("searches with resume page: %v", err)
	}
	if len(ids) != 1 || ids[0] != "funko-pop" {
		t.Fatalf("expected only funko-pop, got %v", ids)
	}

	if err := s.ClearResumePage("funko-pop"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	page, _ = s.GetResumePage("funko-pop")
	if page != "" {
		t.Fatalf("expected cleared page, got %q", page)
	}
	if ids, _ := s.GetSearchesWithResumePage(); len(ids) != 0 {
		t.Fatalf("expected no resumable searches, got %v", ids)
	}
}
