package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"price_tracker/config"
	"price_tracker/models"
)

type fakeRunner struct {
	handled []models.CommandType
	runs    []string
	failCmd models.CommandType
}

func (r *fakeRunner) RunAll(ctx context.Context) error { return nil }

func (r *fakeRunner) RunSearch(ctx context.Context, searchID string) error {
	r.runs = append(r.runs, searchID)
	return nil
}

func (r *fakeRunner) HandleCommand(ctx context.Context, cmd *models.Command) error {
	r.handled = append(r.handled, cmd.Command)
	if cmd.Command == r.failCmd {
		return errors.New("boom")
	}
	return nil
}

type fakeStore struct {
	pending   []models.Command
	processed []int64
	resumable []string
	lastRuns  map[string]time.Time
}

func (s *fakeStore) GetPendingCommands() ([]models.Command, error) {
	var out []models.Command
	for _, c := range s.pending {
		done := false
		for _, id := range s.processed {
			if id == c.ID {
				done = true
			}
		}
		if !done {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkCommandProcessed(id int64) error {
	s.processed = append(s.processed, id)
	return nil
}

func (s *fakeStore) GetSearchesWithResumePage() ([]string, error) {
	return s.resumable, nil
}

func (s *fakeStore) GetLastRunTime(searchID string) (time.Time, error) {
	return s.lastRuns[searchID], nil
}

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

func TestProcessCommands(t *testing.T) {
	store := &fakeStore{pending: []models.Command{
		{ID: 1, Command: models.CmdScrapeNow},
		{ID: 2, Command: models.CmdRunMedia},
		{ID: 3, Command: models.CmdPause},
	}}
	runner := &fakeRunner{failCmd: models.CmdScrapeNow}
	media := &countingTrigger{}

	s := New(&config.Config{}, runner, store)
	s.SetMediaWorker(media)

	if n := s.ProcessCommands(context.Background()); n != 3 {
		t.Fatalf("expected 3 commands, got %d", n)
	}
	if media.n != 1 {
		t.Fatalf("expected media trigger, got %d", media.n)
	}
	if len(runner.handled) != 2 || runner.handled[0] != models.CmdScrapeNow || runner.handled[1] != models.CmdPause {
		t.Fatalf("unexpected forwarded commands %v", runner.handled)
	}
	if len(store.processed) != 3 {
		t.Fatalf("failed commands must still be marked processed, got %v", store.processed)
	}
	if n := s.ProcessCommands(context.Background()); n != 0 {
		t.Fatalf("queue should be drained, got %d", n)
	}
}

func TestProcessCommandsWithoutMediaWorker(t *testing.T) {
	store := &fakeStore{pending: []models.Command{{ID: 7, Command: models.CmdRunMedia}}}
	runner := &fakeRunner{}

	s := New(&config.Config{}, runner, store)
	s.ProcessCommands(context.Background())

	if len(runner.handled) != 0 {
		t.Fatalf("run_media should not reach the runner, got %v", runner.handled)
	}
	if len(store.processed) != 1 {
		t.Fatal("command should be marked processed")
	}
}

func TestResumeInterrupted(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		resumable: []string{"funko-pop", "star-wars"},
		lastRuns: map[string]time.Time{
			"funko-pop": now.Add(-20 * time.Minute),
			"star-wars": now.Add(-5 * time.Minute),
		},
	}
	runner := &fakeRunner{}

	s := New(&config.Config{}, runner, store)
	s.now = func() time.Time { return now }

	resumed := s.ResumeInterrupted(context.Background())
	if len(resumed) != 1 || resumed[0] != "funko-pop" {
		t.Fatalf("expected only funko-pop resumed, got %v", resumed)
	}
	if len(runner.runs) != 1 || runner.runs[0] != "funko-pop" {
		t.Fatalf("unexpected runs %v", runner.runs)
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Cron: "not a cron"}}
	s := New(cfg, &fakeRunner{}, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err == nil {
		t.Fatal("expected invalid cron error")
	}
}
