package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"price_tracker/config"
	"price_tracker/models"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Runner is the crawl side the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) error
	RunSearch(ctx context.Context, searchID string) error
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

// CommandStore is the slice of the ops database the scheduler polls.
type CommandStore interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	GetSearchesWithResumePage() ([]string, error)
	GetLastRunTime(searchID string) (time.Time, error)
}

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	store  CommandStore
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	now    func() time.Time

	mediaWorker Triggerable
}

func New(cfg *config.Config, runner Runner, store CommandStore) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		store:  store,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// SetMediaWorker registers the image mirror for run_media commands.
func (s *Scheduler) SetMediaWorker(media Triggerable) {
	s.mediaWorker = media
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)
	go s.pollResumes(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.runner.RunAll(ctx); err != nil {
				log.Printf("Scheduled run error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.runner.RunAll(ctx); err != nil {
						log.Printf("Scheduled run error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessCommands drains the pending queue once. Commands are marked processed
// even when they fail so a bad one cannot wedge the queue.
func (s *Scheduler) ProcessCommands(ctx context.Context) int {
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return 0
	}

	for i := range cmds {
		cmd := &cmds[i]
		log.Printf("Processing command: %s", cmd.Command)
		if err := s.handleCommand(ctx, cmd); err != nil {
			log.Printf("Command error: %v", err)
		}
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
	}
	return len(cmds)
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunMedia:
		if s.mediaWorker == nil {
			return fmt.Errorf("media worker not running")
		}
		s.mediaWorker.Trigger()
		log.Println("Media worker triggered via command")
		return nil
	default:
		return s.runner.HandleCommand(ctx, cmd)
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.runner.RunAll(ctx)
}

const resumeDelay = 15 * time.Minute

func (s *Scheduler) pollResumes(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ResumeInterrupted(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ResumeInterrupted restarts searches that stopped mid-crawl, once the last
// run is at least resumeDelay old. It returns the ids it resumed.
func (s *Scheduler) ResumeInterrupted(ctx context.Context) []string {
	searches, err := s.store.GetSearchesWithResumePage()
	if err != nil {
		log.Printf("Error checking resume pages: %v", err)
		return nil
	}

	var resumed []string
	for _, searchID := range searches {
		lastRun, err := s.store.GetLastRunTime(searchID)
		if err != nil {
			log.Printf("Error getting last run time for %s: %v", searchID, err)
			continue
		}

		if s.now().Sub(lastRun) < resumeDelay {
			continue
		}
		log.Printf("Resuming scrape for %s", searchID)
		resumed = append(resumed, searchID)
		if err := s.runner.RunSearch(ctx, searchID); err != nil {
			log.Printf("Resume error for %s: %v", searchID, err)
		}
	}
	return resumed
}
