package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"price_tracker/config"
	"price_tracker/events"
	"price_tracker/extract"
	"price_tracker/models"
)

// OpsStore is the operational state the orchestrator records runs in.
type OpsStore interface {
	events.LogWriter
	CreateRun(run *models.ScrapeRun) (int64, error)
	UpdateRun(run *models.ScrapeRun) error
	UpdateSearchStats(searchID string) error
	GetResumePage(searchID string) (string, error)
	SetResumePage(searchID, pageURL string) error
	ClearResumePage(searchID string) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
}

// Refresher re-checks stored products on demand.
type Refresher interface {
	Trigger()
}

// CategoryCache is a taxonomy cache reloaded once per run.
type CategoryCache interface {
	Reset()
}

type Orchestrator struct {
	cfg      *config.Config
	store    OpsStore
	fetchers Fetchers
	pipeline *Pipeline
	sink     events.Sink
	workers  int
	paused   atomic.Bool

	refresher Refresher
	cache     CategoryCache
}

func NewOrchestrator(cfg *config.Config, store OpsStore, fetchers Fetchers, ingest Ingester, sink events.Sink) *Orchestrator {
	if sink == nil {
		sink = events.Discard
	}
	workers := cfg.Scraper.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		fetchers: fetchers,
		pipeline: NewPipeline(ingest),
		sink:     sink,
		workers:  workers,
	}
}

// SetRefresher wires the refresh command to a worker.
func (o *Orchestrator) SetRefresher(r Refresher) {
	o.refresher = r
}

// SetCategoryCache makes each run start from a fresh taxonomy.
func (o *Orchestrator) SetCategoryCache(c CategoryCache) {
	o.cache = c
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.paused.Load() {
		log.Println("Scraper is paused, skipping run")
		return nil
	}

	for _, searchID := range o.SearchIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.RunSearch(ctx, searchID); err != nil {
			log.Printf("Error running search %s: %v", searchID, err)
		}
	}
	return nil
}

// RunSearch crawls one saved search, starting from the page an interrupted
// run stopped at if there is one.
func (o *Orchestrator) RunSearch(ctx context.Context, searchID string) (err error) {
	search, ok := o.cfg.Searches[searchID]
	if !ok {
		return fmt.Errorf("unknown search: %s", searchID)
	}
	fetcher, err := o.fetchers.For(search)
	if err != nil {
		return err
	}

	if o.cache != nil {
		o.cache.Reset()
	}

	run := &models.ScrapeRun{
		SearchID:      searchID,
		CorrelationID: uuid.NewString(),
		StartedAt:     time.Now(),
		Status:        models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(run)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.ID = runID

	counters := events.NewCounters()
	sink := events.Multi{o.sink, counters, events.StoreSink{Store: o.store, RunID: &run.ID}}
	base := events.Event{RunID: run.CorrelationID, SearchID: searchID}

	started := base
	started.Kind = events.RunStarted
	started.At = run.StartedAt
	started.Message = fmt.Sprintf("Starting scrape for %s", search.Name)
	sink.Emit(ctx, started)

	defer func() {
		summary := counters.Summary()
		summary.ApplyTo(run)
		now := time.Now()
		run.FinishedAt = &now
		if err != nil {
			run.Status = models.RunStatusFailed
			run.ErrorsCount++
		} else {
			run.Status = models.RunStatusCompleted
		}
		if uerr := o.store.UpdateRun(run); uerr != nil {
			log.Printf("Failed to update run %d: %v", run.ID, uerr)
		}
		if uerr := o.store.UpdateSearchStats(searchID); uerr != nil {
			log.Printf("Failed to update stats for %s: %v", searchID, uerr)
		}

		finished := base
		finished.Kind = events.RunFinished
		finished.At = now
		finished.Err = err
		finished.Message = fmt.Sprintf("Completed: %d found, %d new, %d updated, %d prices, %d dropped, %d ended, %d errors",
			run.ListingsFound, run.ProductsNew, run.ProductsUpdated, run.PricesAppended,
			run.Dropped, run.Ended, run.ErrorsCount)
		sink.Emit(ctx, finished)
	}()

	pageURL, err := o.store.GetResumePage(searchID)
	if err != nil {
		return fmt.Errorf("get resume page: %w", err)
	}
	if pageURL == "" {
		pageURL = search.StartURL()
	} else {
		log.Printf("Resuming %s from %s", searchID, pageURL)
	}

	for pageNum := 1; pageNum <= search.MaxPages && pageURL != ""; pageNum++ {
		if err := o.store.SetResumePage(searchID, pageURL); err != nil {
			log.Printf("Failed to save resume page for %s: %v", searchID, err)
		}

		page, err := fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("fetch results page %d: %w", pageNum, err)
		}
		results, err := extract.ParseResultsHTML(bytes.NewReader(page.Body), page.URL)
		if err != nil {
			return fmt.Errorf("parse results page %d: %w", pageNum, err)
		}

		counters.AddFound(len(results.Listings))
		log.Printf("[%s] page %d: %d listings", searchID, pageNum, len(results.Listings))

		o.processListings(ctx, fetcher, results.Listings, sink, counters, base)
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL = results.NextURL
	}

	if err := o.store.ClearResumePage(searchID); err != nil {
		log.Printf("Failed to clear resume page for %s: %v", searchID, err)
	}
	return nil
}

// processListings runs the pipeline over queued listings on a bounded set of workers.
func (o *Orchestrator) processListings(ctx context.Context, f Fetcher, queued []models.QueuedListing, sink events.Sink, counters *events.Counters, base events.Event) {
	jobs := make(chan models.QueuedListing)
	var wg sync.WaitGroup

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range jobs {
				res := o.pipeline.Process(ctx, f, q, sink, base)
				if res != nil && res.IsNew {
					counters.MarkNew()
				}
			}
		}()
	}

feed:
	for _, q := range queued {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- q:
		}
	}
	close(jobs)
	wg.Wait()
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := o.store.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		return o.RunAll(ctx)
	case models.CmdScrapeSearch:
		if params.Search != "" {
			return o.RunSearch(ctx, params.Search)
		}
		return o.RunAll(ctx)
	case models.CmdRefresh:
		if o.refresher != nil {
			o.refresher.Trigger()
		}
	case models.CmdPause:
		o.paused.Store(true)
		log.Println("Scraper paused")
	case models.CmdResume:
		o.paused.Store(false)
		log.Println("Scraper resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// SearchIDs returns the configured searches in a stable order.
func (o *Orchestrator) SearchIDs() []string {
	ids := make([]string, 0, len(o.cfg.Searches))
	for id := range o.cfg.Searches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
