package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"price_tracker/events"
	"price_tracker/models"
	"price_tracker/scraper"
)

// StaleSource lists active products due for a re-check.
type StaleSource interface {
	StaleActiveProducts(ctx context.Context, olderThan time.Duration, limit int) ([]models.Product, error)
}

// RefreshWorker re-fetches active products that have not been seen for a
// while, so ended listings and price moves are picked up between crawls.
type RefreshWorker struct {
	store     StaleSource
	fetcher   scraper.Fetcher
	pipeline  *scraper.Pipeline
	sink      events.Sink
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewRefreshWorker(store StaleSource, fetcher scraper.Fetcher, ingest scraper.Ingester, sink events.Sink) *RefreshWorker {
	if sink == nil {
		sink = events.Discard
	}
	pipeline := scraper.NewPipeline(ingest)
	pipeline.PinQueuedID = true
	return &RefreshWorker{
		store:     store,
		fetcher:   fetcher,
		pipeline:  pipeline,
		sink:      sink,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *RefreshWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *RefreshWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *RefreshWorker) Run(ctx context.Context, staleAfter time.Duration, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Refresh worker stopping")
			return
		case <-ticker.C:
			w.RefreshBatch(ctx, staleAfter, batchSize)
		case <-w.triggerCh:
			log.Println("Refresh worker triggered manually")
			w.RefreshBatch(ctx, staleAfter, batchSize)
		}
	}
}

// RefreshBatch re-checks up to batchSize products last updated before staleAfter ago.
func (w *RefreshWorker) RefreshBatch(ctx context.Context, staleAfter time.Duration, batchSize int) events.Summary {
	counters := events.NewCounters()

	products, err := w.store.StaleActiveProducts(ctx, staleAfter, batchSize)
	if err != nil {
		log.Printf("Refresh: query error: %v", err)
		w.logFunc(models.LogLevelError, "refresh", fmt.Sprintf("query error: %v", err))
		return counters.Summary()
	}
	if len(products) == 0 {
		return counters.Summary()
	}

	log.Printf("Refresh: checking %d stale products", len(products))
	counters.AddFound(len(products))
	sink := events.Multi{w.sink, counters}
	base := events.Event{SearchID: "refresh"}

	for _, p := range products {
		if ctx.Err() != nil {
			break
		}
		if p.URL == "" {
			continue
		}
		// Only identity is carried; title, condition and price come from the page.
		q := models.QueuedListing{
			ExternalID: p.ExternalID,
			URL:        p.URL,
			ImageURL:   p.ImageURL,
		}
		w.pipeline.Process(ctx, w.fetcher, q, sink, base)
	}

	s := counters.Summary()
	msg := fmt.Sprintf("checked %d, ended %d, prices %d, failed %d", s.Processed, s.Ended, s.PricesAppended, s.Failed)
	log.Printf("Refresh: %s", msg)
	w.logFunc(models.LogLevelInfo, "refresh", msg)
	return s
}
