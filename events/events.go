// Package events records what happened to each listing during a crawl.
// Extraction and persistence never import it; the pipeline that drives them does.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"price_tracker/models"
)

type Kind string

const (
	RunStarted    Kind = "run_started"
	RunFinished   Kind = "run_finished"
	Processed     Kind = "processed"
	Dropped       Kind = "dropped"
	Ended         Kind = "ended"
	Failed        Kind = "failed"
	PriceAppended Kind = "price_appended"
	CategoryMiss  Kind = "category_miss"
)

type Event struct {
	Kind       Kind
	RunID      string
	SearchID   string
	ExternalID string
	ProductID  int64
	Reason     models.DropReason
	Message    string
	Err        error
	At         time.Time
}

// Sink receives pipeline events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// LogSink writes events as structured log lines.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"event", string(e.Kind)}
	if e.RunID != "" {
		attrs = append(attrs, "run", e.RunID)
	}
	if e.SearchID != "" {
		attrs = append(attrs, "search", e.SearchID)
	}
	if e.ExternalID != "" {
		attrs = append(attrs, "item", e.ExternalID)
	}
	if e.ProductID != 0 {
		attrs = append(attrs, "product", e.ProductID)
	}
	if e.Reason != models.DropNone {
		attrs = append(attrs, "reason", string(e.Reason))
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}

	switch e.Kind {
	case Failed:
		logger.ErrorContext(ctx, msg, attrs...)
	case Dropped, CategoryMiss:
		logger.DebugContext(ctx, msg, attrs...)
	default:
		logger.InfoContext(ctx, msg, attrs...)
	}
}

// Counters tallies events for a run summary.
type Counters struct {
	found          atomic.Int64
	processed      atomic.Int64
	productsNew    atomic.Int64
	pricesAppended atomic.Int64
	ended          atomic.Int64
	failed         atomic.Int64

	mu      sync.Mutex
	dropped map[models.DropReason]int
}

func NewCounters() *Counters {
	return &Counters{dropped: make(map[models.DropReason]int)}
}

// AddFound counts listings discovered on results pages.
func (c *Counters) AddFound(n int) {
	c.found.Add(int64(n))
}

// MarkNew counts a product created by this run.
func (c *Counters) MarkNew() {
	c.productsNew.Add(1)
}

func (c *Counters) Emit(_ context.Context, e Event) {
	switch e.Kind {
	case Processed:
		c.processed.Add(1)
	case PriceAppended:
		c.pricesAppended.Add(1)
	case Ended:
		c.ended.Add(1)
	case Failed:
		c.failed.Add(1)
	case Dropped:
		c.mu.Lock()
		c.dropped[e.Reason]++
		c.mu.Unlock()
	}
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Found          int
	Processed      int
	ProductsNew    int
	PricesAppended int
	Ended          int
	Failed         int
	Dropped        map[models.DropReason]int
}

func (s Summary) DroppedTotal() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

func (c *Counters) Summary() Summary {
	c.mu.Lock()
	dropped := make(map[models.DropReason]int, len(c.dropped))
	for k, v := range c.dropped {
		dropped[k] = v
	}
	c.mu.Unlock()

	return Summary{
		Found:          int(c.found.Load()),
		Processed:      int(c.processed.Load()),
		ProductsNew:    int(c.productsNew.Load()),
		PricesAppended: int(c.pricesAppended.Load()),
		Ended:          int(c.ended.Load()),
		Failed:         int(c.failed.Load()),
		Dropped:        dropped,
	}
}

// ApplyTo copies the summary onto a run record.
func (s Summary) ApplyTo(run *models.ScrapeRun) {
	run.ListingsFound = s.Found
	run.ProductsNew = s.ProductsNew
	run.ProductsUpdated = s.Processed - s.ProductsNew
	if run.ProductsUpdated < 0 {
		run.ProductsUpdated = 0
	}
	run.PricesAppended = s.PricesAppended
	run.Dropped = s.DroppedTotal()
	run.Ended = s.Ended
	run.ErrorsCount = s.Failed
}
