package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"price_tracker/events"
	"price_tracker/extract"
	"price_tracker/filter"
	"price_tracker/identity"
	"price_tracker/models"
	"price_tracker/services"
)

// Ingester persists one extracted listing, or flags a stored one as ended.
type Ingester interface {
	Ingest(ctx context.Context, l *models.ExtractedListing) (*services.IngestResult, error)
	MarkEnded(ctx context.Context, externalID string) (*services.IngestResult, error)
}

// Pipeline takes a queued listing through fetch, extract, filter and ingest,
// reporting each outcome to a sink.
type Pipeline struct {
	ingest Ingester
	// PinQueuedID treats a redirect away from the queued item as the end of
	// the tracked product. Only its ended flag changes; the page it landed on
	// is not ingested.
	PinQueuedID bool
}

func NewPipeline(ingest Ingester) *Pipeline {
	return &Pipeline{ingest: ingest}
}

// Process returns the ingest result, or nil when the listing was dropped or failed.
func (p *Pipeline) Process(ctx context.Context, f Fetcher, q models.QueuedListing, sink events.Sink, base events.Event) *services.IngestResult {
	emit := func(kind events.Kind, externalID string, mutate func(*events.Event)) {
		e := base
		e.Kind = kind
		e.ExternalID = externalID
		e.At = time.Now()
		if mutate != nil {
			mutate(&e)
		}
		sink.Emit(ctx, e)
	}
	fail := func(id string, err error) {
		emit(events.Failed, id, func(e *events.Event) { e.Err = err })
	}

	if q.ExternalID == "" {
		q.ExternalID = identity.ItemIDFromURL(q.URL)
	}
	if q.ExternalID == "" {
		emit(events.Dropped, "", func(e *events.Event) { e.Reason = models.DropMissingID; e.Message = q.URL })
		return nil
	}

	page, err := f.Fetch(ctx, q.URL)
	if err != nil {
		fail(q.ExternalID, fmt.Errorf("fetch: %w", err))
		return nil
	}

	if page.StatusCode == http.StatusNotFound || page.StatusCode == http.StatusGone {
		emit(events.Dropped, q.ExternalID, func(e *events.Event) {
			e.Reason = models.DropPageUnavailable
			e.Message = fmt.Sprintf("status %d", page.StatusCode)
		})
		return nil
	}

	if p.PinQueuedID && page.URL != "" && page.URL != q.URL && identity.ItemIDFromURL(page.URL) != q.ExternalID {
		res, err := p.ingest.MarkEnded(ctx, q.ExternalID)
		if err != nil {
			fail(q.ExternalID, fmt.Errorf("mark ended: %w", err))
			return nil
		}
		withProduct := func(e *events.Event) { e.ProductID = res.ProductID; e.Message = page.URL }
		emit(events.Processed, q.ExternalID, withProduct)
		emit(events.Ended, q.ExternalID, withProduct)
		return res
	}

	l, err := extract.ExtractHTML(bytes.NewReader(page.Body), page.URL, &q)
	if err != nil {
		fail(q.ExternalID, fmt.Errorf("extract: %w", err))
		return nil
	}
	if l.ExternalID == "" {
		emit(events.Dropped, q.ExternalID, func(e *events.Event) { e.Reason = models.DropMissingID })
		return nil
	}

	if reason := filter.ShouldDrop(l); reason != models.DropNone {
		emit(events.Dropped, l.ExternalID, func(e *events.Event) { e.Reason = reason })
		return nil
	}

	res, err := p.ingest.Ingest(ctx, l)
	if err != nil {
		fail(l.ExternalID, err)
		return nil
	}

	withProduct := func(e *events.Event) { e.ProductID = res.ProductID }
	emit(events.Processed, l.ExternalID, withProduct)
	if l.Ended {
		emit(events.Ended, l.ExternalID, withProduct)
	}
	if res.PriceAppended {
		emit(events.PriceAppended, l.ExternalID, withProduct)
	}
	if !res.CategoryResolved && l.BreadcrumbCategory != "" {
		emit(events.CategoryMiss, l.ExternalID, func(e *events.Event) {
			e.ProductID = res.ProductID
			e.Message = l.BreadcrumbCategory
		})
	}
	return res
}
