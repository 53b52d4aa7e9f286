package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"price_tracker/models"
	"price_tracker/storage"
)

const maxIngestAttempts = 3

var ErrMissingExternalID = errors.New("listing has no external id")

// CategoryResolver maps a breadcrumb path to a category id. A nil id is a miss.
type CategoryResolver interface {
	Resolve(ctx context.Context, breadcrumb string) (*int64, error)
}

// TxRunner opens catalog transactions.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx storage.CatalogTx) error) error
}

// IngestService reconciles one extracted listing with the stored product and
// its price history. Each call is a single transaction.
type IngestService struct {
	store    TxRunner
	resolver CategoryResolver
	now      func() time.Time
	loc      *time.Location
}

func NewIngestService(store TxRunner, resolver CategoryResolver) *IngestService {
	return &IngestService{
		store:    store,
		resolver: resolver,
		now:      time.Now,
		loc:      time.UTC,
	}
}

// WithClock replaces the time source. Used by tests and backfills.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

// WithLocation sets the zone whose calendar day governs duplicate suppression.
func (s *IngestService) WithLocation(loc *time.Location) *IngestService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// IngestResult describes what one ingest changed.
type IngestResult struct {
	ProductID        int64
	IsNew            bool
	PriceAppended    bool
	CategoryResolved bool
	Attempts         int
}

// Ingest upserts the product for l and appends a price row unless the latest
// row already records the same price on the same calendar day.
func (s *IngestService) Ingest(ctx context.Context, l *models.ExtractedListing) (*IngestResult, error) {
	if l == nil || l.ExternalID == "" {
		return nil, ErrMissingExternalID
	}

	categoryID := s.resolveCategory(ctx, l)

	var result *IngestResult
	var err error
	for attempt := 1; attempt <= maxIngestAttempts; attempt++ {
		result, err = s.ingestOnce(ctx, l, categoryID)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("ingest %s: gave up after %d attempts: %w", l.ExternalID, maxIngestAttempts, err)
}

func (s *IngestService) resolveCategory(ctx context.Context, l *models.ExtractedListing) *int64 {
	if s.resolver == nil || l.BreadcrumbCategory == "" {
		return nil
	}
	id, err := s.resolver.Resolve(ctx, l.BreadcrumbCategory)
	if err != nil {
		log.Printf("Ingest: category lookup failed for %s: %v", l.ExternalID, err)
		return nil
	}
	return id
}

func (s *IngestService) ingestOnce(ctx context.Context, l *models.ExtractedListing, categoryID *int64) (*IngestResult, error) {
	result := &IngestResult{CategoryResolved: categoryID != nil}
	now := s.now()

	err := s.store.WithTx(ctx, func(tx storage.CatalogTx) error {
		product, err := tx.LockProduct(ctx, l.ExternalID)
		if err != nil {
			return err
		}

		if product == nil {
			product = &models.Product{CreatedAt: now}
			product.ApplyListing(l)
			product.CategoryID = categoryID
			product.UpdatedAt = now
			if err := tx.InsertProduct(ctx, product); err != nil {
				return err
			}
			result.IsNew = true
		} else {
			product.ApplyListing(l)
			if categoryID != nil {
				product.CategoryID = categoryID
			}
			product.UpdatedAt = now
			if err := tx.UpdateProduct(ctx, product); err != nil {
				return err
			}
		}
		result.ProductID = product.ID

		latest, err := tx.LatestPrice(ctx, product.ID)
		if err != nil {
			return err
		}
		if IsDuplicatePrice(latest, l.Price, now, s.loc) {
			return nil
		}

		if err := tx.InsertPrice(ctx, models.PriceFromListing(product.ID, l, now)); err != nil {
			return err
		}
		result.PriceAppended = true
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("ingest %s: %w", l.ExternalID, err)
	}
	return result, nil
}

// MarkEnded flags the stored product for externalID as ended without touching
// its other fields or its price history. It returns ErrProductNotFound when
// nothing is stored under externalID.
func (s *IngestService) MarkEnded(ctx context.Context, externalID string) (*IngestResult, error) {
	if externalID == "" {
		return nil, ErrMissingExternalID
	}

	result := &IngestResult{Attempts: 1}
	now := s.now()
	err := s.store.WithTx(ctx, func(tx storage.CatalogTx) error {
		product, err := tx.LockProduct(ctx, externalID)
		if err != nil {
			return err
		}
		if product == nil {
			return ErrProductNotFound
		}
		result.ProductID = product.ID
		result.CategoryResolved = product.CategoryID != nil
		if product.Ended {
			return nil
		}

		product.Ended = true
		product.TimeRemaining = nil
		product.UpdatedAt = now
		return tx.UpdateProduct(ctx, product)
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("mark ended %s: %w", externalID, err)
	}
	return result, nil
}

// IsDuplicatePrice reports whether latest already records price on the same
// calendar day as now, in loc.
func IsDuplicatePrice(latest *models.PriceHistory, price float64, now time.Time, loc *time.Location) bool {
	if latest == nil {
		return false
	}
	return samePrice(latest.Price, price) && sameDay(latest.DateScraped, now, loc)
}

func samePrice(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
