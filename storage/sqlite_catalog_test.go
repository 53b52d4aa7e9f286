package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"price_tracker/models"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func testProduct(externalID string, at time.Time) *models.Product {
	return &models.Product{
		ExternalID:          externalID,
		URL:                 "https://www.ebay.com/itm/" + externalID,
		Title:               "Funko Pop Batman #01",
		NormalizedCondition: models.ConditionNew,
		InBox:               true,
		ListingType:         models.ListingFixedPrice,
		ImageURL:            "https://i.ebayimg.com/1.jpg",
		CreatedAt:           at,
		UpdatedAt:           at,
	}
}

func TestSQLiteCatalogIngestRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	err := c.WithTx(ctx, func(tx CatalogTx) error {
		existing, err := tx.LockProduct(ctx, "100")
		if err != nil {
			return err
		}
		if existing != nil {
			t.Fatalf("expected no product yet, got %+v", existing)
		}

		p := testProduct("100", day)
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		if p.ID == 0 {
			t.Fatal("insert should set id")
		}

		latest, err := tx.LatestPrice(ctx, p.ID)
		if err != nil {
			return err
		}
		if latest != nil {
			t.Fatalf("expected no price yet, got %+v", latest)
		}
		if err := tx.InsertPrice(ctx, &models.PriceHistory{ProductID: p.ID, Price: 10, DateScraped: day}); err != nil {
			return err
		}
		return tx.InsertPrice(ctx, &models.PriceHistory{ProductID: p.ID, Price: 12.5, DateScraped: day.Add(24 * time.Hour)})
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	products, err := c.ListProducts(ctx, ProductFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	snap := products[0]
	if snap.LastPrice == nil || *snap.LastPrice != 12.5 {
		t.Fatalf("expected last price 12.5, got %v", snap.LastPrice)
	}
	if snap.LastScraped == nil || !snap.LastScraped.Equal(day.Add(24*time.Hour)) {
		t.Fatalf("unexpected last scraped %v", snap.LastScraped)
	}
	if !snap.CreatedAt.Equal(day) {
		t.Fatalf("created_at round trip: got %v", snap.CreatedAt)
	}

	history, err := c.PriceHistory(ctx, snap.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Price != 10 || history[1].Price != 12.5 {
		t.Fatalf("unexpected history %+v", history)
	}

	err = c.WithTx(ctx, func(tx CatalogTx) error {
		latest, err := tx.LatestPrice(ctx, snap.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.Price != 12.5 {
			t.Fatalf("expected latest 12.5, got %+v", latest)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestSQLiteCatalogInsertConflict(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now()

	if err := c.WithTx(ctx, func(tx CatalogTx) error {
		return tx.InsertProduct(ctx, testProduct("200", now))
	}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := c.WithTx(ctx, func(tx CatalogTx) error {
		return tx.InsertProduct(ctx, testProduct("200", now))
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSQLiteCatalogRollback(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := c.WithTx(ctx, func(tx CatalogTx) error {
		if err := tx.InsertProduct(ctx, testProduct("300", time.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	products, err := c.ListProducts(ctx, ProductFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("rolled back insert should leave no rows, got %d", len(products))
	}
}

func TestSQLiteCatalogFilterAndGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now()

	var endedID int64
	err := c.WithTx(ctx, func(tx CatalogTx) error {
		if err := tx.InsertProduct(ctx, testProduct("400", now)); err != nil {
			return err
		}
		p := testProduct("401", now)
		p.Ended = true
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		endedID = p.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ended := true
	got, err := c.ListProducts(ctx, ProductFilter{Ended: &ended})
	if err != nil {
		t.Fatalf("list ended: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "401" {
		t.Fatalf("unexpected ended products %+v", got)
	}

	active := false
	got, err = c.ListProducts(ctx, ProductFilter{Ended: &active})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "400" {
		t.Fatalf("unexpected active products %+v", got)
	}

	snap, err := c.GetProduct(ctx, endedID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap == nil || !snap.Ended || snap.LastPrice != nil || snap.LastScraped != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	missing, err := c.GetProduct(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing product, got %v, %v", missing, err)
	}
}

func TestSQLiteCatalogCategories(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	parent := int64(220)

	cats := []models.Category{
		{CategoryID: 220, Name: "Toys & Hobbies"},
		{CategoryID: 261068, Name: "Action Figure", ParentID: &parent, Level: 1},
	}
	if err := c.UpsertCategories(ctx, cats); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	cats[1].Name = "Action Figures"
	if err := c.UpsertCategories(ctx, cats[1:]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := c.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got))
	}
	if got[1].Name != "Action Figures" || got[1].ParentID == nil || *got[1].ParentID != 220 {
		t.Fatalf("unexpected category %+v", got[1])
	}
}

func TestSQLiteCatalogWorkerQueries(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	var id int64
	err := c.WithTx(ctx, func(tx CatalogTx) error {
		p := testProduct("500", old)
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		id = p.ID
		return tx.InsertProduct(ctx, testProduct("501", time.Now()))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	stale, err := c.StaleActiveProducts(ctx, 24*time.Hour, 10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != id {
		t.Fatalf("expected only the old product, got %+v", stale)
	}

	missing, err := c.ProductsMissingImage(ctx, 10)
	if err != nil {
		t.Fatalf("missing image: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 products without image key, got %d", len(missing))
	}

	if err := c.SetImageKey(ctx, id, "media/500/abc.jpg"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	missing, err = c.ProductsMissingImage(ctx, 10)
	if err != nil {
		t.Fatalf("missing image: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("expected 1 product without image key, got %d", len(missing))
	}
}
