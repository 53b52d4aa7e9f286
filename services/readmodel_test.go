package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"price_tracker/models"
)

func TestComputeTrend(t *testing.T) {
	tests := []struct {
		prices []float64
		want   Trend
	}{
		{[]float64{10, 10.5}, TrendStable},
		{[]float64{10, 11}, TrendUp},
		{[]float64{10, 9}, TrendDown},
		{[]float64{10}, TrendStable},
		{nil, TrendStable},
		{[]float64{10, 20, 10.2}, TrendStable},
		{[]float64{0, 5}, TrendStable},
	}
	for _, tt := range tests {
		if got, _ := ComputeTrend(tt.prices); got != tt.want {
			t.Fatalf("%v: expected %s, got %s", tt.prices, tt.want, got)
		}
	}

	_, variation := ComputeTrend([]float64{10, 11})
	if round2(variation) != 10 {
		t.Fatalf("expected variation 10, got %f", variation)
	}
}

func TestBuildHistoryEmpty(t *testing.T) {
	view := BuildHistory(nil, time.UTC)
	if view.Dates == nil || view.Prices == nil {
		t.Fatalf("expected empty arrays, got nil")
	}
	if len(view.Dates) != 0 || view.Trend != TrendStable {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Stats != (HistoryStats{}) {
		t.Fatalf("expected zero stats, got %+v", view.Stats)
	}
}

func TestBuildHistoryStats(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := []models.PriceHistory{
		{Price: 20, DateScraped: base},
		{Price: 10, DateScraped: base.AddDate(0, 0, 10)},
		{Price: 30, DateScraped: base.AddDate(0, 0, 14)},
		{Price: 24, DateScraped: base.AddDate(0, 0, 17)},
	}

	view := BuildHistory(rows, time.UTC)
	if len(view.Dates) != 4 || view.Dates[0] != "2024-01-01" || view.Dates[3] != "2024-01-18" {
		t.Fatalf("unexpected dates %v", view.Dates)
	}
	if view.Stats.AvgPrice != 21 || view.Stats.MinPrice != 10 || view.Stats.MaxPrice != 30 {
		t.Fatalf("unexpected stats %+v", view.Stats)
	}
	// rows on days 10, 14 and 17 fall within 7 days of the latest
	if view.Stats.SevenDayAvg != 21.33 {
		t.Fatalf("expected seven day avg 21.33, got %f", view.Stats.SevenDayAvg)
	}
	if view.Stats.Variation != 20 || view.Trend != TrendUp {
		t.Fatalf("expected +20%% up, got %f %s", view.Stats.Variation, view.Trend)
	}
}

func seededReadModel(t *testing.T) (*ReadModel, *memStore) {
	t.Helper()
	store := newMemStore()
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewIngestService(store, nil).WithClock(c.now)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, sampleListing()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	c.t = c.t.AddDate(0, 0, 2)
	l := sampleListing()
	l.Price = 25
	if _, err := svc.Ingest(ctx, l); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	ended := sampleListing()
	ended.ExternalID = "999"
	ended.Ended = true
	if _, err := svc.Ingest(ctx, ended); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return NewReadModel(store, time.UTC), store
}

func TestReadModelProduct(t *testing.T) {
	rm, _ := seededReadModel(t)
	ctx := context.Background()

	v, err := rm.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if v.ItemID != "123456789012" || v.Price == nil || *v.Price != 25 {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.LastScrapedDate == nil || *v.LastScrapedDate != "2024-03-03" {
		t.Fatalf("unexpected last scraped %v", v.LastScrapedDate)
	}
	if v.Status != "active" || v.InBox == nil || !*v.InBox {
		t.Fatalf("unexpected status fields %+v", v)
	}

	if _, err := rm.GetProduct(ctx, 42); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReadModelLastPrice(t *testing.T) {
	rm, _ := seededReadModel(t)
	ctx := context.Background()

	price, err := rm.LastPrice(ctx, 1)
	if err != nil || price == nil || *price != 25 {
		t.Fatalf("expected last price 25, got %v (%v)", price, err)
	}
	day, err := rm.LastScrapedDate(ctx, 1)
	if err != nil || day == nil || *day != "2024-03-03" {
		t.Fatalf("expected 2024-03-03, got %v (%v)", day, err)
	}
	if _, err := rm.LastPrice(ctx, 42); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReadModelListByStatus(t *testing.T) {
	rm, _ := seededReadModel(t)
	ctx := context.Background()

	all, err := rm.ListProducts(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 products, got %d (%v)", len(all), err)
	}
	ended, _ := rm.ListProducts(ctx, models.StatusEnded)
	if len(ended) != 1 || ended[0].ItemID != "999" {
		t.Fatalf("unexpected ended list %+v", ended)
	}
	active, _ := rm.ListProducts(ctx, models.StatusActive)
	if len(active) != 1 || active[0].ItemID != "123456789012" {
		t.Fatalf("unexpected active list %+v", active)
	}
	if _, err := rm.ListProducts(ctx, "sold"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestReadModelHistoryAndTrend(t *testing.T) {
	rm, _ := seededReadModel(t)
	ctx := context.Background()

	h, err := rm.History(ctx, 1)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(h.Prices) != 2 || h.Prices[0] != 19.99 || h.Prices[1] != 25 {
		t.Fatalf("unexpected prices %v", h.Prices)
	}
	if h.Trend != TrendUp {
		t.Fatalf("expected up, got %s", h.Trend)
	}

	tv, err := rm.PriceTrend(ctx, 2)
	if err != nil || tv.Trend != TrendStable || tv.Variation != 0 {
		t.Fatalf("expected stable single point, got %+v (%v)", tv, err)
	}
	if _, err := rm.History(ctx, 42); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReadModelArchivedImageURL(t *testing.T) {
	rm, store := seededReadModel(t)
	key := "images/ab/abcdef.jpg"
	store.products["123456789012"].ImageKey = &key
	rm.WithImageURL(func(k string) string { return "https://cdn.example.com/" + k })

	v, err := rm.GetProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if v.ArchivedImageURL == nil || *v.ArchivedImageURL != "https://cdn.example.com/images/ab/abcdef.jpg" {
		t.Fatalf("unexpected archived url %v", v.ArchivedImageURL)
	}

	other, _ := rm.GetProduct(context.Background(), 2)
	if other.ArchivedImageURL != nil {
		t.Fatalf("expected no archived url without a key")
	}
}
