package services

import (
	"context"
	"sort"
	"sync"

	"price_tracker/models"
	"price_tracker/storage"
)

// memStore is an in-memory catalog. A failed transaction restores the state
// it started from.
type memStore struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	prices    []models.PriceHistory
	nextID    int64
	conflicts int // InsertProduct fails with ErrConflict this many times
	txs       int
}

func newMemStore() *memStore {
	return &memStore{products: make(map[string]*models.Product)}
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx storage.CatalogTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++

	products := make(map[string]*models.Product, len(s.products))
	for k, p := range s.products {
		cp := *p
		products[k] = &cp
	}
	prices := append([]models.PriceHistory(nil), s.prices...)
	nextID := s.nextID

	if err := fn(memTx{s}); err != nil {
		s.products, s.prices, s.nextID = products, prices, nextID
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t memTx) LockProduct(ctx context.Context, externalID string) (*models.Product, error) {
	p, ok := t.s.products[externalID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (t memTx) InsertProduct(ctx context.Context, p *models.Product) error {
	if t.s.conflicts > 0 {
		t.s.conflicts--
		return storage.ErrConflict
	}
	if _, ok := t.s.products[p.ExternalID]; ok {
		return storage.ErrConflict
	}
	t.s.nextID++
	p.ID = t.s.nextID
	cp := *p
	t.s.products[p.ExternalID] = &cp
	return nil
}

func (t memTx) UpdateProduct(ctx context.Context, p *models.Product) error {
	cp := *p
	t.s.products[p.ExternalID] = &cp
	return nil
}

func (t memTx) LatestPrice(ctx context.Context, productID int64) (*models.PriceHistory, error) {
	var latest *models.PriceHistory
	for i := range t.s.prices {
		ph := t.s.prices[i]
		if ph.ProductID != productID {
			continue
		}
		if latest == nil || !ph.DateScraped.Before(latest.DateScraped) {
			cp := ph
			latest = &cp
		}
	}
	return latest, nil
}

func (t memTx) InsertPrice(ctx context.Context, ph *models.PriceHistory) error {
	ph.ID = int64(len(t.s.prices) + 1)
	t.s.prices = append(t.s.prices, *ph)
	return nil
}

func (s *memStore) ListProducts(ctx context.Context, f storage.ProductFilter) ([]models.ProductSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProductSnapshot
	for _, p := range s.products {
		if f.Ended != nil && p.Ended != *f.Ended {
			continue
		}
		out = append(out, s.snapshot(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetProduct(ctx context.Context, id int64) (*models.ProductSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			snap := s.snapshot(p)
			return &snap, nil
		}
	}
	return nil, nil
}

func (s *memStore) PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PriceHistory
	for _, ph := range s.prices {
		if ph.ProductID == productID {
			out = append(out, ph)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateScraped.Before(out[j].DateScraped) })
	return out, nil
}

func (s *memStore) snapshot(p *models.Product) models.ProductSnapshot {
	snap := models.ProductSnapshot{Product: *p}
	if latest, _ := (memTx{s}).LatestPrice(context.Background(), p.ID); latest != nil {
		price, at := latest.Price, latest.DateScraped
		snap.LastPrice = &price
		snap.LastScraped = &at
	}
	return snap
}

func (s *memStore) priceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prices)
}

type stubResolver struct {
	ids map[string]int64
	err error
}

func (r stubResolver) Resolve(ctx context.Context, breadcrumb string) (*int64, error) {
	if r.err != nil {
		return nil, r.err
	}
	if id, ok := r.ids[breadcrumb]; ok {
		return &id, nil
	}
	return nil, nil
}
