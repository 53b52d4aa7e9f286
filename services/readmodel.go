package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"price_tracker/models"
	"price_tracker/storage"
)

const (
	dateLayout     = "2006-01-02"
	trendThreshold = 3.0
	recentWindow   = 7 * 24 * time.Hour
)

var ErrProductNotFound = errors.New("product not found")

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// ReadStore is the read side of the catalog.
type ReadStore interface {
	ListProducts(ctx context.Context, f storage.ProductFilter) ([]models.ProductSnapshot, error)
	GetProduct(ctx context.Context, id int64) (*models.ProductSnapshot, error)
	PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistory, error)
}

// ProductView is the API shape of a product.
type ProductView struct {
	ProductID           int64    `json:"product_id"`
	ItemID              string   `json:"item_id"`
	Title               string   `json:"title"`
	ItemCondition       string   `json:"item_condition"`
	NormalizedCondition string   `json:"normalized_condition"`
	Signed              bool     `json:"signed"`
	InBox               *bool    `json:"in_box"`
	URL                 string   `json:"url"`
	ImageURL            string   `json:"image_url"`
	SellerUsername      string   `json:"seller_username"`
	Ended               bool     `json:"ended"`
	Status              string   `json:"status"`
	ListingType         string   `json:"listing_type"`
	BidsCount           *int     `json:"bids_count"`
	TimeRemaining       *string  `json:"time_remaining"`
	Price               *float64 `json:"price"`
	LastScrapedDate     *string  `json:"last_scraped_date"`
	BuyItNowPrice       *float64 `json:"buy_it_now_price"`
	CategoryName        *string  `json:"category_name"`
	EPID                *string  `json:"epid"`
	ArchivedImageURL    *string  `json:"archived_image_url"`
}

type HistoryStats struct {
	AvgPrice    float64 `json:"avg_price"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	Variation   float64 `json:"variation"`
	SevenDayAvg float64 `json:"seven_day_avg"`
}

// PriceHistoryView is the chart payload: parallel date and price arrays, oldest first.
type PriceHistoryView struct {
	Dates  []string     `json:"dates"`
	Prices []float64    `json:"prices"`
	Stats  HistoryStats `json:"stats"`
	Trend  Trend        `json:"trend"`
}

type TrendView struct {
	Trend     Trend   `json:"trend"`
	Variation float64 `json:"variation"`
}

// ReadModel derives the read-time fields the API serves.
type ReadModel struct {
	store    ReadStore
	loc      *time.Location
	imageURL func(key string) string
}

func NewReadModel(store ReadStore, loc *time.Location) *ReadModel {
	if loc == nil {
		loc = time.UTC
	}
	return &ReadModel{store: store, loc: loc}
}

// WithImageURL resolves archived image keys to public URLs.
func (m *ReadModel) WithImageURL(fn func(key string) string) *ReadModel {
	m.imageURL = fn
	return m
}

func (m *ReadModel) ListProducts(ctx context.Context, status models.ProductStatus) ([]ProductView, error) {
	var f storage.ProductFilter
	switch status {
	case "":
	case models.StatusActive:
		ended := false
		f.Ended = &ended
	case models.StatusEnded:
		ended := true
		f.Ended = &ended
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}

	snaps, err := m.store.ListProducts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	views := make([]ProductView, 0, len(snaps))
	for i := range snaps {
		views = append(views, m.view(&snaps[i]))
	}
	return views, nil
}

func (m *ReadModel) GetProduct(ctx context.Context, id int64) (*ProductView, error) {
	snap, err := m.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	if snap == nil {
		return nil, ErrProductNotFound
	}
	v := m.view(snap)
	return &v, nil
}

// LastPrice returns the most recent recorded price, or nil without history.
func (m *ReadModel) LastPrice(ctx context.Context, id int64) (*float64, error) {
	latest, err := m.latest(ctx, id)
	if err != nil || latest == nil {
		return nil, err
	}
	price := latest.Price
	return &price, nil
}

// LastScrapedDate returns the day of the most recent price row as YYYY-MM-DD.
func (m *ReadModel) LastScrapedDate(ctx context.Context, id int64) (*string, error) {
	latest, err := m.latest(ctx, id)
	if err != nil || latest == nil {
		return nil, err
	}
	day := latest.DateScraped.In(m.loc).Format(dateLayout)
	return &day, nil
}

func (m *ReadModel) latest(ctx context.Context, id int64) (*models.PriceHistory, error) {
	rows, err := m.history(ctx, id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[len(rows)-1], nil
}

// History returns the price series for a known product. A product without
// rows yields empty arrays, not an error.
func (m *ReadModel) History(ctx context.Context, id int64) (*PriceHistoryView, error) {
	rows, err := m.history(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildHistory(rows, m.loc), nil
}

func (m *ReadModel) PriceTrend(ctx context.Context, id int64) (*TrendView, error) {
	rows, err := m.history(ctx, id)
	if err != nil {
		return nil, err
	}
	prices := make([]float64, len(rows))
	for i, r := range rows {
		prices[i] = r.Price
	}
	trend, variation := ComputeTrend(prices)
	return &TrendView{Trend: trend, Variation: variation}, nil
}

func (m *ReadModel) history(ctx context.Context, id int64) ([]models.PriceHistory, error) {
	snap, err := m.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	if snap == nil {
		return nil, ErrProductNotFound
	}
	rows, err := m.store.PriceHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("price history %d: %w", id, err)
	}
	return rows, nil
}

func (m *ReadModel) view(s *models.ProductSnapshot) ProductView {
	inBox := s.InBox
	v := ProductView{
		ProductID:           s.ID,
		ItemID:              s.ExternalID,
		Title:               s.Title,
		ItemCondition:       s.RawCondition,
		NormalizedCondition: string(s.NormalizedCondition),
		Signed:              s.Signed,
		InBox:               &inBox,
		URL:                 s.URL,
		ImageURL:            s.ImageURL,
		SellerUsername:      s.SellerUsername,
		Ended:               s.Ended,
		Status:              string(s.Status()),
		ListingType:         string(s.ListingType),
		BidsCount:           s.BidsCount,
		TimeRemaining:       s.TimeRemaining,
		Price:               s.LastPrice,
		BuyItNowPrice:       s.BuyItNowPrice,
		CategoryName:        s.CategoryName,
		EPID:                s.EPID,
	}
	if s.ImageKey != nil && m.imageURL != nil {
		u := m.imageURL(*s.ImageKey)
		v.ArchivedImageURL = &u
	}
	if s.LastScraped != nil {
		day := s.LastScraped.In(m.loc).Format(dateLayout)
		v.LastScrapedDate = &day
	}
	return v
}

// ComputeTrend compares the first and last price. Moves beyond 3% either
// way are up or down; fewer than two points is stable.
func ComputeTrend(prices []float64) (Trend, float64) {
	if len(prices) < 2 {
		return TrendStable, 0
	}
	variation := percentChange(prices[0], prices[len(prices)-1])
	switch {
	case variation > trendThreshold:
		return TrendUp, variation
	case variation < -trendThreshold:
		return TrendDown, variation
	default:
		return TrendStable, variation
	}
}

// BuildHistory turns ascending price rows into the chart payload.
func BuildHistory(rows []models.PriceHistory, loc *time.Location) *PriceHistoryView {
	if loc == nil {
		loc = time.UTC
	}
	view := &PriceHistoryView{
		Dates:  make([]string, 0, len(rows)),
		Prices: make([]float64, 0, len(rows)),
		Trend:  TrendStable,
	}
	if len(rows) == 0 {
		return view
	}

	minPrice, maxPrice, sum := rows[0].Price, rows[0].Price, 0.0
	for _, r := range rows {
		view.Dates = append(view.Dates, r.DateScraped.In(loc).Format(dateLayout))
		view.Prices = append(view.Prices, r.Price)
		sum += r.Price
		minPrice = math.Min(minPrice, r.Price)
		maxPrice = math.Max(maxPrice, r.Price)
	}

	latest := rows[len(rows)-1].DateScraped
	cutoff := latest.Add(-recentWindow)
	recentSum, recentN := 0.0, 0
	for _, r := range rows {
		if !r.DateScraped.Before(cutoff) {
			recentSum += r.Price
			recentN++
		}
	}

	trend, variation := ComputeTrend(view.Prices)
	view.Trend = trend
	view.Stats = HistoryStats{
		AvgPrice:    round2(sum / float64(len(rows))),
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
		Variation:   round2(variation),
		SevenDayAvg: round2(recentSum / float64(recentN)),
	}
	return view
}

func percentChange(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
