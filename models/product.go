package models

import "time"

type ProductStatus string

const (
	StatusActive ProductStatus = "active"
	StatusEnded  ProductStatus = "ended"
)

type Category struct {
	CategoryID int64  `json:"category_id" db:"category_id"`
	Name       string `json:"name" db:"name"`
	ParentID   *int64 `json:"parent_id" db:"parent_id"`
	Level      int    `json:"level" db:"level"`
}

// Product is the persisted identity of one marketplace item.
// Mutable fields are overwritten on every ingest.
type Product struct {
	ID                  int64       `json:"id" db:"id"`
	ExternalID          string      `json:"external_id" db:"external_id"`
	URL                 string      `json:"url" db:"url"`
	Title               string      `json:"title" db:"title"`
	RawCondition        string      `json:"raw_condition" db:"raw_condition"`
	NormalizedCondition Condition   `json:"normalized_condition" db:"normalized_condition"`
	Signed              bool        `json:"signed" db:"signed"`
	InBox               bool        `json:"in_box" db:"in_box"`
	ListingType         ListingType `json:"listing_type" db:"listing_type"`
	BidsCount           *int        `json:"bids_count" db:"bids_count"`
	TimeRemaining       *string     `json:"time_remaining" db:"time_remaining"`
	BuyItNowPrice       *float64    `json:"buy_it_now_price" db:"buy_it_now_price"`
	Ended               bool        `json:"ended" db:"ended"`
	SellerUsername      string      `json:"seller_username" db:"seller_username"`
	ImageURL            string      `json:"image_url" db:"image_url"`
	ImageKey            *string     `json:"image_key" db:"image_key"`
	BreadcrumbCategory  string      `json:"breadcrumb_category" db:"breadcrumb_category"`
	CategoryID          *int64      `json:"category_id" db:"category_id"`
	EPID                *string     `json:"epid" db:"epid"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// Status derives the API status from the ended flag.
func (p *Product) Status() ProductStatus {
	if p.Ended {
		return StatusEnded
	}
	return StatusActive
}

// ApplyListing overwrites the mutable fields from a fresh extraction.
// CategoryID, EPID and ImageKey are only replaced when the caller has a value.
func (p *Product) ApplyListing(l *ExtractedListing) {
	p.ExternalID = l.ExternalID
	p.URL = l.URL
	p.Title = l.Title
	p.RawCondition = l.RawCondition
	p.NormalizedCondition = l.NormalizedCondition
	p.Signed = l.Signed
	p.InBox = l.InBox
	p.ListingType = l.ListingType
	p.BidsCount = l.BidsCount
	p.TimeRemaining = l.TimeRemaining
	p.BuyItNowPrice = l.BuyItNowPrice
	p.Ended = l.Ended
	p.SellerUsername = l.SellerUsername
	p.ImageURL = l.ImageURL
	p.BreadcrumbCategory = l.BreadcrumbCategory
	if l.EPID != "" {
		epid := l.EPID
		p.EPID = &epid
	}
}

type PriceHistory struct {
	ID            int64     `json:"id" db:"id"`
	ProductID     int64     `json:"product_id" db:"product_id"`
	Price         float64   `json:"price" db:"price"`
	BuyItNowPrice *float64  `json:"buy_it_now_price" db:"buy_it_now_price"`
	BidsCount     *int      `json:"bids_count" db:"bids_count"`
	TimeRemaining *string   `json:"time_remaining" db:"time_remaining"`
	DateScraped   time.Time `json:"date_scraped" db:"date_scraped"`
}

// PriceFromListing builds the history row an ingest would append.
func PriceFromListing(productID int64, l *ExtractedListing, at time.Time) *PriceHistory {
	return &PriceHistory{
		ProductID:     productID,
		Price:         l.Price,
		BuyItNowPrice: l.BuyItNowPrice,
		BidsCount:     l.BidsCount,
		TimeRemaining: l.TimeRemaining,
		DateScraped:   at,
	}
}

// ProductSnapshot is a product joined with its most recent price row.
type ProductSnapshot struct {
	Product
	CategoryName *string    `json:"category_name" db:"category_name"`
	LastPrice    *float64   `json:"last_price" db:"last_price"`
	LastScraped  *time.Time `json:"last_scraped" db:"last_scraped"`
}
