package models

type ListingType string

const (
	ListingFixedPrice     ListingType = "fixed_price"
	ListingAuction        ListingType = "auction"
	ListingAuctionWithBIN ListingType = "auction_with_bin"
)

// IsAuction reports whether bids and time remaining apply.
func (t ListingType) IsAuction() bool {
	return t == ListingAuction || t == ListingAuctionWithBIN
}

type Condition string

const (
	ConditionNew  Condition = "New"
	ConditionUsed Condition = "Used"
)

type DropReason string

const (
	DropNone            DropReason = ""
	DropPageUnavailable DropReason = "page_unavailable"
	DropMultiVariation  DropReason = "multi_variation"
	DropMultiFigure     DropReason = "multi_figure"
	DropBundle          DropReason = "bundle"
	DropMissingID       DropReason = "missing_id"
)

// QueuedListing is what a search results page tells us about an item
// before its detail page is fetched.
type QueuedListing struct {
	ExternalID   string  `json:"external_id"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	RawCondition string  `json:"raw_condition"`
	URL          string  `json:"url"`
	ImageURL     string  `json:"image_url"`
}

// ExtractedListing is the normalized result of parsing one detail page.
// It lives only for the duration of a single pipeline pass.
type ExtractedListing struct {
	ExternalID          string      `json:"external_id"`
	URL                 string      `json:"url"`
	Title               string      `json:"title"`
	RawCondition        string      `json:"raw_condition"`
	NormalizedCondition Condition   `json:"normalized_condition"`
	Signed              bool        `json:"signed"`
	InBox               bool        `json:"in_box"`
	ListingType         ListingType `json:"listing_type"`
	Price               float64     `json:"price"`
	BuyItNowPrice       *float64    `json:"buy_it_now_price,omitempty"`
	BidsCount           *int        `json:"bids_count,omitempty"`
	TimeRemaining       *string     `json:"time_remaining,omitempty"`
	Ended               bool        `json:"ended"`
	SellerUsername      string      `json:"seller_username"`
	ImageURL            string      `json:"image_url"`
	BreadcrumbCategory  string      `json:"breadcrumb_category"`
	EPID                string      `json:"epid,omitempty"`
	MultiVariation      bool        `json:"multi_variation"`
}
