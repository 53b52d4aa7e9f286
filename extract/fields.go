package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"price_tracker/models"
)

var (
	endedPhrases = []string{
		"this listing sold on",
		"bidding ended on",
		"this listing was ended by the seller",
		"item sold on",
	}
	titleSuffixRegex = regexp.MustCompile(`(?i)\s*\|\s*ebay\s*$`)
	titlePrefixes    = []string{"New Listing", "New listing", "Sponsored"}
	digitsRegex      = regexp.MustCompile(`\d+`)
)

// Ended reports a closed listing from the status message region. Default false.
func Ended(doc *goquery.Document) bool {
	msg := strings.ToLower(collapse(doc.Find(`div[data-testid="d-statusmessage"]`).Text()))
	if msg == "" {
		return false
	}
	for _, phrase := range endedPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// Title falls back to og:title then <title>. Default "".
func Title(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := CleanTitle(content); t != "" {
			return t
		}
	}
	return CleanTitle(doc.Find("title").First().Text())
}

// CleanTitle strips results-page badges and the trailing site suffix.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(title, prefix) {
			title = strings.TrimSpace(strings.TrimPrefix(title, prefix))
			break
		}
	}
	title = titleSuffixRegex.ReplaceAllString(title, "")
	return collapse(title)
}

// RawCondition reads the detail page condition label. Default "".
func RawCondition(doc *goquery.Document) string {
	if s := doc.Find(`div[data-testid="x-item-condition"] .ux-textspans`).First(); s.Length() > 0 {
		if text := collapse(s.Text()); text != "" {
			return text
		}
	}
	return collapse(doc.Find(".x-item-condition-text").First().Text())
}

// Price reads the primary price block, then the itemprop meta. Default 0.
func Price(doc *goquery.Document) float64 {
	if text := doc.Find(`div[data-testid="x-price-primary"] .ux-textspans`).First().Text(); text != "" {
		if p, ok := ParsePrice(text); ok {
			return p
		}
	}
	if content, ok := doc.Find(`meta[itemprop="price"]`).First().Attr("content"); ok {
		if p, ok := ParsePrice(content); ok {
			return p
		}
	}
	return 0
}

// ImageURL reads og:image. Default "".
func ImageURL(doc *goquery.Document) string {
	content, _ := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

// Seller reads the first non-empty of the two seller regions. Default "".
func Seller(doc *goquery.Document) string {
	if name := collapse(doc.Find("span.mbg-nw").First().Text()); name != "" {
		return name
	}
	return collapse(doc.Find(`div[class*="info__about-seller"] a span`).First().Text())
}

// ListingType classifies the buy controls. Default fixed_price.
func ListingType(doc *goquery.Document) models.ListingType {
	bid := doc.Find(`[id^="bidBtn_btn"]`).Length() > 0
	countdown := doc.Find(`[id*="vi-cdown"]`).Length() > 0
	if !bid && !countdown {
		return models.ListingFixedPrice
	}
	if doc.Find(`[id^="binBtn_btn"]`).Length() > 0 {
		return models.ListingAuctionWithBIN
	}
	return models.ListingAuction
}

// BidsCount reads the first integer in the bid count region. Default 0.
func BidsCount(doc *goquery.Document) int {
	var count int
	doc.Find(`div[data-testid="x-bid-count"] span`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		match := digitsRegex.FindString(s.Text())
		if match == "" {
			return true
		}
		if n, err := strconv.Atoi(match); err == nil {
			count = n
		}
		return false
	})
	return count
}

// TimeRemaining reads the countdown text. Two or more timer nodes carry the
// value in the second; a single node carries an "Ends in" prefix. Default nil.
func TimeRemaining(doc *goquery.Document) *string {
	var texts []string
	doc.Find(".ux-timer__text").Each(func(i int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})

	var value string
	switch {
	case len(texts) >= 2:
		value = strings.TrimSpace(texts[1])
	case len(texts) == 1:
		value = strings.TrimSpace(strings.Replace(texts[0], "Ends in", "", 1))
	default:
		return nil
	}
	if value == "" {
		return nil
	}
	return &value
}

// BuyItNowPrice reads the buy-now price of an auction. Default nil.
func BuyItNowPrice(doc *goquery.Document) *float64 {
	text := doc.Find(`div[data-testid="x-bin-price"] span.ux-textspans`).First().Text()
	if p, ok := ParsePrice(text); ok {
		return &p
	}
	return nil
}

// MultiVariation reports a variation selector on the page.
func MultiVariation(doc *goquery.Document) bool {
	return doc.Find(`button.listbox-button__control.btn--form[value="Select"]`).Length() > 0
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
