// Package extract turns marketplace HTML into structured listing records.
// Every field helper degrades to a documented default; only a missing
// document is an error.
package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"price_tracker/identity"
	"price_tracker/models"
)

var ErrNoDocument = errors.New("no document")

// ExtractHTML parses r and runs Extract over it.
func ExtractHTML(r io.Reader, pageURL string, queued *models.QueuedListing) (*models.ExtractedListing, error) {
	if r == nil {
		return nil, ErrNoDocument
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return Extract(doc, pageURL, queued)
}

// Extract builds an ExtractedListing from a detail page. pageURL is the final
// URL after redirects. queued carries what the results page reported, and may be nil.
func Extract(doc *goquery.Document, pageURL string, queued *models.QueuedListing) (*models.ExtractedListing, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	if queued == nil {
		queued = &models.QueuedListing{}
	}

	l := &models.ExtractedListing{
		URL:        pageURL,
		ExternalID: identity.ItemIDFromURL(pageURL),
		ImageURL:   queued.ImageURL,
	}

	l.Ended = Ended(doc)
	queuedID := queued.ExternalID
	if queuedID == "" {
		queuedID = identity.ItemIDFromURL(queued.URL)
	}
	if Redirected(queuedID, l.ExternalID) {
		l.Ended = true
	}

	l.Title = CleanTitle(queued.Title)
	if l.Title == "" {
		l.Title = Title(doc)
	}

	l.RawCondition = strings.TrimSpace(queued.RawCondition)
	if l.RawCondition == "" {
		l.RawCondition = RawCondition(doc)
	}
	l.NormalizedCondition = NormalizeCondition(l.RawCondition)
	l.Signed = IsSigned(l.Title)
	l.InBox = InBox(l.NormalizedCondition, l.Title)

	l.Price = queued.Price
	if l.Price <= 0 {
		l.Price = Price(doc)
	}

	if img := ImageURL(doc); img != "" {
		l.ImageURL = img
	}
	l.SellerUsername = Seller(doc)
	l.ListingType = ListingType(doc)

	if l.ListingType.IsAuction() {
		bids := BidsCount(doc)
		l.BidsCount = &bids
		if !l.Ended {
			l.TimeRemaining = TimeRemaining(doc)
		}
	}
	if l.ListingType == models.ListingAuctionWithBIN {
		l.BuyItNowPrice = BuyItNowPrice(doc)
	}

	l.BreadcrumbCategory = Breadcrumb(doc)
	l.MultiVariation = MultiVariation(doc)

	l.EPID = identity.EPIDFromURL(pageURL)
	if l.EPID == "" {
		l.EPID = identity.EPIDFromURL(queued.URL)
	}

	return l, nil
}

// Redirected reports whether a page reached from a results link landed on a
// different item than the one queued.
func Redirected(queuedID, finalID string) bool {
	return queuedID != "" && finalID != "" && queuedID != finalID
}
