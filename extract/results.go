package extract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"price_tracker/identity"
	"price_tracker/models"
)

// ResultsPage is one parsed page of search results.
type ResultsPage struct {
	Listings []models.QueuedListing
	NextURL  string
}

// ParseResultsHTML parses r and runs ParseResults over it.
func ParseResultsHTML(r io.Reader, pageURL string) (*ResultsPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return ParseResults(doc, pageURL)
}

// ParseResults reads the result rows and the next-page link. Rows without
// an item link are skipped, as are the placeholder "Shop on eBay" rows.
func ParseResults(doc *goquery.Document, pageURL string) (*ResultsPage, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}

	page := &ResultsPage{}
	seen := make(map[string]bool)

	doc.Find("li.s-item").Each(func(i int, s *goquery.Selection) {
		link, _ := s.Find("a.s-item__link").First().Attr("href")
		link = resolveURL(pageURL, strings.TrimSpace(link))
		id := identity.ItemIDFromURL(link)
		if id == "" || seen[id] {
			return
		}

		title := resultTitle(s.Find("h3.s-item__title, div.s-item__title").First())
		if strings.EqualFold(title, "Shop on eBay") {
			return
		}
		seen[id] = true

		price, _ := ParsePrice(s.Find(".s-item__price").First().Text())
		img, _ := s.Find("img.s-item__image-img").First().Attr("src")

		page.Listings = append(page.Listings, models.QueuedListing{
			ExternalID:   id,
			Title:        title,
			Price:        price,
			RawCondition: collapse(s.Find("span.SECONDARY_INFO").First().Text()),
			URL:          WithZip(link, zipFromURL(pageURL)),
			ImageURL:     strings.TrimSpace(img),
		})
	})

	next := doc.Find(`a[aria-label="Next"], a[aria-label="Suivant"], a.pagination__next`).First()
	if href, ok := next.Attr("href"); ok && strings.TrimSpace(href) != "" {
		page.NextURL = resolveURL(pageURL, strings.TrimSpace(href))
	}

	return page, nil
}

// WithZip pins the shipping location on a detail URL so prices are comparable
// across runs.
func WithZip(link, zip string) string {
	if link == "" || zip == "" || strings.Contains(link, "_stpos=") {
		return link
	}
	if strings.Contains(link, "?") {
		return link + "&_stpos=" + zip
	}
	return link + "?_stpos=" + zip
}

func resultTitle(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(i int, c *goquery.Selection) {
		if text := collapse(c.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		for _, prefix := range titlePrefixes {
			if parts[0] == prefix {
				parts = parts[1:]
				break
			}
		}
	}
	return CleanTitle(strings.Join(parts, " "))
}

func zipFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("_stpos")
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
