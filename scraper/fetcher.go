package scraper

import (
	"context"
	"errors"
	"fmt"

	"price_tracker/config"
)

var (
	ErrCaptcha = errors.New("captcha challenge")
	ErrStatus  = errors.New("unexpected status")
)

// Page is a fetched document. URL is the final URL after redirects.
type Page struct {
	URL        string
	Body       []byte
	StatusCode int
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Fetchers holds one fetcher per handler kind named in search configs.
type Fetchers map[string]Fetcher

// For returns the fetcher a search asks for, falling back to http.
func (f Fetchers) For(search *config.SearchConfig) (Fetcher, error) {
	handler := search.Handler
	if handler == "" {
		handler = "http"
	}
	if fetcher, ok := f[handler]; ok {
		return fetcher, nil
	}
	if fetcher, ok := f["http"]; ok {
		return fetcher, nil
	}
	return nil, fmt.Errorf("no fetcher for handler %q", handler)
}
