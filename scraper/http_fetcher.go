package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"price_tracker/httputil"
)

const maxBodySize = 8 << 20

// HTTPFetcher fetches pages over the scraping client with per-host pacing,
// a rotating User-Agent and retries on throttling responses.
type HTTPFetcher struct {
	client     *http.Client
	limiter    *httputil.HostLimiter
	maxRetries int
	backoff    time.Duration
}

func NewHTTPFetcher(client *http.Client, limiter *httputil.HostLimiter, maxRetries int) *HTTPFetcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPFetcher{
		client:     client,
		limiter:    limiter,
		maxRetries: maxRetries,
		backoff:    2 * time.Second,
	}
}

// WithBackoff sets the base delay between retries; it doubles per attempt.
func (f *HTTPFetcher) WithBackoff(d time.Duration) *HTTPFetcher {
	f.backoff = d
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff << (attempt - 1)
			log.Printf("Retrying %s in %v (attempt %d): %v", rawURL, delay, attempt+1, lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := f.limiter.Wait(ctx, u.Host); err != nil {
			return nil, err
		}

		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("%s %d", ErrStatus, e.code) }
func (e *statusError) Unwrap() error { return ErrStatus }

func retryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return httputil.Retryable(se.code)
	}
	// captcha and transport errors are worth another proxy
	return true
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httputil.RandomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound &&
		resp.StatusCode != http.StatusGone {
		return nil, &statusError{code: resp.StatusCode}
	}
	if httputil.LooksLikeCaptcha(resp.Header.Get("Content-Type"), body) {
		return nil, ErrCaptcha
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		Body:       body,
		StatusCode: resp.StatusCode,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
