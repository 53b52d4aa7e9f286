package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"
	"price_tracker/httputil"
)

// BrowserFetcher renders pages in a persistent Chromium profile. Pages are
// fetched one at a time on a single tab.
type BrowserFetcher struct {
	userDataDir string
	headless    bool
	timeout     float64 // ms

	mu          sync.Mutex
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	page        playwright.Page
	initialized bool
}

func NewBrowserFetcher(userDataDir string, headless bool, timeoutMS float64) *BrowserFetcher {
	if timeoutMS <= 0 {
		timeoutMS = 60000
	}
	return &BrowserFetcher{
		userDataDir: userDataDir,
		headless:    headless,
		timeout:     timeoutMS,
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.ensureBrowser(); err != nil {
		return nil, err
	}

	resp, err := b.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(b.timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, fmt.Errorf("goto %s: %w", url, err)
	}

	b.handleConsent()
	b.simulateHumanBehavior()

	content, err := b.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if httputil.LooksLikeCaptcha("text/html", []byte(content)) {
		return nil, ErrCaptcha
	}

	status := 200
	if resp != nil {
		status = resp.Status()
	}
	return &Page{
		URL:        b.page.URL(),
		Body:       []byte(content),
		StatusCode: status,
	}, nil
}

func (b *BrowserFetcher) ensureBrowser() error {
	if b.initialized {
		return nil
	}

	var err error
	b.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	dir, err := filepath.Abs(b.userDataDir)
	if err != nil {
		return err
	}
	b.context, err = b.pw.Chromium.LaunchPersistentContext(dir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(b.headless),
		UserAgent: playwright.String(httputil.RandomUserAgent()),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		b.pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.page, err = b.context.NewPage()
	if err != nil {
		b.context.Close()
		b.pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}

	b.initialized = true
	return nil
}

// Close shuts the browser down. The next Fetch starts a new one.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil {
		b.page.Close()
		b.page = nil
	}
	if b.context != nil {
		b.context.Close()
		b.context = nil
	}
	if b.pw != nil {
		b.pw.Stop()
		b.pw = nil
	}
	b.initialized = false
}

func (b *BrowserFetcher) handleConsent() {
	selectors := []string{
		"#gdpr-banner-accept",
		"button#gdpr-banner-accept",
		"button:has-text('Accept all')",
		"button:has-text('Accept')",
	}
	for _, selector := range selectors {
		btn := b.page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			log.Printf("Clicking consent button: %s", selector)
			btn.Click()
			b.page.WaitForTimeout(1000)
			return
		}
	}
}

func (b *BrowserFetcher) simulateHumanBehavior() {
	b.page.Mouse().Move(float64(300+rand.Intn(400)), float64(200+rand.Intn(300)))
	b.page.WaitForTimeout(float64(200 + rand.Intn(300)))
	b.page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, 100+rand.Intn(300)))
}
