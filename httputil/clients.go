package httputil

import (
	"crypto/tls"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

type Clients struct {
	Scraping *http.Client // proxied when proxies are configured, for listing pages
	Direct   *http.Client // image downloads and other non-marketplace hosts
}

// NewClients builds the scraping client. Each request picks a random proxy
// from proxies; with none it goes direct.
func NewClients(proxies []*url.URL, timeout time.Duration) *Clients {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:             proxyPicker(proxies),
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}

	return &Clients{
		Scraping: &http.Client{Timeout: timeout, Transport: transport},
		Direct:   &http.Client{Timeout: timeout},
	}
}

func proxyPicker(proxies []*url.URL) func(*http.Request) (*url.URL, error) {
	if len(proxies) == 0 {
		return nil
	}
	return func(*http.Request) (*url.URL, error) {
		return proxies[rand.Intn(len(proxies))], nil
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// RandomUserAgent returns one of a small set of desktop browser agents.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
