// Package fetch retrieves raw listing pages, either over plain HTTP or through
// a headless browser for pages that render their listings with JavaScript.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"regent-tracker/config"
	"regent-tracker/utils"
)

// DefaultTimeout bounds a single fetch when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is a desktop Chrome UA; the agencies serve a reduced page
// to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher returns the raw content of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Error represents an error during page fetching.
type Error struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Temporary reports whether retrying the same request may succeed.
// Client errors other than 408 and 429 will not.
func (e *Error) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// Set picks the fetcher matching a source's render mode.
type Set struct {
	HTTP    Fetcher
	Browser Fetcher
}

// For returns the fetcher for src. Browser sources fall back to HTTP when no
// browser fetcher is available.
func (s Set) For(src config.Source) Fetcher {
	if src.Render == config.RenderBrowser && s.Browser != nil {
		return s.Browser
	}
	return s.HTTP
}

// chromeLookup resolves the browser binary; tests replace it.
var chromeLookup = findChromeBinary

// NewSet builds retrying HTTP and browser fetchers from cfg. When no Chrome
// binary can be found the browser fetcher is left out and browser sources use
// HTTP. The returned close func shuts the shared browser down.
func NewSet(cfg *config.Config, logger *utils.Logger) (Set, func(), error) {
	httpFetcher, err := NewHTTPFetcher(HTTPOptions{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FetchTimeout,
		Delay:     time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return Set{}, nil, err
	}

	retry := func() *utils.RetryConfig {
		return &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries + 1,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		}
	}
	set := Set{HTTP: NewRetrying(httpFetcher, retry())}

	chromeBin := chromeLookup(cfg.ChromeBin)
	if chromeBin == "" {
		logger.Warn("no chrome binary found, browser sources will be fetched over http",
			"hint", "set CHROME_BIN")
		return set, func() {}, nil
	}

	browser := NewBrowserFetcher(BrowserOptions{
		ChromeBin: chromeBin,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FetchTimeout,
	}, logger)
	set.Browser = NewRetrying(browser, retry())
	return set, browser.Close, nil
}
