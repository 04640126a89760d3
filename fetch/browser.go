package fetch

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"regent-tracker/utils"
)

// BrowserOptions configures the headless browser fetcher.
type BrowserOptions struct {
	ChromeBin string
	UserAgent string
	Timeout   time.Duration
	// Settle is how long to wait after load for client-side rendering.
	Settle time.Duration
}

// BrowserFetcher renders pages in one shared headless Chrome and returns the
// resulting HTML. The browser starts on the first Fetch.
type BrowserFetcher struct {
	opts   BrowserOptions
	logger *utils.Logger

	once        sync.Once
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
}

func NewBrowserFetcher(opts BrowserOptions, logger *utils.Logger) *BrowserFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Settle <= 0 {
		opts.Settle = 3 * time.Second
	}
	return &BrowserFetcher{opts: opts, logger: logger.With("component", "browser_fetcher")}
}

func (f *BrowserFetcher) start() {
	chromeBin := findChromeBinary(f.opts.ChromeBin)
	f.logger.Info("starting headless browser", "binary", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(f.opts.UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}
	f.allocCtx, f.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
}

// Fetch navigates to url in a fresh tab and returns the rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.once.Do(f.start)

	// Suppress chromedp log noise
	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.opts.Timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(f.opts.Settle),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{URL: url, Message: "cancelled", Cause: ctx.Err()}
		}
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	f.logger.Debug("page rendered", "url", url, "bytes", len(html))
	return html, nil
}

// Close shuts the browser down. It is safe to call when no page was fetched.
func (f *BrowserFetcher) Close() {
	f.once.Do(func() {})
	if f.cancelAlloc != nil {
		f.cancelAlloc()
	}
}

// findChromeBinary returns the configured binary, or the first Chrome or
// Chromium found on PATH or in a well-known location. Empty means none.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

var _ Fetcher = (*BrowserFetcher)(nil)
