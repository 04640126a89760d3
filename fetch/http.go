package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"regent-tracker/utils"
)

// HTTPOptions configures the plain HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the minimum spacing between requests to the same host.
	Delay time.Duration
}

// HTTPFetcher downloads pages with colly. Every Fetch runs on a clone of one
// parent collector, so the per-host limit rule is shared between calls.
type HTTPFetcher struct {
	collector *colly.Collector
	timeout   time.Duration
	logger    *utils.Logger
}

// NewHTTPFetcher builds the parent collector.
func NewHTTPFetcher(opts HTTPOptions, logger *utils.Logger) (*HTTPFetcher, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(opts.UserAgent),
	)
	// Agency pages are still served as Big5 now and then.
	c.DetectCharset = true
	c.SetRequestTimeout(opts.Timeout)

	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       opts.Delay,
	})
	if err != nil {
		return nil, fmt.Errorf("HTTPFetcher: failed to set limit rule: %w", err)
	}

	return &HTTPFetcher{
		collector: c,
		timeout:   opts.Timeout,
		logger:    logger.With("component", "http_fetcher"),
	}, nil
}

type visitResult struct {
	body string
	err  error
}

// Fetch returns the decoded body of url. Non-2xx responses are reported as
// *Error carrying the status code.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	collector := f.collector.Clone()

	var body string
	var status int

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "zh-HK,zh;q=0.9,en;q=0.8")
		f.logger.Debug("requesting page", "url", r.URL.String())
	})

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		f.logger.Debug("request failed", "url", url, "status", status, "error", err)
	})

	done := make(chan visitResult, 1)
	go func() {
		err := collector.Visit(url)
		done <- visitResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", &Error{URL: url, Message: "cancelled", Cause: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			msg := "request failed"
			if status != 0 {
				msg = fmt.Sprintf("status %d", status)
			}
			return "", &Error{URL: url, StatusCode: status, Message: msg, Cause: res.err}
		}
		f.logger.Debug("page fetched", "url", url, "status", status, "bytes", len(res.body))
		return res.body, nil
	}
}
