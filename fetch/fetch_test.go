package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regent-tracker/config"
	"regent-tracker/utils"
)

func newHTTPFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(HTTPOptions{UserAgent: "regent-test", Timeout: 5 * time.Second}, utils.NewNopLogger())
	require.NoError(t, err)
	return f
}

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><div>天鑽 第9座 $600萬</div></body></html>"))
	}))
	defer server.Close()

	body, err := newHTTPFetcher(t).Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Contains(t, body, "天鑽 第9座 $600萬")
	assert.Equal(t, "regent-test", gotUA)
	assert.Contains(t, gotLang, "zh-HK")
}

func TestHTTPFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newHTTPFetcher(t).Fetch(context.Background(), server.URL)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.False(t, fetchErr.Temporary())
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPFetcher_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newHTTPFetcher(t).Fetch(ctx, server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorTemporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		e := &Error{URL: "https://example.com", StatusCode: tt.status}
		assert.Equal(t, tt.want, e.Temporary(), "status %d", tt.status)
	}
}

type scriptedFetcher struct {
	calls atomic.Int32
	errs  []error
	body  string
}

func (s *scriptedFetcher) Fetch(_ context.Context, _ string) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) {
		return "", s.errs[n]
	}
	return s.body, nil
}

func testRetry(attempts int) *utils.RetryConfig {
	return &utils.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	inner := &scriptedFetcher{
		errs: []error{
			&Error{URL: "u", StatusCode: http.StatusServiceUnavailable, Message: "status 503"},
			&Error{URL: "u", Message: "request failed", Cause: errors.New("connection reset")},
		},
		body: "<html>ok</html>",
	}

	body, err := NewRetrying(inner, testRetry(3)).Fetch(context.Background(), "u")

	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetrying_StopsOnClientError(t *testing.T) {
	inner := &scriptedFetcher{errs: []error{
		&Error{URL: "u", StatusCode: http.StatusForbidden, Message: "status 403"},
	}}

	_, err := NewRetrying(inner, testRetry(3)).Fetch(context.Background(), "u")

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetrying_GivesUp(t *testing.T) {
	transient := &Error{URL: "u", StatusCode: http.StatusBadGateway, Message: "status 502"}
	inner := &scriptedFetcher{errs: []error{transient, transient, transient}}

	_, err := NewRetrying(inner, testRetry(2)).Fetch(context.Background(), "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestRetrying_WithHTTPServer(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<p>第10座</p>"))
	}))
	defer server.Close()

	body, err := NewRetrying(newHTTPFetcher(t), testRetry(3)).Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Contains(t, body, "第10座")
	assert.Equal(t, int32(2), hits.Load())
}

func TestSetFor(t *testing.T) {
	httpF := &scriptedFetcher{body: "http"}
	browserF := &scriptedFetcher{body: "browser"}
	set := Set{HTTP: httpF, Browser: browserF}

	assert.Same(t, httpF, set.For(config.Source{Render: config.RenderHTTP}))
	assert.Same(t, browserF, set.For(config.Source{Render: config.RenderBrowser}))

	set.Browser = nil
	assert.Same(t, httpF, set.For(config.Source{Render: config.RenderBrowser}))
}

func TestFindChromeBinaryPrefersConfigured(t *testing.T) {
	assert.Equal(t, "/opt/chrome", findChromeBinary("/opt/chrome"))

	t.Setenv("CHROME_BIN", "/env/chrome")
	assert.Equal(t, "/env/chrome", findChromeBinary(""))
}

func withChromeLookup(t *testing.T, bin string) {
	t.Helper()
	orig := chromeLookup
	chromeLookup = func(string) string { return bin }
	t.Cleanup(func() { chromeLookup = orig })
}

func TestNewSetWithoutChrome(t *testing.T) {
	withChromeLookup(t, "")
	cfg := &config.Config{FetchTimeout: time.Second}

	set, closeSet, err := NewSet(cfg, utils.NewNopLogger())
	require.NoError(t, err)
	defer closeSet()

	assert.Nil(t, set.Browser)
	assert.Same(t, set.HTTP, set.For(config.Source{Render: config.RenderBrowser}))
}

func TestNewSetWithChrome(t *testing.T) {
	withChromeLookup(t, "/opt/chrome")
	cfg := &config.Config{FetchTimeout: time.Second}

	set, closeSet, err := NewSet(cfg, utils.NewNopLogger())
	require.NoError(t, err)
	defer closeSet()

	require.NotNil(t, set.Browser)
	assert.Same(t, set.Browser, set.For(config.Source{Render: config.RenderBrowser}))
	assert.Same(t, set.HTTP, set.For(config.Source{Render: config.RenderHTTP}))
}
