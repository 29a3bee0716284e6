package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent identifies the loader in outbound requests.
const DefaultUserAgent = "assetcache/1.0"

// HTTPLoader fetches locators over HTTP(S).
//
// The body is drained and discarded: the cache tracks fetch state, and the
// transfer itself is what warms the host's HTTP cache. Any non-2xx status is
// a failure.
type HTTPLoader struct {
	client    *http.Client
	userAgent string
}

// HTTPOptions configures an HTTPLoader.
type HTTPOptions struct {
	// Client is the HTTP client to use. Nil means a client with no
	// per-request timeout; the scheduler's budget bounds the call.
	Client *http.Client

	// UserAgent overrides DefaultUserAgent when non-empty.
	UserAgent string
}

// NewHTTPLoader creates a loader with default options.
func NewHTTPLoader() *HTTPLoader {
	return NewHTTPLoaderWithOptions(HTTPOptions{})
}

// NewHTTPLoaderWithOptions creates a loader with explicit options.
func NewHTTPLoaderWithOptions(opts HTTPOptions) *HTTPLoader {
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   8,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPLoader{client: client, userAgent: userAgent}
}

// Fetch retrieves locator and discards the body.
func (l *HTTPLoader) Fetch(ctx context.Context, locator string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", locator, err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return fmt.Errorf("fetch %s: unexpected status %d", locator, resp.StatusCode)
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read %s: %w", locator, err)
	}
	return nil
}
