// Package fetch retrieves target pages, either with a plain HTTP GET or a
// headless-browser navigation, and drives pagination over the extraction
// engine. Fetch errors carry through unchanged so the caller can classify
// DNS, timeout, and HTTP failures separately.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultUserAgent = "leadforge/1.0 (+https://github.com/leadforge/leadforge)"

// Options are the per-request knobs taken from the target's config document.
type Options struct {
	Timeout   time.Duration
	Headers   map[string]string
	WaitUntil string // browser mode only: "networkidle" or "load"
}

// Fetcher retrieves a single page as HTML.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (string, error)
}

// HTTPFetcher fetches pages with a static HTTP GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a static fetcher. The per-request timeout comes from
// Options; the transport keeps idle connections warm across pages.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: create request %s", url)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport errors (DNS, refused, timeout) pass through for
		// classification at the job boundary.
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", eris.Errorf("fetch: HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: read body %s", url)
	}
	return string(body), nil
}
