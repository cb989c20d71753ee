package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BrowserFetcher renders script-heavy pages in headless Chrome before
// returning the DOM. The browser launches lazily on first use and is shared
// across fetches; pages within one run are sequential so no tab pooling is
// needed.
type BrowserFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher builds a browser fetcher. Chrome is not launched until
// the first Fetch call.
func NewBrowserFetcher() *BrowserFetcher {
	return &BrowserFetcher{}
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	u, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, eris.Wrap(err, "browser: connect")
	}
	f.browser = b
	return b, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	b, err := f.connect()
	if err != nil {
		return "", err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Browser navigations get double the static budget: rendering waits are
	// part of the fetch, not overhead.
	navCtx, cancel := context.WithTimeout(ctx, 2*timeout)
	defer cancel()

	page, err := stealth.Page(b)
	if err != nil {
		return "", eris.Wrap(err, "browser: create page")
	}
	defer page.Close()

	page = page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return "", eris.Wrapf(err, "browser: navigate %s", url)
	}

	switch opts.WaitUntil {
	case "load":
		if err := page.WaitLoad(); err != nil {
			zap.L().Warn("browser wait load timed out", zap.String("url", url), zap.Error(err))
		}
	default: // networkidle
		if err := page.WaitLoad(); err != nil {
			zap.L().Warn("browser wait load timed out", zap.String("url", url), zap.Error(err))
		}
		if err := page.WaitIdle(timeout); err != nil {
			zap.L().Warn("browser wait idle timed out", zap.String("url", url), zap.Error(err))
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", eris.Wrapf(err, "browser: read DOM %s", url)
	}
	return html, nil
}

// Close shuts down the shared Chrome instance, if one was launched.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
