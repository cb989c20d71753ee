package fetch

import (
	"context"

	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/extract"
	"github.com/leadforge/leadforge/internal/model"
)

// Bookkeeping keys added to every extracted row.
const (
	KeyPageURL    = "_page_url"
	KeyTargetID   = "_target_id"
	KeyTargetName = "_target_name"
)

// Row is one flat extracted record plus bookkeeping keys.
type Row = map[string]string

// Pager fetches a target's pages sequentially, runs the extractor over each,
// and follows the next-page link until the configured cap, a missing
// selector, or an absent link.
type Pager struct {
	static  Fetcher
	browser Fetcher
}

// NewPager builds a pager. browser may be nil when no browser-mode targets
// exist; fetching a browser target then fails with a config error message.
func NewPager(static, browser Fetcher) *Pager {
	return &Pager{static: static, browser: browser}
}

func (p *Pager) fetcherFor(t *model.Target) Fetcher {
	if t.Mode == model.ModeBrowser && p.browser != nil {
		return p.browser
	}
	return p.static
}

// Run executes the full paginated fetch+extract loop for one target.
// Every row is tagged with its source page URL and the target's identity.
func (p *Pager) Run(ctx context.Context, t *model.Target, cfg *model.TargetConfig) ([]Row, error) {
	fetcher := p.fetcherFor(t)
	opts := Options{
		Timeout:   cfg.Timeout,
		Headers:   cfg.Headers,
		WaitUntil: cfg.WaitUntil,
	}

	url := t.StartURL
	var all []Row

	for page := 1; page <= cfg.MaxPages; page++ {
		html, err := fetcher.Fetch(ctx, url, opts)
		if err != nil {
			return all, err
		}

		items, err := extract.Items(html, cfg.ItemSelector, cfg.Fields)
		if err != nil {
			return all, err
		}
		for _, item := range items {
			item[KeyPageURL] = url
			item[KeyTargetID] = t.ID
			item[KeyTargetName] = t.Name
		}
		all = append(all, items...)

		if cfg.NextPageSelector == "" {
			break
		}
		next, ok := extract.NextPageURL(html, cfg.NextPageSelector, url)
		if !ok {
			break
		}
		url = next
		zap.L().Info("following next page",
			zap.String("target", t.Name),
			zap.Int("page", page),
			zap.String("url", url),
		)
	}

	return all, nil
}
