// Package enrich implements the second scrape stage: listing pages yield
// basic rows fast, detail pages carry the contact data. The enricher visits
// a record's own source page and fills only the fields that are still empty,
// so listing-stage data is never overwritten.
package enrich

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadforge/leadforge/internal/discover"
	"github.com/leadforge/leadforge/internal/extract"
	"github.com/leadforge/leadforge/internal/fetch"
	"github.com/leadforge/leadforge/internal/model"
	"github.com/leadforge/leadforge/internal/normalize"
)

// Store is the slice of the persistence layer the enricher needs.
type Store interface {
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	UpdateRecord(ctx context.Context, r *model.Record) error
	ListEnrichableRecordIDs(ctx context.Context, limit int) ([]string, error)
}

// Result reports what one enrichment attempt did.
type Result struct {
	RecordID string   `json:"record_id"`
	Skipped  bool     `json:"skipped"`
	Updated  []string `json:"updated,omitempty"`
}

// BatchSummary aggregates a batch of enrichment attempts.
type BatchSummary struct {
	Total    int `json:"total"`
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Enricher visits detail pages and merges extracted fields into records.
type Enricher struct {
	store         Store
	static        fetch.Fetcher
	browser       fetch.Fetcher
	limiter       *rate.Limiter
	defaultRegion string
}

// New builds an enricher. browser may be nil; delay throttles batch fetches
// so detail-page hosts see at most one request per interval.
func New(store Store, static, browser fetch.Fetcher, defaultRegion string, delay time.Duration) *Enricher {
	e := &Enricher{
		store:         store,
		static:        static,
		browser:       browser,
		defaultRegion: defaultRegion,
	}
	if delay > 0 {
		e.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return e
}

// Platform-tuned detail-page selectors, in the same selector micro-syntax as
// target configs. Values land in the record under the listing-stage key names.
var platformFields = map[discover.Platform]map[string]string{
	discover.PlatformEventbrite: {
		"company":        `.organizer-name, .event-details__organizer-name`,
		"event_text":     `.event-description, .structured-content-rich-text`,
		"website":        `a[rel='nofollow'][target='_blank']@href`,
		"event_datetime": `time[datetime]@datetime, [datetime]@datetime`,
		"address":        `.event-details__location, [class*='venue-name']`,
	},
	discover.PlatformMeetup: {
		"company":    `.groupName, [id*='group-name']`,
		"event_text": `.event-description, [class*='eventDescription']`,
		"website":    `a[href*='http'][rel='noopener']@href`,
		"address":    `[class*='venueAddress'], [class*='venue']`,
	},
}

// ownHosts lists host substrings whose links a platform page always carries;
// a "website" pointing back at the platform itself is noise, not a lead site.
var ownHosts = map[discover.Platform][]string{
	discover.PlatformEventbrite: {"eventbrite."},
	discover.PlatformMeetup:     {"meetup.", "facebook."},
}

var genericFields = map[string]string{
	"event_text": `meta[name='description']@content`,
}

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`\(?\d{3}\)?[-. ]?\d{3}[-.]?\d{4}\b`)
)

// junk email local parts never worth keeping.
var junkEmail = []string{"noreply", "no-reply", "example", "spam"}

// EnrichRecord fetches the record's detail page and fills empty fields.
// platform may be empty; it is then detected from the source URL. Records
// that already carry contact data are skipped without a fetch.
func (e *Enricher) EnrichRecord(ctx context.Context, recordID string, platform discover.Platform, useBrowser bool) (*Result, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load record")
	}
	if rec.SourceURL == "" {
		return nil, eris.Errorf("enrich: record %s has no source url", recordID)
	}
	if rec.Email != "" || rec.Company != "" {
		return &Result{RecordID: recordID, Skipped: true}, nil
	}

	if platform == "" {
		platform, _ = discover.DetectPlatform(rec.SourceURL)
	}

	fetcher := e.static
	if useBrowser && e.browser != nil {
		fetcher = e.browser
	}
	html, err := fetcher.Fetch(ctx, rec.SourceURL, fetch.Options{
		Timeout:   30 * time.Second,
		WaitUntil: "networkidle",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: fetch %s", rec.SourceURL)
	}

	data, err := extractDetails(html, platform)
	if err != nil {
		return nil, err
	}

	updated := e.apply(rec, data)
	if len(updated) > 0 {
		if err := e.store.UpdateRecord(ctx, rec); err != nil {
			return nil, eris.Wrap(err, "enrich: persist record")
		}
	}

	zap.L().Info("record enriched",
		zap.String("record_id", recordID),
		zap.String("platform", string(platform)),
		zap.Strings("updated", updated))
	return &Result{RecordID: recordID, Updated: updated}, nil
}

// extractDetails runs the platform's selector set over the whole page and
// falls back to scanning the page text for contact data.
func extractDetails(html string, platform discover.Platform) (map[string]string, error) {
	selectors, ok := platformFields[platform]
	if !ok {
		selectors = genericFields
	}

	raw := make(map[string]string, len(selectors))
	if len(selectors) > 0 {
		specs, err := parseFields(selectors)
		if err != nil {
			return nil, err
		}
		items, err := extract.Items(html, "html", specs)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			raw = items[0]
		}
	}

	if hosts := ownHosts[platform]; raw["website"] != "" {
		for _, h := range hosts {
			if strings.Contains(raw["website"], h) {
				delete(raw, "website")
				break
			}
		}
	}

	// Contact data rarely sits behind a stable selector; scan the text.
	if raw["email"] == "" || raw["phone"] == "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, eris.Wrap(err, "enrich: parse html")
		}
		text := doc.Text()
		if raw["email"] == "" {
			if m := firstCleanEmail(text); m != "" {
				raw["email"] = m
			}
		}
		if raw["phone"] == "" {
			if m := phoneRe.FindString(text); m != "" {
				raw["phone"] = m
			}
		}
	}

	return raw, nil
}

func parseFields(selectors map[string]string) (map[string]extract.FieldSpec, error) {
	specs := make(map[string]extract.FieldSpec, len(selectors))
	for name, sel := range selectors {
		spec, err := extract.ParseFieldSpec([]byte(`"` + sel + `"`))
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: field %q", name)
		}
		specs[name] = spec
	}
	return specs, nil
}

func firstCleanEmail(text string) string {
	for _, m := range emailRe.FindAllString(text, 10) {
		lower := strings.ToLower(m)
		clean := true
		for _, junk := range junkEmail {
			if strings.Contains(lower, junk) {
				clean = false
				break
			}
		}
		if clean {
			return m
		}
	}
	return ""
}

// apply fills empty record fields from extracted data and returns the names
// of the fields it changed. Existing values always win.
func (e *Enricher) apply(rec *model.Record, data map[string]string) []string {
	var updated []string
	set := func(name string, dst *string, v string) {
		if v == "" || strings.TrimSpace(*dst) != "" {
			return
		}
		*dst = v
		updated = append(updated, name)
	}

	set("company", &rec.Company, data["company"])
	set("full_name", &rec.FullName, data["full_name"])
	set("email", &rec.Email, data["email"])
	set("website", &rec.Website, data["website"])
	set("address", &rec.Address, data["address"])
	set("event_text", &rec.EventText, clip(data["event_text"], 1000))

	if v := data["phone"]; v != "" && rec.PhoneRaw == "" {
		rec.PhoneRaw = v
		if p, ok := normalize.Phone(v, e.defaultRegion); ok {
			rec.PhoneE164 = p.E164
		}
		updated = append(updated, "phone")
	}
	if v := data["event_datetime"]; v != "" && rec.EventDateTime == nil {
		if d, ok := normalize.DateTime(v); ok {
			rec.EventDateTime = &d
			updated = append(updated, "event_datetime")
		}
	}

	return updated
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// EnrichBatch enriches the given records, or when ids is empty selects up to
// limit records that have a detail page but no contact data yet. A failed
// record never stops the batch.
func (e *Enricher) EnrichBatch(ctx context.Context, ids []string, platform discover.Platform, useBrowser bool, limit int) (BatchSummary, error) {
	var err error
	if len(ids) == 0 {
		ids, err = e.store.ListEnrichableRecordIDs(ctx, limit)
		if err != nil {
			return BatchSummary{}, eris.Wrap(err, "enrich: select batch")
		}
	}

	sum := BatchSummary{Total: len(ids)}
	for _, id := range ids {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return sum, err
			}
		}
		res, err := e.EnrichRecord(ctx, id, platform, useBrowser)
		if err != nil {
			sum.Failed++
			zap.L().Warn("enrichment failed", zap.String("record_id", id), zap.Error(err))
			continue
		}
		if res.Skipped {
			sum.Skipped++
		} else {
			sum.Enriched++
		}
	}
	return sum, nil
}
