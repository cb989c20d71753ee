// Package discover generates starter target configurations from a URL,
// recognizing common event-listing platforms and falling back to generic
// selectors otherwise. The output is a suggestion for an operator to refine,
// not a guarantee that the selectors match the live page.
package discover

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leadforge/leadforge/internal/model"
)

// Platform identifies a recognized event-listing site.
type Platform string

const (
	PlatformEventbrite        Platform = "eventbrite"
	PlatformMeetup            Platform = "meetup"
	PlatformFacebook          Platform = "facebook"
	PlatformEventful          Platform = "eventful"
	PlatformBrownPaperTickets Platform = "brownpapertickets"
	PlatformTicketmaster      Platform = "ticketmaster"
)

// DetectPlatform inspects a URL's host and returns the matching platform,
// or false when the site is unknown.
func DetectPlatform(rawURL string) (Platform, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch {
	case strings.Contains(host, "eventbrite.com"),
		strings.Contains(host, "eventbrite.co.uk"),
		strings.Contains(host, "eventbrite.ca"):
		return PlatformEventbrite, true
	case strings.Contains(host, "meetup.com"):
		return PlatformMeetup, true
	case strings.Contains(host, "facebook.com"), strings.Contains(host, "fb.com"):
		return PlatformFacebook, true
	case strings.Contains(host, "eventful.com"):
		return PlatformEventful, true
	case strings.Contains(host, "brownpapertickets.com"):
		return PlatformBrownPaperTickets, true
	case strings.Contains(host, "ticketmaster.com"):
		return PlatformTicketmaster, true
	}
	return "", false
}

// suggestion pairs a selector config with the rendering mode it needs.
type suggestion struct {
	mode   model.TargetMode
	config map[string]any
}

var platformSuggestions = map[Platform]suggestion{
	PlatformEventbrite: {
		mode: model.ModeStatic,
		config: map[string]any{
			"item_selector": ".event-card, .search-event-card-wrapper, [data-testid='search-result'], .event-tile",
			"fields": map[string]any{
				"full_name":  ".event-title, .event-card-title, [data-testid='event-title'], h2.event-title",
				"event_date": ".event-date, [data-testid='event-date'], .event-card-date, time",
				"event_name": ".event-description, .event-card-description, .event-summary",
				"source_url": "a.event-card-link@href, a[data-testid='event-link']@href, a.event-link@href",
			},
			"next_page_selector": "a.pagination-next, a[aria-label='Next'], [data-testid='pagination-next']",
			"max_pages":          5,
			"timeout_seconds":    30,
		},
	},
	PlatformMeetup: {
		mode: model.ModeBrowser,
		config: map[string]any{
			"item_selector": ".eventCard, [data-testid='event-card'], .event-listing, .event-card",
			"fields": map[string]any{
				"full_name":  ".eventCard-title, [data-testid='event-title'], .event-title, h3.eventCard-title",
				"event_date": ".eventCard-date, [data-testid='event-date'], .event-date, time",
				"event_name": ".eventCard-description, .event-description, .event-summary",
				"source_url": "a.eventCard-link@href, a[data-testid='event-link']@href, a.event-link@href",
			},
			"next_page_selector": "a[data-testid='pagination-next'], .pagination-next",
			"max_pages":          3,
			"timeout_seconds":    45,
			"wait_until":         "networkidle",
		},
	},
	PlatformFacebook: {
		mode: model.ModeBrowser,
		config: map[string]any{
			"item_selector": "[data-testid='event-card'], .event-card, .event-item",
			"fields": map[string]any{
				"full_name":  "[data-testid='event-title'], .event-title, h2, h3",
				"event_date": "[data-testid='event-date'], .event-date, time",
				"event_name": "[data-testid='event-description'], .event-description",
				"source_url": "a[data-testid='event-link']@href, a.event-link@href",
			},
			"next_page_selector": "a[aria-label='Next'], .pagination-next",
			"max_pages":          3,
			"timeout_seconds":    60,
			"wait_until":         "networkidle",
		},
	},
	PlatformEventful: {
		mode: model.ModeStatic,
		config: map[string]any{
			"item_selector": ".event-item, .event-card, .event-listing",
			"fields": map[string]any{
				"full_name":  ".event-title, h2, h3",
				"event_date": ".event-date, .date, time",
				"event_name": ".event-description, .description",
				"source_url": "a.event-link@href, a@href",
			},
			"next_page_selector": ".pagination .next, a.next",
			"max_pages":          5,
			"timeout_seconds":    30,
		},
	},
	PlatformBrownPaperTickets: {
		mode: model.ModeStatic,
		config: map[string]any{
			"item_selector": ".event-item, .event-listing, .event",
			"fields": map[string]any{
				"full_name":  ".event-title, .title, h2",
				"event_date": ".event-date, .date",
				"event_name": ".event-description",
				"source_url": "a.event-link@href",
			},
			"next_page_selector": ".pagination .next",
			"max_pages":          5,
			"timeout_seconds":    30,
		},
	},
	PlatformTicketmaster: {
		mode: model.ModeBrowser,
		config: map[string]any{
			"item_selector": ".event-tile, .event-card, [data-testid='event-card']",
			"fields": map[string]any{
				"full_name":  ".event-title, [data-testid='event-title'], h3",
				"event_date": ".event-date, [data-testid='event-date'], time",
				"event_name": ".event-description",
				"source_url": "a.event-link@href, a[data-testid='event-link']@href",
			},
			"next_page_selector": ".pagination-next, a[aria-label='Next']",
			"max_pages":          5,
			"timeout_seconds":    45,
			"wait_until":         "networkidle",
		},
	},
}

var genericSuggestion = suggestion{
	mode: model.ModeStatic,
	config: map[string]any{
		"item_selector": ".item, .event, .listing, .event-item, .event-card",
		"fields": map[string]any{
			"full_name":  ".title, .name, h2, h3, .event-title",
			"event_date": ".date, .time, [datetime], .event-date",
			"event_name": ".description, .event-description",
			"source_url": "a@href, a.event-link@href",
		},
		"max_pages":       3,
		"timeout_seconds": 30,
	},
}

// SuggestTarget builds a Target for the URL, using platform-tuned selectors
// when the site is recognized and a generic starter config otherwise.
// name is auto-derived from the domain when empty.
func SuggestTarget(rawURL, name string) (*model.Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, eris.Errorf("discover: invalid url %q", rawURL)
	}

	sugg := genericSuggestion
	if platform, ok := DetectPlatform(rawURL); ok {
		sugg = platformSuggestions[platform]
	}

	if name == "" {
		host := strings.TrimPrefix(u.Hostname(), "www.")
		label := strings.SplitN(host, ".", 2)[0]
		if label == "" {
			label = "discovered"
		}
		name = "auto-" + cases.Title(language.English).String(label)
	}

	raw, err := json.Marshal(sugg.config)
	if err != nil {
		return nil, eris.Wrap(err, "discover: marshal config")
	}

	target := &model.Target{
		Name:        name,
		Enabled:     true,
		Mode:        sugg.mode,
		StartURL:    rawURL,
		RunInterval: 2 * time.Hour,
		RawConfig:   raw,
	}
	return target, nil
}
