// Package normalize turns free-text phone numbers and dates into canonical
// forms. All functions are pure and never panic: a malformed value yields
// ok=false, so one bad field can't fail a whole batch upstream.
package normalize

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/nyaruka/phonenumbers"
)

// NormalizedPhone holds the raw input alongside its canonical E.164 form.
type NormalizedPhone struct {
	Raw    string
	E164   string
	Region string
}

// Phone parses a free-text phone number. defaultRegion (ISO-3166 alpha-2,
// e.g. "US") is used as a hint when the number lacks a country code; it may
// be empty for numbers that carry one. Structurally invalid numbers return
// ok=false, oddly formatted but valid ones are accepted.
func Phone(raw, defaultRegion string) (NormalizedPhone, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NormalizedPhone{}, false
	}

	parsed, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return NormalizedPhone{}, false
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return NormalizedPhone{}, false
	}

	return NormalizedPhone{
		Raw:    raw,
		E164:   phonenumbers.Format(parsed, phonenumbers.E164),
		Region: phonenumbers.GetRegionCodeForNumber(parsed),
	}, true
}

// DateTime parses a human or ISO date/time string.
func DateTime(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(text)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Date parses a date string, truncating any time component to midnight UTC.
func Date(text string) (time.Time, bool) {
	t, ok := DateTime(text)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
