// Package upsert maps extracted rows into records and reconciles them
// against existing ones. Matching prefers strong identity (email, then
// normalized phone) and falls back to the row's content hash, so a rescrape
// of unchanged pages is a no-op apart from refreshing the raw snapshot.
package upsert

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/leadforge/leadforge/internal/fetch"
	"github.com/leadforge/leadforge/internal/hashing"
	"github.com/leadforge/leadforge/internal/model"
	"github.com/leadforge/leadforge/internal/normalize"
)

// RecordStore is the slice of the store the engine needs.
type RecordStore interface {
	FindRecordByEmail(ctx context.Context, email string) (*model.Record, error)
	FindRecordByPhone(ctx context.Context, e164 string) (*model.Record, error)
	FindRecordByRawHash(ctx context.Context, hash string) (*model.Record, error)
	CreateRecord(ctx context.Context, r *model.Record) error
	UpdateRecord(ctx context.Context, r *model.Record) error
}

// Engine performs the row-to-record upsert for one target's extracted rows.
type Engine struct {
	store         RecordStore
	defaultRegion string
	matchByHash   bool
}

// New builds an engine. defaultRegion is the phone-parsing hint for numbers
// without a country code. matchByHash enables the content-hash fallback when
// neither email nor phone identify the row.
func New(store RecordStore, defaultRegion string, matchByHash bool) *Engine {
	return &Engine{store: store, defaultRegion: defaultRegion, matchByHash: matchByHash}
}

func firstNonEmpty(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v
		}
	}
	return ""
}

// mapRow converts one extracted row into record fields. Every field uses a
// first-non-empty-of-candidate-keys lookup so differently-named source
// columns land in the same place.
func (e *Engine) mapRow(t *model.Target, row map[string]string) *model.Record {
	rec := &model.Record{
		SourceName: t.Name,
		SourceURL:  firstNonEmpty(row, fetch.KeyPageURL),
		SourceRef:  firstNonEmpty(row, "source_ref", "id", "ref", "listing_id"),

		FullName:  firstNonEmpty(row, "full_name", "name"),
		FirstName: firstNonEmpty(row, "first_name"),
		LastName:  firstNonEmpty(row, "last_name"),
		Position:  firstNonEmpty(row, "position", "job_title"),
		Company:   firstNonEmpty(row, "company", "organization"),
		Email:     firstNonEmpty(row, "email", "email_address"),
		Website:   firstNonEmpty(row, "website", "url", "website_url", "site"),

		Address:         firstNonEmpty(row, "address"),
		City:            firstNonEmpty(row, "city"),
		State:           firstNonEmpty(row, "state"),
		CountryCode:     firstNonEmpty(row, "country_code", "country"),
		ZipCode:         firstNonEmpty(row, "zip_code", "zip", "postal_code"),
		DefaultLanguage: firstNonEmpty(row, "default_language", "language"),

		EventText: firstNonEmpty(row, "event_name", "event_text", "date_text", "event_description", "description"),
		Notes:     firstNonEmpty(row, "notes"),
	}
	if rec.SourceURL == "" {
		rec.SourceURL = t.StartURL
	}

	rec.PhoneRaw = firstNonEmpty(row, "phone", "phone_number", "phonenumber")
	if rec.PhoneRaw != "" {
		if p, ok := normalize.Phone(rec.PhoneRaw, e.defaultRegion); ok {
			rec.PhoneE164 = p.E164
		}
	}

	if s := firstNonEmpty(row, "event_date", "date"); s != "" {
		if d, ok := normalize.Date(s); ok {
			rec.EventDate = &d
		}
	}
	if s := firstNonEmpty(row, "event_datetime", "datetime"); s != "" {
		if d, ok := normalize.DateTime(s); ok {
			rec.EventDateTime = &d
		}
	}
	if s := firstNonEmpty(row, "lead_value", "value"); s != "" {
		if v, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64); err == nil {
			rec.LeadValue = &v
		}
	}

	return rec
}

// match resolves the row against existing records: case-insensitive email
// first, then normalized phone, then the raw content hash. Each lookup
// prefers the most recently created record on ties.
func (e *Engine) match(ctx context.Context, mapped *model.Record, rawHash string) (*model.Record, error) {
	if mapped.Email != "" {
		existing, err := e.store.FindRecordByEmail(ctx, mapped.Email)
		if err != nil || existing != nil {
			return existing, err
		}
	}
	if mapped.PhoneE164 != "" {
		existing, err := e.store.FindRecordByPhone(ctx, mapped.PhoneE164)
		if err != nil || existing != nil {
			return existing, err
		}
	}
	if e.matchByHash && rawHash != "" {
		return e.store.FindRecordByRawHash(ctx, rawHash)
	}
	return nil, nil
}

// UpsertRow creates or merges one extracted row. The returned bool reports
// creation, so callers can keep created/updated run counts and fire
// creation-only side effects.
func (e *Engine) UpsertRow(ctx context.Context, t *model.Target, row map[string]string) (*model.Record, bool, error) {
	rawHash, err := hashing.HashObject(row)
	if err != nil {
		return nil, false, eris.Wrap(err, "upsert: hash row")
	}
	mapped := e.mapRow(t, row)

	existing, err := e.match(ctx, mapped, rawHash)
	if err != nil {
		return nil, false, err
	}

	payload := make(map[string]any, len(row))
	for k, v := range row {
		payload[k] = v
	}

	if existing == nil {
		mapped.RawPayload = payload
		mapped.RawPayloadHash = rawHash
		mapped.Status = model.RecordNew
		if err := e.store.CreateRecord(ctx, mapped); err != nil {
			return nil, false, err
		}
		return mapped, true, nil
	}

	// Closed records are never resurrected by a later scrape.
	if existing.Status.Terminal() {
		return existing, false, nil
	}

	merge(existing, mapped)
	existing.RawPayload = payload
	existing.RawPayloadHash = rawHash
	if err := e.store.UpdateRecord(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// merge overwrites dst fields only with non-empty incoming values that
// differ from the trimmed current value. Blanks never erase.
func merge(dst, src *model.Record) {
	mergeStr := func(dst *string, v string) {
		if v != "" && strings.TrimSpace(*dst) != v {
			*dst = v
		}
	}
	mergeStr(&dst.SourceName, src.SourceName)
	mergeStr(&dst.SourceURL, src.SourceURL)
	mergeStr(&dst.SourceRef, src.SourceRef)
	mergeStr(&dst.FullName, src.FullName)
	mergeStr(&dst.FirstName, src.FirstName)
	mergeStr(&dst.LastName, src.LastName)
	mergeStr(&dst.Position, src.Position)
	mergeStr(&dst.Company, src.Company)
	mergeStr(&dst.Email, src.Email)
	mergeStr(&dst.Website, src.Website)
	mergeStr(&dst.PhoneRaw, src.PhoneRaw)
	mergeStr(&dst.PhoneE164, src.PhoneE164)
	mergeStr(&dst.Address, src.Address)
	mergeStr(&dst.City, src.City)
	mergeStr(&dst.State, src.State)
	mergeStr(&dst.CountryCode, src.CountryCode)
	mergeStr(&dst.ZipCode, src.ZipCode)
	mergeStr(&dst.DefaultLanguage, src.DefaultLanguage)
	mergeStr(&dst.EventText, src.EventText)
	mergeStr(&dst.Notes, src.Notes)

	if src.LeadValue != nil && (dst.LeadValue == nil || *dst.LeadValue != *src.LeadValue) {
		dst.LeadValue = src.LeadValue
	}
	if src.EventDate != nil && (dst.EventDate == nil || !dst.EventDate.Equal(*src.EventDate)) {
		dst.EventDate = src.EventDate
	}
	if src.EventDateTime != nil && (dst.EventDateTime == nil || !dst.EventDateTime.Equal(*src.EventDateTime)) {
		dst.EventDateTime = src.EventDateTime
	}
}
