package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/leadforge/internal/discover"
	"github.com/leadforge/leadforge/internal/fetch"
	"github.com/leadforge/leadforge/internal/model"
	"github.com/leadforge/leadforge/internal/store"
)

type fakeStore struct {
	records    map[string]*model.Record
	enrichable []string
	updates    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*model.Record{}}
}

func (f *fakeStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.NotFound("record", id)
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeStore) UpdateRecord(_ context.Context, r *model.Record) error {
	f.updates++
	f.records[r.ID] = r
	return nil
}

func (f *fakeStore) ListEnrichableRecordIDs(_ context.Context, limit int) ([]string, error) {
	if limit > 0 && len(f.enrichable) > limit {
		return f.enrichable[:limit], nil
	}
	return f.enrichable, nil
}

type fakeFetcher struct {
	pages map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ fetch.Options) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.pages[url], nil
}

const eventbriteDetailHTML = `<html><body>
	<div class="organizer-name">Jazz Collective SF</div>
	<div class="event-description">Monthly jam session. Reach us at booking@jazzcollective.org or (415) 555-2671.</div>
	<a rel="nofollow" target="_blank" href="https://jazzcollective.org">Site</a>
	<time datetime="2026-09-12T19:30:00">Sep 12</time>
	<div class="event-details__location">50 Oak St, San Francisco</div>
</body></html>`

func TestEnrichRecord_FillsEmptyFields(t *testing.T) {
	st := newFakeStore()
	st.records["r1"] = &model.Record{
		ID:        "r1",
		SourceURL: "https://www.eventbrite.com/e/jam-session-123",
	}
	ff := &fakeFetcher{pages: map[string]string{
		"https://www.eventbrite.com/e/jam-session-123": eventbriteDetailHTML,
	}}
	e := New(st, ff, nil, "US", 0)

	res, err := e.EnrichRecord(context.Background(), "r1", "", false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Contains(t, res.Updated, "company")
	assert.Contains(t, res.Updated, "email")
	assert.Contains(t, res.Updated, "phone")

	rec := st.records["r1"]
	assert.Equal(t, "Jazz Collective SF", rec.Company)
	assert.Equal(t, "booking@jazzcollective.org", rec.Email)
	assert.Equal(t, "https://jazzcollective.org", rec.Website)
	assert.Equal(t, "(415) 555-2671", rec.PhoneRaw)
	assert.Equal(t, "+14155552671", rec.PhoneE164)
	assert.Equal(t, "50 Oak St, San Francisco", rec.Address)
	require.NotNil(t, rec.EventDateTime)
	assert.Equal(t, 2026, rec.EventDateTime.Year())
	assert.Equal(t, 1, st.updates)
}

func TestEnrichRecord_KeepsExistingValues(t *testing.T) {
	st := newFakeStore()
	st.records["r1"] = &model.Record{
		ID:        "r1",
		SourceURL: "https://www.eventbrite.com/e/jam-session-123",
		Address:   "PO Box 7, Oakland",
	}
	ff := &fakeFetcher{pages: map[string]string{
		"https://www.eventbrite.com/e/jam-session-123": eventbriteDetailHTML,
	}}
	e := New(st, ff, nil, "US", 0)

	res, err := e.EnrichRecord(context.Background(), "r1", "", false)
	require.NoError(t, err)
	assert.NotContains(t, res.Updated, "address")
	assert.Equal(t, "PO Box 7, Oakland", st.records["r1"].Address)
}

func TestEnrichRecord_SkipsAlreadyEnriched(t *testing.T) {
	st := newFakeStore()
	st.records["r1"] = &model.Record{
		ID:        "r1",
		SourceURL: "https://example.org/detail",
		Email:     "kept@band.org",
	}
	ff := &fakeFetcher{}
	e := New(st, ff, nil, "US", 0)

	res, err := e.EnrichRecord(context.Background(), "r1", "", false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, ff.calls)
	assert.Zero(t, st.updates)
}

func TestEnrichRecord_NoSourceURL(t *testing.T) {
	st := newFakeStore()
	st.records["r1"] = &model.Record{ID: "r1"}
	e := New(st, &fakeFetcher{}, nil, "US", 0)

	_, err := e.EnrichRecord(context.Background(), "r1", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source url")
}

func TestEnrichRecord_GenericPageScansText(t *testing.T) {
	html := `<html><head><meta name="description" content="Open mic every Thursday."></head>
	<body>Contact noreply@venue.example.com or promoter@thevenue.net for slots.</body></html>`
	st := newFakeStore()
	st.records["r1"] = &model.Record{ID: "r1", SourceURL: "https://thevenue.net/openmic"}
	ff := &fakeFetcher{pages: map[string]string{"https://thevenue.net/openmic": html}}
	e := New(st, ff, nil, "US", 0)

	res, err := e.EnrichRecord(context.Background(), "r1", "", false)
	require.NoError(t, err)
	assert.Contains(t, res.Updated, "email")
	assert.Equal(t, "promoter@thevenue.net", st.records["r1"].Email)
	assert.Equal(t, "Open mic every Thursday.", st.records["r1"].EventText)
}

func TestEnrichRecord_DropsPlatformOwnWebsite(t *testing.T) {
	html := `<html><body>
	<div class="organizer-name">Acme Events</div>
	<a rel="nofollow" target="_blank" href="https://www.eventbrite.com/o/acme-events">Profile</a>
	</body></html>`
	st := newFakeStore()
	st.records["r1"] = &model.Record{ID: "r1", SourceURL: "https://www.eventbrite.com/e/acme-999"}
	ff := &fakeFetcher{pages: map[string]string{"https://www.eventbrite.com/e/acme-999": html}}
	e := New(st, ff, nil, "US", 0)

	_, err := e.EnrichRecord(context.Background(), "r1", discover.PlatformEventbrite, false)
	require.NoError(t, err)
	assert.Empty(t, st.records["r1"].Website)
	assert.Equal(t, "Acme Events", st.records["r1"].Company)
}

func TestEnrichBatch_CountsOutcomes(t *testing.T) {
	st := newFakeStore()
	st.records["ok"] = &model.Record{ID: "ok", SourceURL: "https://thevenue.net/a"}
	st.records["done"] = &model.Record{ID: "done", SourceURL: "https://thevenue.net/b", Company: "Booked"}
	st.records["bad"] = &model.Record{ID: "bad"}
	st.enrichable = []string{"ok", "done", "bad"}
	ff := &fakeFetcher{pages: map[string]string{
		"https://thevenue.net/a": `<html><body>mail gigs@thevenue.net</body></html>`,
	}}
	e := New(st, ff, nil, "US", 0)

	sum, err := e.EnrichBatch(context.Background(), nil, "", false, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Total: 3, Enriched: 1, Skipped: 1, Failed: 1}, sum)
	assert.Equal(t, "gigs@thevenue.net", st.records["ok"].Email)
}

func TestEnrichBatch_ExplicitIDsSkipSelection(t *testing.T) {
	st := newFakeStore()
	st.records["r1"] = &model.Record{ID: "r1", SourceURL: "https://thevenue.net/a"}
	st.enrichable = []string{"never-used"}
	ff := &fakeFetcher{pages: map[string]string{
		"https://thevenue.net/a": `<html><body>mail gigs@thevenue.net</body></html>`,
	}}
	e := New(st, ff, nil, "US", 0)

	sum, err := e.EnrichBatch(context.Background(), []string{"r1"}, "", false, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Total: 1, Enriched: 1}, sum)
}
