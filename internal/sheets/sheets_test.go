package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/leadforge/internal/model"
)

func TestRecordRow_ColumnOrder(t *testing.T) {
	created := time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)
	eventDate := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := &model.Record{
		ID:         "rec-1",
		Status:     model.RecordNew,
		CreatedAt:  created,
		UpdatedAt:  created,
		FullName:   "Alice Archer",
		Email:      "alice@example.com",
		PhoneE164:  "+14155550100",
		PhoneRaw:   "415 555 0100",
		Company:    "Archer Co",
		SourceName: "events",
		EventDate:  &eventDate,
		EventText:  "Summit 2026",
	}

	row := RecordRow(rec)
	assert.Equal(t, "rec-1", row[0])
	assert.Equal(t, "new", row[1])
	assert.Equal(t, "2026-01-25T10:00:00Z", row[2])
	assert.Equal(t, "Alice Archer", row[4])
	// Normalized phone preferred over raw.
	assert.Equal(t, "+14155550100", row[6])
	assert.Equal(t, "2026-02-01T00:00:00Z", row[12])
	assert.Equal(t, "Summit 2026", row[14])
	assert.Len(t, row, 15)
}

func TestRecordRow_RawPhoneFallback(t *testing.T) {
	rec := &model.Record{PhoneRaw: "call 555"}
	assert.Equal(t, "call 555", RecordRow(rec)[6])
}

func TestWebhookAppender_PostsRow(t *testing.T) {
	var got appendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	app := NewWebhookAppender(srv.URL)
	err := app.AppendRecord(context.Background(), &model.Record{ID: "rec-1", FullName: "Alice"})
	require.NoError(t, err)

	require.Len(t, got.Values, 1)
	assert.Equal(t, "rec-1", got.Values[0][0])
	assert.Equal(t, "Alice", got.Values[0][4])
}

func TestWebhookAppender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	app := NewWebhookAppender(srv.URL)
	err := app.AppendRecord(context.Background(), &model.Record{ID: "rec-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
