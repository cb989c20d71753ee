package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/leadforge/internal/model"
)

func TestNewClient_RequiresConfig(t *testing.T) {
	_, err := NewClient("", "token")
	require.Error(t, err)

	_, err = NewClient("https://crm.example", "")
	require.Error(t, err)
}

func TestClient_CreateLead(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody) //nolint:errcheck
		json.NewEncoder(w).Encode(map[string]any{"id": 42}) //nolint:errcheck
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", "secret-token")
	require.NoError(t, err)

	resp, err := client.CreateLead(context.Background(), map[string]any{"name": "Alice"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/api/leads", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Alice", gotBody["name"])
	assert.Equal(t, "42", ExtractExternalID(resp))
}

func TestClient_UpdateLead(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{"success": true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret-token")
	require.NoError(t, err)

	_, err = client.UpdateLead(context.Background(), "lead-7", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "/api/leads/lead-7", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestClient_APIErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write(long) //nolint:errcheck
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret-token")
	require.NoError(t, err)

	_, err = client.CreateLead(context.Background(), map[string]any{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestClient_NonJSONResponseIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("lead created")) //nolint:errcheck
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret-token")
	require.NoError(t, err)

	resp, err := client.CreateLead(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestBuildLeadPayload_Description(t *testing.T) {
	eventDate := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	rec := &model.Record{
		FullName:   "Alice Archer",
		Email:      "alice@example.com",
		PhoneE164:  "+14155550100",
		PhoneRaw:   "(415) 555-0100",
		Company:    "Archer Co",
		EventText:  "Summit 2026",
		EventDate:  &eventDate,
		SourceName: "events",
		SourceURL:  "https://example.com/events",
		Position:   "CTO",
		Notes:      "met at booth",
	}

	payload := BuildLeadPayload(rec, nil)
	assert.Equal(t, "Alice Archer", payload["name"])
	assert.Equal(t, "+14155550100", payload["phonenumber"])
	assert.Equal(t, "CTO", payload["title"])

	desc := payload["description"].(string)
	assert.Contains(t, desc, "Event: Summit 2026")
	assert.Contains(t, desc, "Event Date: 2026-01-25")
	assert.Contains(t, desc, "Source: events")
	assert.Contains(t, desc, "Position: CTO")
	assert.Contains(t, desc, "met at booth")
}

func TestBuildLeadPayload_FallbacksAndOmissions(t *testing.T) {
	rec := &model.Record{PhoneRaw: "555-0100"}
	payload := BuildLeadPayload(rec, nil)

	assert.Equal(t, "Unknown", payload["name"])
	assert.Equal(t, "555-0100", payload["phonenumber"])
	_, hasWebsite := payload["website"]
	assert.False(t, hasWebsite)
	_, hasValue := payload["lead_value"]
	assert.False(t, hasValue)
}

func TestBuildLeadPayload_DefaultsFillOnlyEmpty(t *testing.T) {
	rec := &model.Record{FullName: "Alice", Company: "Archer Co"}
	defaults := map[string]any{
		"status":  4,
		"source":  9,
		"company": "Default Co",
		"name":    "Default Name",
		"empty":   "",
	}

	payload := BuildLeadPayload(rec, defaults)
	assert.Equal(t, 4, payload["status"])
	assert.Equal(t, 9, payload["source"])
	assert.Equal(t, "Archer Co", payload["company"])
	assert.Equal(t, "Alice", payload["name"])
	_, hasEmpty := payload["empty"]
	assert.False(t, hasEmpty)

	// Empty email in the record is fillable by a default.
	payload = BuildLeadPayload(rec, map[string]any{"email": "fallback@example.com"})
	assert.Equal(t, "fallback@example.com", payload["email"])
}

func TestBuildLeadPayload_ExtrasWinOverDefaults(t *testing.T) {
	rec := &model.Record{
		FullName: "Alice",
		RawPayload: map[string]any{
			ExtraFieldsKey: map[string]any{
				"tags":   "conference,q1",
				"status": 7,
			},
		},
	}

	payload := BuildLeadPayload(rec, map[string]any{"status": 4})
	assert.Equal(t, "conference,q1", payload["tags"])
	assert.Equal(t, 7, payload["status"])
}

func TestExtractExternalID(t *testing.T) {
	cases := []struct {
		name string
		resp map[string]any
		want string
	}{
		{"top-level string id", map[string]any{"id": "42"}, "42"},
		{"top-level numeric id", map[string]any{"id": float64(42)}, "42"},
		{"lead_id", map[string]any{"lead_id": "7"}, "7"},
		{"nested under data", map[string]any{"data": map[string]any{"id": float64(9)}}, "9"},
		{"nested lead_id under result", map[string]any{"result": map[string]any{"lead_id": "13"}}, "13"},
		{"blank id skipped", map[string]any{"id": "  ", "lead_id": "5"}, "5"},
		{"nothing usable", map[string]any{"success": true}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractExternalID(tc.resp))
		})
	}
}
