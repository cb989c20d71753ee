// Package sheets appends newly created records to a spreadsheet via a
// webhook. It is a one-way sink with no state machine: a record is appended
// once, on creation, and failures are logged rather than retried.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadforge/leadforge/internal/model"
)

// Appender is the sink interface the runner fans out to on record creation.
type Appender interface {
	AppendRecord(ctx context.Context, rec *model.Record) error
}

// RecordRow flattens a record into the sheet's column order.
func RecordRow(rec *model.Record) []string {
	phone := rec.PhoneE164
	if phone == "" {
		phone = rec.PhoneRaw
	}
	fmtTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	return []string{
		rec.ID,
		string(rec.Status),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.FullName,
		rec.Email,
		phone,
		rec.Company,
		rec.CountryCode,
		rec.SourceName,
		rec.SourceURL,
		rec.SourceRef,
		fmtTime(rec.EventDate),
		fmtTime(rec.EventDateTime),
		rec.EventText,
	}
}

// WebhookAppender posts each record's row to a webhook that appends it to
// the sheet.
type WebhookAppender struct {
	url    string
	client *http.Client
}

// NewWebhookAppender builds an appender for the given webhook URL.
func NewWebhookAppender(url string) *WebhookAppender {
	return &WebhookAppender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type appendRequest struct {
	Values [][]string `json:"values"`
}

func (a *WebhookAppender) AppendRecord(ctx context.Context, rec *model.Record) error {
	payload, err := json.Marshal(appendRequest{Values: [][]string{RecordRow(rec)}})
	if err != nil {
		return eris.Wrap(err, "sheets: marshal row")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "sheets: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "sheets: append request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("sheets: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
