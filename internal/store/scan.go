package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadforge/leadforge/internal/model"
)

// Column lists are shared by the SQLite and Postgres implementations so the
// scan helpers below stay in lockstep with the queries.
const (
	targetColumns = `id, name, enabled, mode, start_url, run_interval_secs, config, last_run_at, created_at, updated_at`

	runColumns = `id, target_id, target_name, trigger, status, started_at, finished_at,
		item_count, created_count, updated_count, stats, error_text`

	recordColumns = `id, created_at, updated_at, source_name, source_url, source_ref,
		full_name, first_name, last_name, position, company, email, website, phone_raw, phone_e164,
		address, city, state, country_code, zip_code, default_language, lead_value,
		event_date, event_datetime, event_text, notes, raw_payload, raw_payload_hash, status`

	syncStateColumns = `record_id, created_at, updated_at, external_id, status, last_sync_at,
		last_error, attempts, next_retry_at, payload_hash, last_payload`
)

type scannable interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal json")
	}
	return string(b), nil
}

func scanTarget(row scannable) (*model.Target, error) {
	var (
		t            model.Target
		intervalSecs int64
		config       string
		lastRun      sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Name, &t.Enabled, &t.Mode, &t.StartURL, &intervalSecs,
		&config, &lastRun, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.RunInterval = time.Duration(intervalSecs) * time.Second
	t.RawConfig = json.RawMessage(config)
	t.LastRunAt = timePtr(lastRun)
	return &t, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r        model.Run
		finished sql.NullTime
		stats    sql.NullString
	)
	err := row.Scan(&r.ID, &r.TargetID, &r.TargetName, &r.Trigger, &r.Status, &r.StartedAt,
		&finished, &r.ItemCount, &r.CreatedCount, &r.UpdatedCount, &stats, &r.ErrorText)
	if err != nil {
		return nil, err
	}
	r.FinishedAt = timePtr(finished)
	if stats.Valid && stats.String != "" {
		if err := json.Unmarshal([]byte(stats.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal run stats")
		}
	}
	return &r, nil
}

func scanRecord(row scannable) (*model.Record, error) {
	var (
		r          model.Record
		leadValue  sql.NullFloat64
		eventDate  sql.NullTime
		eventDT    sql.NullTime
		rawPayload string
	)
	err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.SourceName, &r.SourceURL, &r.SourceRef,
		&r.FullName, &r.FirstName, &r.LastName, &r.Position, &r.Company, &r.Email, &r.Website,
		&r.PhoneRaw, &r.PhoneE164, &r.Address, &r.City, &r.State, &r.CountryCode, &r.ZipCode,
		&r.DefaultLanguage, &leadValue, &eventDate, &eventDT, &r.EventText, &r.Notes,
		&rawPayload, &r.RawPayloadHash, &r.Status)
	if err != nil {
		return nil, err
	}
	if leadValue.Valid {
		v := leadValue.Float64
		r.LeadValue = &v
	}
	r.EventDate = timePtr(eventDate)
	r.EventDateTime = timePtr(eventDT)
	if rawPayload != "" {
		if err := json.Unmarshal([]byte(rawPayload), &r.RawPayload); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal raw payload")
		}
	}
	return &r, nil
}

// recordValues returns the bind arguments in recordColumns order.
func recordValues(r *model.Record) ([]any, error) {
	payload, err := marshalJSON(r.RawPayload)
	if err != nil {
		return nil, err
	}
	return []any{
		r.ID, r.CreatedAt, r.UpdatedAt, r.SourceName, r.SourceURL, r.SourceRef,
		r.FullName, r.FirstName, r.LastName, r.Position, r.Company, r.Email, r.Website,
		r.PhoneRaw, r.PhoneE164, r.Address, r.City, r.State, r.CountryCode, r.ZipCode,
		r.DefaultLanguage, nullFloat(r.LeadValue), nullTime(r.EventDate), nullTime(r.EventDateTime),
		r.EventText, r.Notes, payload, r.RawPayloadHash, string(r.Status),
	}, nil
}

func scanSyncState(row scannable) (*model.SyncState, error) {
	var (
		s           model.SyncState
		lastSync    sql.NullTime
		nextRetry   sql.NullTime
		lastPayload string
	)
	err := row.Scan(&s.RecordID, &s.CreatedAt, &s.UpdatedAt, &s.ExternalID, &s.Status,
		&lastSync, &s.LastError, &s.Attempts, &nextRetry, &s.PayloadHash, &lastPayload)
	if err != nil {
		return nil, err
	}
	s.LastSyncAt = timePtr(lastSync)
	s.NextRetryAt = timePtr(nextRetry)
	if lastPayload != "" {
		if err := json.Unmarshal([]byte(lastPayload), &s.LastPayload); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal last payload")
		}
	}
	return &s, nil
}
