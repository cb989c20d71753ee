package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadforge/leadforge/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS targets (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	enabled           INTEGER NOT NULL DEFAULT 1,
	mode              TEXT NOT NULL DEFAULT 'static',
	start_url         TEXT NOT NULL,
	run_interval_secs INTEGER NOT NULL DEFAULT 3600,
	config            TEXT NOT NULL DEFAULT '{}',
	last_run_at       DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	target_id     TEXT NOT NULL REFERENCES targets(id),
	target_name   TEXT NOT NULL DEFAULT '',
	trigger       TEXT NOT NULL DEFAULT 'manual',
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME,
	item_count    INTEGER NOT NULL DEFAULT 0,
	created_count INTEGER NOT NULL DEFAULT 0,
	updated_count INTEGER NOT NULL DEFAULT 0,
	stats         TEXT,
	error_text    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS records (
	id               TEXT PRIMARY KEY,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	source_name      TEXT NOT NULL DEFAULT '',
	source_url       TEXT NOT NULL DEFAULT '',
	source_ref       TEXT NOT NULL DEFAULT '',
	full_name        TEXT NOT NULL DEFAULT '',
	first_name       TEXT NOT NULL DEFAULT '',
	last_name        TEXT NOT NULL DEFAULT '',
	position         TEXT NOT NULL DEFAULT '',
	company          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	phone_raw        TEXT NOT NULL DEFAULT '',
	phone_e164       TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL DEFAULT '',
	country_code     TEXT NOT NULL DEFAULT '',
	zip_code         TEXT NOT NULL DEFAULT '',
	default_language TEXT NOT NULL DEFAULT '',
	lead_value       REAL,
	event_date       DATETIME,
	event_datetime   DATETIME,
	event_text       TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	raw_payload      TEXT NOT NULL DEFAULT '{}',
	raw_payload_hash TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'new'
);

CREATE TABLE IF NOT EXISTS sync_states (
	record_id     TEXT PRIMARY KEY REFERENCES records(id),
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	last_sync_at  DATETIME,
	last_error    TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	next_retry_at DATETIME,
	payload_hash  TEXT NOT NULL DEFAULT '',
	last_payload  TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_runs_target_started ON runs(target_id, started_at);
CREATE INDEX IF NOT EXISTS idx_records_email ON records(email);
CREATE INDEX IF NOT EXISTS idx_records_phone_e164 ON records(phone_e164);
CREATE INDEX IF NOT EXISTS idx_records_raw_hash ON records(raw_payload_hash);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source_name, source_ref);
CREATE INDEX IF NOT EXISTS idx_sync_states_due ON sync_states(status, next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Targets ---

func (s *SQLiteStore) CreateTarget(ctx context.Context, t *model.Target) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (`+targetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Enabled, string(t.Mode), t.StartURL, int64(t.RunInterval/time.Second),
		string(t.RawConfig), nullTime(t.LastRunAt), t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert target %s", t.Name)
}

func (s *SQLiteStore) UpdateTarget(ctx context.Context, t *model.Target) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET name = ?, enabled = ?, mode = ?, start_url = ?,
		 run_interval_secs = ?, config = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Enabled, string(t.Mode), t.StartURL,
		int64(t.RunInterval/time.Second), string(t.RawConfig), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update target %s", t.ID)
	}
	return checkRowsAffected(res, "target", t.ID)
}

func (s *SQLiteStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("target", id)
	}
	return t, eris.Wrap(err, "sqlite: get target")
}

func (s *SQLiteStore) GetTargetByName(ctx context.Context, name string) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE name = ?`, name)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("target", name)
	}
	return t, eris.Wrap(err, "sqlite: get target by name")
}

func (s *SQLiteStore) ListTargets(ctx context.Context, enabledOnly bool) ([]model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list targets")
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan target")
		}
		targets = append(targets, *t)
	}
	return targets, eris.Wrap(rows.Err(), "sqlite: list targets iterate")
}

func (s *SQLiteStore) TouchTargetLastRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch target %s", id)
	}
	return checkRowsAffected(res, "target", id)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, t *model.Target, trigger model.RunTrigger) (*model.Run, error) {
	run := &model.Run{
		ID:         uuid.New().String(),
		TargetID:   t.ID,
		TargetName: t.Name,
		Trigger:    trigger,
		Status:     model.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, target_id, target_name, trigger, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.TargetID, run.TargetName, string(run.Trigger), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for %s", t.Name)
	}
	return run, nil
}

func (s *SQLiteStore) FinalizeRun(ctx context.Context, run *model.Run) error {
	stats, err := marshalJSON(run.Stats)
	if err != nil {
		return err
	}
	// A terminal run status never flips back: only running rows finalize.
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, item_count = ?, created_count = ?,
		 updated_count = ?, stats = ?, error_text = ?
		 WHERE id = ? AND status = 'running'`,
		string(run.Status), nullTime(run.FinishedAt), run.ItemCount, run.CreatedCount,
		run.UpdatedCount, stats, run.ErrorText, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run %s", run.ID)
	}
	return checkRowsAffected(res, "running run", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, targetID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if targetID != "" {
		query += ` WHERE target_id = ?`
		args = append(args, targetID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Records ---

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("record", id)
	}
	return r, eris.Wrap(err, "sqlite: get record")
}

func (s *SQLiteStore) findRecord(ctx context.Context, where string, arg any) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+where+
			` ORDER BY created_at DESC, id DESC LIMIT 1`, arg)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, eris.Wrap(err, "sqlite: find record")
}

func (s *SQLiteStore) FindRecordByEmail(ctx context.Context, email string) (*model.Record, error) {
	return s.findRecord(ctx, `email = ? COLLATE NOCASE AND email != ''`, email)
}

func (s *SQLiteStore) FindRecordByPhone(ctx context.Context, e164 string) (*model.Record, error) {
	return s.findRecord(ctx, `phone_e164 = ? AND phone_e164 != ''`, e164)
}

func (s *SQLiteStore) FindRecordByRawHash(ctx context.Context, hash string) (*model.Record, error) {
	return s.findRecord(ctx, `raw_payload_hash = ? AND raw_payload_hash != ''`, hash)
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, r *model.Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Status == "" {
		r.Status = model.RecordNew
	}

	vals, err := recordValues(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (`+placeholders(len(vals))+`)`,
		vals...,
	)
	return eris.Wrapf(err, "sqlite: insert record %s", r.ID)
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, r *model.Record) error {
	r.UpdatedAt = time.Now().UTC()
	payload, err := marshalJSON(r.RawPayload)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET updated_at = ?, source_name = ?, source_url = ?, source_ref = ?,
		 full_name = ?, first_name = ?, last_name = ?, position = ?, company = ?, email = ?,
		 website = ?, phone_raw = ?, phone_e164 = ?, address = ?, city = ?, state = ?,
		 country_code = ?, zip_code = ?, default_language = ?, lead_value = ?,
		 event_date = ?, event_datetime = ?, event_text = ?, notes = ?,
		 raw_payload = ?, raw_payload_hash = ?, status = ?
		 WHERE id = ?`,
		r.UpdatedAt, r.SourceName, r.SourceURL, r.SourceRef,
		r.FullName, r.FirstName, r.LastName, r.Position, r.Company, r.Email,
		r.Website, r.PhoneRaw, r.PhoneE164, r.Address, r.City, r.State,
		r.CountryCode, r.ZipCode, r.DefaultLanguage, nullFloat(r.LeadValue),
		nullTime(r.EventDate), nullTime(r.EventDateTime), r.EventText, r.Notes,
		payload, r.RawPayloadHash, string(r.Status), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", r.ID)
	}
	return checkRowsAffected(res, "record", r.ID)
}

// --- Sync states ---

func (s *SQLiteStore) GetOrCreateSyncState(ctx context.Context, recordID string) (*model.SyncState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncStateColumns+` FROM sync_states WHERE record_id = ?`, recordID)
	st, err := scanSyncState(row)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(err, "sqlite: get sync state")
	}

	now := time.Now().UTC()
	st = &model.SyncState{
		RecordID:  recordID,
		Status:    model.SyncPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_states (record_id, created_at, updated_at, status)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(record_id) DO NOTHING`,
		st.RecordID, st.CreatedAt, st.UpdatedAt, string(st.Status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create sync state %s", recordID)
	}
	return st, nil
}

func (s *SQLiteStore) UpdateSyncState(ctx context.Context, st *model.SyncState) error {
	st.UpdatedAt = time.Now().UTC()
	payload, err := marshalJSON(st.LastPayload)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_states SET updated_at = ?, external_id = ?, status = ?, last_sync_at = ?,
		 last_error = ?, attempts = ?, next_retry_at = ?, payload_hash = ?, last_payload = ?
		 WHERE record_id = ?`,
		st.UpdatedAt, st.ExternalID, string(st.Status), nullTime(st.LastSyncAt),
		st.LastError, st.Attempts, nullTime(st.NextRetryAt), st.PayloadHash, payload,
		st.RecordID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update sync state %s", st.RecordID)
	}
	return checkRowsAffected(res, "sync state", st.RecordID)
}

func (s *SQLiteStore) ListEnrichableRecordIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records
		 WHERE source_url != '' AND email = '' AND company = ''
		 ORDER BY created_at, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enrichable records")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: enrichable records iterate")
}

func (s *SQLiteStore) DueSyncRecordIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM sync_states
		 WHERE status IN ('pending', 'error')
		   AND (next_retry_at IS NULL OR next_retry_at <= ?)
		 ORDER BY next_retry_at, record_id
		 LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due sync records")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: due sync records iterate")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return NotFound(entity, id)
	}
	return nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}
