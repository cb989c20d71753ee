package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadforge/leadforge/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Declared here so tests
// can substitute a mock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects a pgx pool to the given DSN and pings it.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS targets (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	mode              TEXT NOT NULL DEFAULT 'static',
	start_url         TEXT NOT NULL,
	run_interval_secs BIGINT NOT NULL DEFAULT 3600,
	config            JSONB NOT NULL DEFAULT '{}',
	last_run_at       TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	target_id     TEXT NOT NULL REFERENCES targets(id),
	target_name   TEXT NOT NULL DEFAULT '',
	trigger       TEXT NOT NULL DEFAULT 'manual',
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	item_count    INTEGER NOT NULL DEFAULT 0,
	created_count INTEGER NOT NULL DEFAULT 0,
	updated_count INTEGER NOT NULL DEFAULT 0,
	stats         JSONB,
	error_text    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS records (
	id               TEXT PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
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
	lead_value       DOUBLE PRECISION,
	event_date       TIMESTAMPTZ,
	event_datetime   TIMESTAMPTZ,
	event_text       TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	raw_payload      JSONB NOT NULL DEFAULT '{}',
	raw_payload_hash TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'new'
);

CREATE TABLE IF NOT EXISTS sync_states (
	record_id     TEXT PRIMARY KEY REFERENCES records(id),
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	last_sync_at  TIMESTAMPTZ,
	last_error    TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	next_retry_at TIMESTAMPTZ,
	payload_hash  TEXT NOT NULL DEFAULT '',
	last_payload  JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_runs_target_started ON runs(target_id, started_at);
CREATE INDEX IF NOT EXISTS idx_records_email ON records(LOWER(email));
CREATE INDEX IF NOT EXISTS idx_records_phone_e164 ON records(phone_e164);
CREATE INDEX IF NOT EXISTS idx_records_raw_hash ON records(raw_payload_hash);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source_name, source_ref);
CREATE INDEX IF NOT EXISTS idx_sync_states_due ON sync_states(status, next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Targets ---

func (s *PostgresStore) CreateTarget(ctx context.Context, t *model.Target) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (`+targetColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Name, t.Enabled, string(t.Mode), t.StartURL, int64(t.RunInterval/time.Second),
		string(t.RawConfig), nullTime(t.LastRunAt), t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert target %s", t.Name)
}

func (s *PostgresStore) UpdateTarget(ctx context.Context, t *model.Target) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET name = $1, enabled = $2, mode = $3, start_url = $4,
		 run_interval_secs = $5, config = $6, updated_at = $7 WHERE id = $8`,
		t.Name, t.Enabled, string(t.Mode), t.StartURL,
		int64(t.RunInterval/time.Second), string(t.RawConfig), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update target %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return NotFound("target", t.ID)
	}
	return nil
}

func (s *PostgresStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound("target", id)
	}
	return t, eris.Wrap(err, "postgres: get target")
}

func (s *PostgresStore) GetTargetByName(ctx context.Context, name string) (*model.Target, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE name = $1`, name)
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound("target", name)
	}
	return t, eris.Wrap(err, "postgres: get target by name")
}

func (s *PostgresStore) ListTargets(ctx context.Context, enabledOnly bool) ([]model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list targets")
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan target")
		}
		targets = append(targets, *t)
	}
	return targets, eris.Wrap(rows.Err(), "postgres: list targets iterate")
}

func (s *PostgresStore) TouchTargetLastRun(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET last_run_at = $1, updated_at = $2 WHERE id = $3`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch target %s", id)
	}
	if tag.RowsAffected() == 0 {
		return NotFound("target", id)
	}
	return nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, t *model.Target, trigger model.RunTrigger) (*model.Run, error) {
	run := &model.Run{
		ID:         uuid.New().String(),
		TargetID:   t.ID,
		TargetName: t.Name,
		Trigger:    trigger,
		Status:     model.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, target_id, target_name, trigger, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.TargetID, run.TargetName, string(run.Trigger), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for %s", t.Name)
	}
	return run, nil
}

func (s *PostgresStore) FinalizeRun(ctx context.Context, run *model.Run) error {
	stats, err := marshalJSON(run.Stats)
	if err != nil {
		return err
	}
	// A terminal run status never flips back: only running rows finalize.
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2, item_count = $3, created_count = $4,
		 updated_count = $5, stats = $6, error_text = $7
		 WHERE id = $8 AND status = 'running'`,
		string(run.Status), nullTime(run.FinishedAt), run.ItemCount, run.CreatedCount,
		run.UpdatedCount, stats, run.ErrorText, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return NotFound("running run", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, targetID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if targetID != "" {
		query += ` WHERE target_id = $1 ORDER BY started_at DESC LIMIT $2`
		args = append(args, targetID, limit)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Records ---

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound("record", id)
	}
	return r, eris.Wrap(err, "postgres: get record")
}

func (s *PostgresStore) findRecord(ctx context.Context, where string, arg any) (*model.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+where+
			` ORDER BY created_at DESC, id DESC LIMIT 1`, arg)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, eris.Wrap(err, "postgres: find record")
}

func (s *PostgresStore) FindRecordByEmail(ctx context.Context, email string) (*model.Record, error) {
	return s.findRecord(ctx, `LOWER(email) = LOWER($1) AND email != ''`, email)
}

func (s *PostgresStore) FindRecordByPhone(ctx context.Context, e164 string) (*model.Record, error) {
	return s.findRecord(ctx, `phone_e164 = $1 AND phone_e164 != ''`, e164)
}

func (s *PostgresStore) FindRecordByRawHash(ctx context.Context, hash string) (*model.Record, error) {
	return s.findRecord(ctx, `raw_payload_hash = $1 AND raw_payload_hash != ''`, hash)
}

func (s *PostgresStore) CreateRecord(ctx context.Context, r *model.Record) error {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (`+pgPlaceholders(len(vals))+`)`,
		vals...,
	)
	return eris.Wrapf(err, "postgres: insert record %s", r.ID)
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, r *model.Record) error {
	r.UpdatedAt = time.Now().UTC()
	payload, err := marshalJSON(r.RawPayload)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET updated_at = $1, source_name = $2, source_url = $3, source_ref = $4,
		 full_name = $5, first_name = $6, last_name = $7, position = $8, company = $9, email = $10,
		 website = $11, phone_raw = $12, phone_e164 = $13, address = $14, city = $15, state = $16,
		 country_code = $17, zip_code = $18, default_language = $19, lead_value = $20,
		 event_date = $21, event_datetime = $22, event_text = $23, notes = $24,
		 raw_payload = $25, raw_payload_hash = $26, status = $27
		 WHERE id = $28`,
		r.UpdatedAt, r.SourceName, r.SourceURL, r.SourceRef,
		r.FullName, r.FirstName, r.LastName, r.Position, r.Company, r.Email,
		r.Website, r.PhoneRaw, r.PhoneE164, r.Address, r.City, r.State,
		r.CountryCode, r.ZipCode, r.DefaultLanguage, nullFloat(r.LeadValue),
		nullTime(r.EventDate), nullTime(r.EventDateTime), r.EventText, r.Notes,
		payload, r.RawPayloadHash, string(r.Status), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return NotFound("record", r.ID)
	}
	return nil
}

// --- Sync states ---

func (s *PostgresStore) GetOrCreateSyncState(ctx context.Context, recordID string) (*model.SyncState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+syncStateColumns+` FROM sync_states WHERE record_id = $1`, recordID)
	st, err := scanSyncState(row)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: get sync state")
	}

	now := time.Now().UTC()
	st = &model.SyncState{
		RecordID:  recordID,
		Status:    model.SyncPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_states (record_id, created_at, updated_at, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (record_id) DO NOTHING`,
		st.RecordID, st.CreatedAt, st.UpdatedAt, string(st.Status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create sync state %s", recordID)
	}
	return st, nil
}

func (s *PostgresStore) UpdateSyncState(ctx context.Context, st *model.SyncState) error {
	st.UpdatedAt = time.Now().UTC()
	payload, err := marshalJSON(st.LastPayload)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_states SET updated_at = $1, external_id = $2, status = $3, last_sync_at = $4,
		 last_error = $5, attempts = $6, next_retry_at = $7, payload_hash = $8, last_payload = $9
		 WHERE record_id = $10`,
		st.UpdatedAt, st.ExternalID, string(st.Status), nullTime(st.LastSyncAt),
		st.LastError, st.Attempts, nullTime(st.NextRetryAt), st.PayloadHash, payload,
		st.RecordID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update sync state %s", st.RecordID)
	}
	if tag.RowsAffected() == 0 {
		return NotFound("sync state", st.RecordID)
	}
	return nil
}

func (s *PostgresStore) ListEnrichableRecordIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM records
		 WHERE source_url != '' AND email = '' AND company = ''
		 ORDER BY created_at, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enrichable records")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: enrichable records iterate")
}

func (s *PostgresStore) DueSyncRecordIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT record_id FROM sync_states
		 WHERE status IN ('pending', 'error')
		   AND (next_retry_at IS NULL OR next_retry_at <= $1)
		 ORDER BY next_retry_at NULLS FIRST, record_id
		 LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due sync records")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: due sync records iterate")
}

func pgPlaceholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, ", ")
}
