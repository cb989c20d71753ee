package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/leadforge/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testTarget(name string) *model.Target {
	return &model.Target{
		Name:        name,
		Enabled:     true,
		Mode:        model.ModeStatic,
		StartURL:    "https://example.com/events",
		RunInterval: time.Hour,
		RawConfig:   json.RawMessage(`{"item_selector": ".card", "fields": {"name": "h2"}}`),
	}
}

// --- Targets ---

func TestSQLite_Target_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	target := testTarget("events")
	require.NoError(t, st.CreateTarget(ctx, target))
	assert.NotEmpty(t, target.ID)

	got, err := st.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "events", got.Name)
	assert.Equal(t, model.ModeStatic, got.Mode)
	assert.Equal(t, time.Hour, got.RunInterval)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)

	byName, err := st.GetTargetByName(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, target.ID, byName.ID)
}

func TestSQLite_Target_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTarget(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_Target_ListEnabledOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	on := testTarget("alpha")
	off := testTarget("beta")
	off.Enabled = false
	require.NoError(t, st.CreateTarget(ctx, on))
	require.NoError(t, st.CreateTarget(ctx, off))

	all, err := st.ListTargets(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := st.ListTargets(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "alpha", enabled[0].Name)
}

func TestSQLite_Target_UpdateAndTouch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	target := testTarget("events")
	require.NoError(t, st.CreateTarget(ctx, target))

	target.Enabled = false
	target.StartURL = "https://example.com/v2"
	require.NoError(t, st.UpdateTarget(ctx, target))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.TouchTargetLastRun(ctx, target.ID, at))

	got, err := st.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "https://example.com/v2", got.StartURL)
	require.NotNil(t, got.LastRunAt)
	assert.WithinDuration(t, at, *got.LastRunAt, time.Second)
}

// --- Runs ---

func TestSQLite_Run_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	target := testTarget("events")
	require.NoError(t, st.CreateTarget(ctx, target))

	run, err := st.CreateRun(ctx, target, model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, run.Status)
	assert.Equal(t, "events", run.TargetName)

	finished := time.Now().UTC()
	run.Status = model.RunSuccess
	run.FinishedAt = &finished
	run.ItemCount = 10
	run.CreatedCount = 7
	run.UpdatedCount = 3
	run.Stats = map[string]int{"pages": 2}
	require.NoError(t, st.FinalizeRun(ctx, run))

	runs, err := st.ListRuns(ctx, target.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunSuccess, runs[0].Status)
	assert.Equal(t, 10, runs[0].ItemCount)
	assert.Equal(t, 2, runs[0].Stats["pages"])
	require.NotNil(t, runs[0].FinishedAt)
}

func TestSQLite_Run_FinalizeIsTerminal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	target := testTarget("events")
	require.NoError(t, st.CreateTarget(ctx, target))

	run, err := st.CreateRun(ctx, target, model.TriggerScheduled)
	require.NoError(t, err)

	finished := time.Now().UTC()
	run.Status = model.RunFailed
	run.FinishedAt = &finished
	run.ErrorText = "fetch: HTTP 500"
	require.NoError(t, st.FinalizeRun(ctx, run))

	// A second finalize must not overwrite the terminal row.
	run.Status = model.RunSuccess
	run.ErrorText = ""
	err = st.FinalizeRun(ctx, run)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	runs, err := st.ListRuns(ctx, target.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunFailed, runs[0].Status)
	assert.Equal(t, "fetch: HTTP 500", runs[0].ErrorText)
}

// --- Records ---

func TestSQLite_Record_CreateGetUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	value := 99.5
	rec := &model.Record{
		SourceName:     "events",
		FullName:       "Alice Archer",
		Email:          "alice@example.com",
		PhoneE164:      "+14155550100",
		LeadValue:      &value,
		RawPayload:     map[string]any{"name": "Alice Archer"},
		RawPayloadHash: "abc123",
	}
	require.NoError(t, st.CreateRecord(ctx, rec))
	assert.Equal(t, model.RecordNew, rec.Status)

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Archer", got.FullName)
	assert.Equal(t, "alice@example.com", got.Email)
	require.NotNil(t, got.LeadValue)
	assert.Equal(t, 99.5, *got.LeadValue)
	assert.Equal(t, "Alice Archer", got.RawPayload["name"])

	got.Company = "Archer Co"
	got.Status = model.RecordReviewed
	require.NoError(t, st.UpdateRecord(ctx, got))

	again, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Archer Co", again.Company)
	assert.Equal(t, model.RecordReviewed, again.Status)
}

func TestSQLite_Record_FindByEmailCaseInsensitive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.Record{Email: "Alice@Example.COM"}
	require.NoError(t, st.CreateRecord(ctx, rec))

	got, err := st.FindRecordByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)

	none, err := st.FindRecordByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_Record_FindIgnoresEmptyKeys(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, &model.Record{FullName: "No Contact"}))

	byEmail, err := st.FindRecordByEmail(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, byEmail)

	byPhone, err := st.FindRecordByPhone(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, byPhone)

	byHash, err := st.FindRecordByRawHash(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, byHash)
}

func TestSQLite_Record_FindByPhoneAndHash(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.Record{PhoneE164: "+14155550100", RawPayloadHash: "deadbeef"}
	require.NoError(t, st.CreateRecord(ctx, rec))

	byPhone, err := st.FindRecordByPhone(ctx, "+14155550100")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, rec.ID, byPhone.ID)

	byHash, err := st.FindRecordByRawHash(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, rec.ID, byHash.ID)
}

// --- Sync states ---

func TestSQLite_SyncState_GetOrCreate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.Record{Email: "alice@example.com"}
	require.NoError(t, st.CreateRecord(ctx, rec))

	state, err := st.GetOrCreateSyncState(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncPending, state.Status)
	assert.Equal(t, 0, state.Attempts)

	// Second call returns the persisted row, not a fresh one.
	state.Attempts = 3
	state.Status = model.SyncError
	require.NoError(t, st.UpdateSyncState(ctx, state))

	again, err := st.GetOrCreateSyncState(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Attempts)
	assert.Equal(t, model.SyncError, again.Status)
}

func TestSQLite_SyncState_DueSelection(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mkRecord := func(email string) *model.Record {
		rec := &model.Record{Email: email}
		require.NoError(t, st.CreateRecord(ctx, rec))
		return rec
	}

	// Pending with no retry time: due immediately.
	fresh := mkRecord("fresh@example.com")
	_, err := st.GetOrCreateSyncState(ctx, fresh.ID)
	require.NoError(t, err)

	// Error with retry time in the past: due.
	past := mkRecord("past@example.com")
	stPast, err := st.GetOrCreateSyncState(ctx, past.ID)
	require.NoError(t, err)
	due := now.Add(-time.Minute)
	stPast.Status = model.SyncError
	stPast.Attempts = 1
	stPast.NextRetryAt = &due
	require.NoError(t, st.UpdateSyncState(ctx, stPast))

	// Error with retry time in the future: not due.
	future := mkRecord("future@example.com")
	stFuture, err := st.GetOrCreateSyncState(ctx, future.ID)
	require.NoError(t, err)
	later := now.Add(time.Hour)
	stFuture.Status = model.SyncError
	stFuture.NextRetryAt = &later
	require.NoError(t, st.UpdateSyncState(ctx, stFuture))

	// Already synced: never selected.
	done := mkRecord("done@example.com")
	stDone, err := st.GetOrCreateSyncState(ctx, done.ID)
	require.NoError(t, err)
	stDone.Status = model.SyncSynced
	require.NoError(t, st.UpdateSyncState(ctx, stDone))

	ids, err := st.DueSyncRecordIDs(ctx, now, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{fresh.ID, past.ID}, ids)
}

func TestSQLite_SyncState_DueLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &model.Record{}
		require.NoError(t, st.CreateRecord(ctx, rec))
		_, err := st.GetOrCreateSyncState(ctx, rec.ID)
		require.NoError(t, err)
	}

	ids, err := st.DueSyncRecordIDs(ctx, time.Now().UTC(), 3)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestSQLite_Record_ListEnrichable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Has a detail page and no contact data: selected.
	bare := &model.Record{SourceURL: "https://example.com/e/1"}
	require.NoError(t, st.CreateRecord(ctx, bare))

	// Already has an email: not selected.
	withEmail := &model.Record{SourceURL: "https://example.com/e/2", Email: "a@example.com"}
	require.NoError(t, st.CreateRecord(ctx, withEmail))

	// Already has a company: not selected.
	withCompany := &model.Record{SourceURL: "https://example.com/e/3", Company: "Acme"}
	require.NoError(t, st.CreateRecord(ctx, withCompany))

	// No detail page to visit: not selected.
	noURL := &model.Record{}
	require.NoError(t, st.CreateRecord(ctx, noURL))

	ids, err := st.ListEnrichableRecordIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{bare.ID}, ids)

	ids, err = st.ListEnrichableRecordIDs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
