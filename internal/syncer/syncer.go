// Package syncer pushes records to the CRM with content-hash idempotency
// and exponential-backoff retry. All retry state lives in the persisted
// SyncState, so attempts survive process restarts and no in-memory copy of
// a record is ever trusted across the enqueue boundary.
package syncer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/crm"
	"github.com/leadforge/leadforge/internal/hashing"
	"github.com/leadforge/leadforge/internal/model"
)

// Outcome reports what one sync attempt did.
type Outcome string

const (
	OutcomeDisabled       Outcome = "disabled"
	OutcomeNotConfigured  Outcome = "not_configured"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeSynced         Outcome = "synced"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeGaveUp         Outcome = "gave_up"
)

// Store is the slice of the persistence layer the syncer needs.
type Store interface {
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	UpdateRecord(ctx context.Context, r *model.Record) error
	GetOrCreateSyncState(ctx context.Context, recordID string) (*model.SyncState, error)
	UpdateSyncState(ctx context.Context, s *model.SyncState) error
	DueSyncRecordIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Config holds the integration settings resolved once at startup.
type Config struct {
	Enabled     bool
	Configured  bool
	Defaults    map[string]any
	MaxAttempts int
}

const defaultMaxAttempts = 8

// Syncer coordinates sync attempts for individual records.
type Syncer struct {
	store  Store
	client crm.Client
	cfg    Config
}

// New builds a syncer. client may be nil when the integration is disabled
// or unconfigured; SyncRecord then returns early without touching state.
func New(store Store, client crm.Client, cfg Config) *Syncer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Syncer{store: store, client: client, cfg: cfg}
}

// SyncRecord performs one synchronization attempt for a record. The record
// is always refetched fresh. force bypasses the unchanged-payload skip.
//
// On API failure the attempt is durably recorded (attempt count, error text,
// next retry time) before the error is returned, so a crash between the
// return and any re-enqueue loses nothing.
func (s *Syncer) SyncRecord(ctx context.Context, recordID string, force bool) (Outcome, error) {
	if !s.cfg.Enabled {
		return OutcomeDisabled, nil
	}
	if !s.cfg.Configured || s.client == nil {
		zap.L().Warn("crm sync attempted without configuration", zap.String("record_id", recordID))
		return OutcomeNotConfigured, nil
	}

	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return "", eris.Wrap(err, "syncer: load record")
	}
	state, err := s.store.GetOrCreateSyncState(ctx, recordID)
	if err != nil {
		return "", eris.Wrap(err, "syncer: load sync state")
	}

	// A pair that exhausted its attempts is closed. The due sweep may still
	// select it, but no further API call happens unless forced.
	if !force && state.Attempts >= s.cfg.MaxAttempts {
		return OutcomeGaveUp, nil
	}

	payload := crm.BuildLeadPayload(rec, s.cfg.Defaults)
	payloadHash, err := hashing.HashObject(payload)
	if err != nil {
		return "", eris.Wrap(err, "syncer: hash payload")
	}

	if !force && state.Status == model.SyncSynced &&
		state.PayloadHash != "" && state.PayloadHash == payloadHash {
		return OutcomeSkipped, nil
	}

	var resp map[string]any
	if state.ExternalID != "" {
		resp, err = s.client.UpdateLead(ctx, state.ExternalID, payload)
	} else {
		resp, err = s.client.CreateLead(ctx, payload)
	}
	if err != nil {
		return s.recordFailure(ctx, state, payload, err)
	}

	return s.recordSuccess(ctx, rec, state, payload, payloadHash, resp)
}

func (s *Syncer) recordSuccess(ctx context.Context, rec *model.Record, state *model.SyncState,
	payload map[string]any, payloadHash string, resp map[string]any) (Outcome, error) {

	if !model.ValidSyncTransition(state.Status, model.SyncSynced) {
		zap.L().Warn("invalid sync state transition",
			zap.String("record_id", state.RecordID),
			zap.String("from", string(state.Status)))
	}

	now := time.Now().UTC()
	state.Status = model.SyncSynced
	state.LastSyncAt = &now
	state.LastError = ""
	state.Attempts = 0
	state.NextRetryAt = nil
	state.PayloadHash = payloadHash
	state.LastPayload = payload
	if resp != nil {
		if id := crm.ExtractExternalID(resp); id != "" {
			state.ExternalID = id
		}
	}
	if err := s.store.UpdateSyncState(ctx, state); err != nil {
		return "", eris.Wrap(err, "syncer: persist success")
	}

	if model.ValidRecordTransition(rec.Status, model.RecordSynced) {
		rec.Status = model.RecordSynced
		if err := s.store.UpdateRecord(ctx, rec); err != nil {
			return "", eris.Wrap(err, "syncer: advance record status")
		}
	}

	zap.L().Info("record synced",
		zap.String("record_id", state.RecordID),
		zap.String("external_id", state.ExternalID))
	return OutcomeSynced, nil
}

func (s *Syncer) recordFailure(ctx context.Context, state *model.SyncState,
	payload map[string]any, cause error) (Outcome, error) {

	state.Attempts++
	state.Status = model.SyncError
	state.LastError = cause.Error()
	state.LastPayload = payload

	delay := model.RetryDelay(state.Attempts)
	retryAt := time.Now().UTC().Add(delay)
	state.NextRetryAt = &retryAt

	if err := s.store.UpdateSyncState(ctx, state); err != nil {
		return "", eris.Wrap(err, "syncer: persist failure")
	}

	if state.Attempts >= s.cfg.MaxAttempts {
		zap.L().Error("giving up on record sync",
			zap.String("record_id", state.RecordID),
			zap.Int("attempts", state.Attempts),
			zap.Error(cause))
		return OutcomeGaveUp, cause
	}

	zap.L().Warn("record sync failed, retry scheduled",
		zap.String("record_id", state.RecordID),
		zap.Int("attempts", state.Attempts),
		zap.Duration("retry_in", delay),
		zap.Error(cause))
	return OutcomeRetryScheduled, cause
}

// SweepDue selects records in pending or error state whose retry time is
// null or already due, up to limit. This is the only polling site; each
// returned id should be handed to SyncRecord.
func (s *Syncer) SweepDue(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.store.DueSyncRecordIDs(ctx, time.Now().UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: sweep due")
	}
	return ids, nil
}
