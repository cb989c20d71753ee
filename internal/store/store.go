// Package store defines the persistence boundary of the pipeline. The
// relational store is an external collaborator: it only needs atomic
// read-modify-write per statement and indexed lookup on the identity columns.
package store

import (
	"context"
	"time"

	"github.com/leadforge/leadforge/internal/model"
)

type notFoundError struct{ entity, id string }

func (e *notFoundError) Error() string { return e.entity + " not found: " + e.id }

// NotFound builds a not-found error for an entity.
func NotFound(entity, id string) error { return &notFoundError{entity: entity, id: id} }

// IsNotFound reports whether err is a not-found error from this package.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

// Store is the persistence interface for targets, runs, records and
// per-record sync state.
type Store interface {
	// Targets
	CreateTarget(ctx context.Context, t *model.Target) error
	UpdateTarget(ctx context.Context, t *model.Target) error
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	GetTargetByName(ctx context.Context, name string) (*model.Target, error)
	ListTargets(ctx context.Context, enabledOnly bool) ([]model.Target, error)
	TouchTargetLastRun(ctx context.Context, id string, at time.Time) error

	// Runs
	CreateRun(ctx context.Context, t *model.Target, trigger model.RunTrigger) (*model.Run, error)
	FinalizeRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, targetID string, limit int) ([]model.Run, error)

	// Records. Find* return (nil, nil) when nothing matches; ties resolve
	// to the most recently created record.
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	FindRecordByEmail(ctx context.Context, email string) (*model.Record, error)
	FindRecordByPhone(ctx context.Context, e164 string) (*model.Record, error)
	FindRecordByRawHash(ctx context.Context, hash string) (*model.Record, error)
	CreateRecord(ctx context.Context, r *model.Record) error
	UpdateRecord(ctx context.Context, r *model.Record) error
	// ListEnrichableRecordIDs selects records that have a detail page to
	// visit but no contact data yet (empty email and company), oldest first.
	ListEnrichableRecordIDs(ctx context.Context, limit int) ([]string, error)

	// Sync state
	GetOrCreateSyncState(ctx context.Context, recordID string) (*model.SyncState, error)
	UpdateSyncState(ctx context.Context, s *model.SyncState) error
	// DueSyncRecordIDs selects pending/error pairs whose retry time is null
	// or already due, ordered by due time then record id.
	DueSyncRecordIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
