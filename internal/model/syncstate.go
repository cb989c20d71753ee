package model

import "time"

// SyncStatus is the state of one (record, external system) pair.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// syncTransitions encodes the allowed state machine edges. Notably there is
// no way back to pending once a pair has been attempted.
var syncTransitions = map[SyncStatus][]SyncStatus{
	SyncPending: {SyncSynced, SyncError},
	SyncError:   {SyncSynced, SyncError},
	SyncSynced:  {SyncSynced, SyncError},
}

// ValidSyncTransition reports whether from → to is an allowed change.
// Same-status writes are allowed (retry and re-sync stay in place).
func ValidSyncTransition(from, to SyncStatus) bool {
	if from == to {
		return true
	}
	for _, next := range syncTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SyncState tracks the relationship between a record and the external CRM.
// Invariants: NextRetryAt is non-nil exactly when Status is error; Attempts
// resets to zero on success.
type SyncState struct {
	RecordID  string    `json:"record_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalID  string         `json:"external_id"`
	Status      SyncStatus     `json:"status"`
	LastSyncAt  *time.Time     `json:"last_sync_at,omitempty"`
	LastError   string         `json:"last_error"`
	Attempts    int            `json:"attempts"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	PayloadHash string         `json:"payload_hash"`
	LastPayload map[string]any `json:"last_payload,omitempty"`
}

// RetryDelay computes the exponential backoff after the given attempt count:
// min(30 * 2^min(attempts, 10), 3600) seconds.
func RetryDelay(attempts int) time.Duration {
	exp := attempts
	if exp > 10 {
		exp = 10
	}
	secs := 30 * (1 << uint(exp))
	if secs > 3600 {
		secs = 3600
	}
	return time.Duration(secs) * time.Second
}
