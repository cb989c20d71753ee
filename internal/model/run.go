package model

import "time"

// RunStatus is the coarse outcome of one target execution.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether the run status is final. A terminal run status
// never flips back to running.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// RunTrigger records what started a run.
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
)

// Run is one execution of a target: created at invocation start with status
// running, finalized exactly once regardless of outcome.
type Run struct {
	ID         string     `json:"id"`
	TargetID   string     `json:"target_id"`
	TargetName string     `json:"target_name"`
	Trigger    RunTrigger `json:"trigger"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	ItemCount    int            `json:"item_count"`
	CreatedCount int            `json:"created_count"`
	UpdatedCount int            `json:"updated_count"`
	Stats        map[string]int `json:"stats,omitempty"`
	ErrorText    string         `json:"error_text,omitempty"`
}
