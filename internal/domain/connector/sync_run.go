package connector

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// RunStatus
// ---------------------------------------------------------------------------

// RunStatus is the lifecycle state of a sync run.
// running is initial; success and failed are terminal and mutually exclusive.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// IsValid returns true if the status is known
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the run can no longer change
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// String returns the string representation of RunStatus
func (s RunStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// EntityStats counts the records processed for one entity type.
// Total always equals Mapped + Failed.
type EntityStats struct {
	Total  int `json:"total"`
	Mapped int `json:"mapped"`
	Failed int `json:"failed"`
}

// RunStats holds per-entity counters of a run
type RunStats map[EntityType]EntityStats

// Clone returns a copy safe to hand out
func (s RunStats) Clone() RunStats {
	out := make(RunStats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Totals sums all entity buckets
func (s RunStats) Totals() EntityStats {
	var total EntityStats
	for _, v := range s {
		total.Total += v.Total
		total.Mapped += v.Mapped
		total.Failed += v.Failed
	}
	return total
}

// ---------------------------------------------------------------------------
// SyncRun Entity
// ---------------------------------------------------------------------------

// SyncRun is one execution of the pipeline for a connector.
// History is append-only: a run is created once and finalized exactly once.
type SyncRun struct {
	ID          uuid.UUID
	ConnectorID uuid.UUID
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
	Stats       RunStats
	// Error is the infrastructure failure that ended a failed run
	Error string
}

// StartSyncRun creates a run in the running state
func StartSyncRun(connectorID uuid.UUID, startedAt time.Time) *SyncRun {
	return &SyncRun{
		ID:          uuid.New(),
		ConnectorID: connectorID,
		Status:      RunStatusRunning,
		StartedAt:   startedAt,
		Stats:       RunStats{},
	}
}

// Succeed finalizes the run as successful
func (r *SyncRun) Succeed(stats RunStats, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrRunAlreadyFinished
	}
	r.Status = RunStatusSuccess
	r.FinishedAt = &at
	r.Stats = stats.Clone()
	return nil
}

// Fail finalizes the run as failed, keeping whatever stats were accumulated
func (r *SyncRun) Fail(stats RunStats, cause error, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrRunAlreadyFinished
	}
	r.Status = RunStatusFailed
	r.FinishedAt = &at
	r.Stats = stats.Clone()
	if cause != nil {
		r.Error = cause.Error()
	}
	return nil
}

// Duration returns how long the run took, or zero while running
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
