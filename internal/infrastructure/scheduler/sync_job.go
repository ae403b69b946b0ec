package scheduler

import (
	"time"

	"github.com/google/uuid"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/domain/connector"
)

// SyncJobStatus represents the status of a scheduled sync job
type SyncJobStatus string

const (
	SyncJobStatusPending SyncJobStatus = "PENDING"
	SyncJobStatusRunning SyncJobStatus = "RUNNING"
	SyncJobStatusSuccess SyncJobStatus = "SUCCESS"
	SyncJobStatusFailed  SyncJobStatus = "FAILED"
)

// maxRetryDelay caps the exponential backoff
const maxRetryDelay = 30 * time.Minute

// SyncJob is one queued connector sync
type SyncJob struct {
	ID          uuid.UUID
	ConnectorID uuid.UUID
	Request     connectorapp.SyncRequest
	Status      SyncJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// Result of the last attempt that produced a run
	RunID     *uuid.UUID
	RunStatus connector.RunStatus
	Stats     connector.RunStats
}

// NewSyncJob creates a new sync job
func NewSyncJob(connectorID uuid.UUID, req connectorapp.SyncRequest, maxRetries int) *SyncJob {
	return &SyncJob{
		ID:          uuid.New(),
		ConnectorID: connectorID,
		Request:     req,
		Status:      SyncJobStatusPending,
		MaxRetries:  maxRetries,
	}
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the outcome of a finished run
func (j *SyncJob) Complete(outcome *connectorapp.SyncOutcome) {
	now := time.Now()
	j.Status = SyncJobStatusSuccess
	j.CompletedAt = &now
	if outcome != nil {
		runID := outcome.RunID
		j.RunID = &runID
		j.RunStatus = outcome.Status
		j.Stats = outcome.Stats
	}
}

// Fail marks the job as failed
func (j *SyncJob) Fail(err string) {
	now := time.Now()
	j.Status = SyncJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *SyncJob) ShouldRetry() bool {
	return j.Status == SyncJobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff
// and returns the delay until the next attempt.
func (j *SyncJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = SyncJobStatusPending
	// baseDelay * 2^(retryCount-1)
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > maxRetryDelay || delay < 0 {
		delay = maxRetryDelay
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
	return delay
}
