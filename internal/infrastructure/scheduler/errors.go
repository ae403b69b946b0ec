package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSyncAlreadyQueued is returned when the connector already has a queued or running job
	ErrSyncAlreadyQueued = errors.New("sync already queued for this connector")

	// ErrSyncNotRetryable marks executor failures that retrying cannot fix
	ErrSyncNotRetryable = errors.New("sync failure is not retryable")
)
