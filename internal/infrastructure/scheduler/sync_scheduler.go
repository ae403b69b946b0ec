package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/infrastructure/config"
)

// SyncExecutor runs one attempt of a job. Errors wrapping ErrSyncNotRetryable
// end the job without retries.
type SyncExecutor interface {
	Execute(ctx context.Context, job *SyncJob) error
}

// SyncSchedulerConfig sizes the worker pool and the retry policy.
type SyncSchedulerConfig struct {
	MaxConcurrentJobs int           `validate:"gt=0"`
	QueueSize         int           `validate:"gt=0"`
	JobTimeout        time.Duration `validate:"gt=0"`
	RetryAttempts     int           `validate:"gte=0"` // after the first failure
	RetryDelay        time.Duration `validate:"gte=0"` // doubled on every retry
}

const historySize = 100

var configValidator = validator.New()

func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: 3,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// SyncSchedulerConfigFrom maps the service scheduler settings.
func SyncSchedulerConfigFrom(cfg config.SchedulerConfig) SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		QueueSize:         cfg.QueueSize,
		JobTimeout:        cfg.JobTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
	}
}

// Validate reports ErrInvalidConfig with the offending field.
func (c *SyncSchedulerConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return fmt.Errorf("%w: %s must be %s %s", ErrInvalidConfig, fields[0].Field(), fields[0].Tag(), fields[0].Param())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SyncScheduler runs connector syncs on a bounded worker pool. A connector
// owns at most one job at a time, whether queued, waiting on a retry timer,
// or running.
type SyncScheduler struct {
	cfg      SyncSchedulerConfig
	executor SyncExecutor
	logger   *zap.Logger

	mu      sync.Mutex
	queue   chan *SyncJob
	stop    context.CancelFunc
	workers *errgroup.Group
	owned   map[uuid.UUID]uuid.UUID // connector -> job
	retries map[uuid.UUID]*time.Timer

	history jobHistory
}

func NewSyncScheduler(cfg SyncSchedulerConfig, executor SyncExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		cfg:      cfg,
		executor: executor,
		logger:   logger.Named("sync_scheduler"),
		owned:    make(map[uuid.UUID]uuid.UUID),
		retries:  make(map[uuid.UUID]*time.Timer),
		history:  jobHistory{max: historySize},
	}, nil
}

// Start launches the workers. Calling it on a running scheduler does nothing.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return nil
	}

	ctx, s.stop = context.WithCancel(ctx)
	s.queue = make(chan *SyncJob, s.cfg.QueueSize)
	s.workers = &errgroup.Group{}
	for n := range s.cfg.MaxConcurrentJobs {
		queue := s.queue
		s.workers.Go(func() error {
			s.work(ctx, n, queue)
			return nil
		})
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.cfg.MaxConcurrentJobs),
		zap.Int("queue_size", s.cfg.QueueSize),
		zap.Duration("job_timeout", s.cfg.JobTimeout),
	)
	return nil
}

// Stop cancels running attempts and pending retries, then waits for the
// workers until ctx expires.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return nil
	}
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	clear(s.owned)
	s.stop()
	close(s.queue)
	s.queue = nil
	workers := s.workers
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil
}

// SubmitJob enqueues job. It returns ErrSyncAlreadyQueued when the connector
// already owns a job and ErrJobQueueFull when no slot is free.
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.queue == nil:
		return ErrSchedulerNotRunning
	case s.ownedBy(job.ConnectorID):
		return ErrSyncAlreadyQueued
	}

	select {
	case s.queue <- job:
	default:
		return ErrJobQueueFull
	}
	s.owned[job.ConnectorID] = job.ID
	s.logger.Debug("Sync job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("connector_id", job.ConnectorID.String()),
		zap.Bool("incremental", job.Request.ModifiedAfter != nil),
	)
	return nil
}

// ScheduleSync builds a job for connectorID and submits it.
func (s *SyncScheduler) ScheduleSync(connectorID uuid.UUID, req connectorapp.SyncRequest) (*SyncJob, error) {
	job := NewSyncJob(connectorID, req, s.cfg.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SyncScheduler) ownedBy(connectorID uuid.UUID) bool {
	_, ok := s.owned[connectorID]
	return ok
}

func (s *SyncScheduler) work(ctx context.Context, n int, queue <-chan *SyncJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-queue:
			if !ok {
				return
			}
			s.attempt(ctx, n, job)
		}
	}
}

func (s *SyncScheduler) attempt(ctx context.Context, worker int, job *SyncJob) {
	log := s.logger.With(
		zap.Int("worker", worker),
		zap.String("job_id", job.ID.String()),
		zap.String("connector_id", job.ConnectorID.String()),
		zap.Int("attempt", job.RetryCount+1),
	)

	job.Start()
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	err := s.executor.Execute(attemptCtx, job)
	cancel()

	if err == nil {
		log.Info("Sync job finished", zap.String("run_status", string(job.RunStatus)))
		s.finish(job)
		return
	}

	if job.Status != SyncJobStatusFailed {
		job.Fail(err.Error())
	}
	log.Error("Sync job attempt failed", zap.Error(err))

	if errors.Is(err, ErrSyncNotRetryable) || ctx.Err() != nil || !job.ShouldRetry() {
		s.finish(job)
		return
	}

	delay := job.ScheduleRetry(s.cfg.RetryDelay)
	log.Info("Sync job retry scheduled", zap.Duration("delay", delay), zap.Int("max_retries", job.MaxRetries))
	s.retryAfter(job, delay)
}

// retryAfter requeues job once delay elapses. The connector stays owned.
func (s *SyncScheduler) retryAfter(job *SyncJob, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return
	}
	s.retries[job.ID] = time.AfterFunc(delay, func() { s.requeue(job) })
}

func (s *SyncScheduler) requeue(job *SyncJob) {
	s.mu.Lock()
	if _, pending := s.retries[job.ID]; !pending {
		s.mu.Unlock()
		return
	}
	delete(s.retries, job.ID)

	select {
	case s.queue <- job:
		s.mu.Unlock()
		return
	default:
	}
	delete(s.owned, job.ConnectorID)
	s.mu.Unlock()

	s.logger.Warn("Sync job dropped, queue full on retry",
		zap.String("job_id", job.ID.String()),
		zap.String("connector_id", job.ConnectorID.String()),
	)
	s.history.add(job)
}

func (s *SyncScheduler) finish(job *SyncJob) {
	s.mu.Lock()
	if s.owned[job.ConnectorID] == job.ID {
		delete(s.owned, job.ConnectorID)
	}
	s.mu.Unlock()
	s.history.add(job)
}

// GetJobHistory returns up to limit finished jobs, newest first. A
// non-positive limit returns everything retained.
func (s *SyncScheduler) GetJobHistory(limit int) []*SyncJob {
	return s.history.list(func(*SyncJob) bool { return true }, limit)
}

// GetJobHistoryByConnector is GetJobHistory restricted to one connector.
func (s *SyncScheduler) GetJobHistoryByConnector(connectorID uuid.UUID, limit int) []*SyncJob {
	return s.history.list(func(j *SyncJob) bool { return j.ConnectorID == connectorID }, limit)
}

// jobHistory keeps the last max finished jobs, oldest first.
type jobHistory struct {
	mu   sync.RWMutex
	jobs []*SyncJob
	max  int
}

func (h *jobHistory) add(job *SyncJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	if over := len(h.jobs) - h.max; over > 0 {
		h.jobs = append(h.jobs[:0:0], h.jobs[over:]...)
	}
}

func (h *jobHistory) list(keep func(*SyncJob) bool, limit int) []*SyncJob {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := []*SyncJob{}
	for i := len(h.jobs) - 1; i >= 0; i-- {
		if !keep(h.jobs[i]) {
			continue
		}
		out = append(out, h.jobs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
