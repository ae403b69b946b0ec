package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/domain/connector"
)

// ConnectorProvider lists connectors eligible for scheduled syncs
type ConnectorProvider interface {
	FindByStatus(ctx context.Context, status connector.Status) ([]connector.Connector, error)
}

// IntervalTriggerConfig holds configuration for the interval trigger
type IntervalTriggerConfig struct {
	// Interval is how often every active connector is enqueued
	Interval time.Duration
	// RunOnStart enqueues once immediately when the trigger starts
	RunOnStart bool
}

// DefaultIntervalTriggerConfig returns default configuration
func DefaultIntervalTriggerConfig() IntervalTriggerConfig {
	return IntervalTriggerConfig{
		Interval: time.Hour,
	}
}

// IntervalTrigger enqueues a full sync for every active connector on a fixed interval.
// Disabled connectors are never enqueued.
type IntervalTrigger struct {
	config    IntervalTriggerConfig
	scheduler *SyncScheduler
	provider  ConnectorProvider
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	config IntervalTriggerConfig,
	scheduler *SyncScheduler,
	provider ConnectorProvider,
	logger *zap.Logger,
) *IntervalTrigger {
	if config.Interval <= 0 {
		config.Interval = DefaultIntervalTriggerConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config:    config,
		scheduler: scheduler,
		provider:  provider,
		logger:    logger,
	}
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Sync interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Sync interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.Trigger(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Trigger(ctx)
		}
	}
}

// Trigger enqueues every active connector once and returns how many were queued.
// Connectors that already have a job in flight are skipped.
func (t *IntervalTrigger) Trigger(ctx context.Context) int {
	connectors, err := t.provider.FindByStatus(ctx, connector.StatusActive)
	if err != nil {
		t.logger.Error("Failed to list active connectors", zap.Error(err))
		return 0
	}

	queued := 0
	for i := range connectors {
		c := &connectors[i]
		_, err := t.scheduler.ScheduleSync(c.ID, connectorapp.FullSyncRequest())
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrSyncAlreadyQueued):
			t.logger.Debug("Connector sync already in flight",
				zap.String("connector_id", c.ID.String()),
			)
		default:
			t.logger.Warn("Failed to schedule connector sync",
				zap.String("connector_id", c.ID.String()),
				zap.Error(err),
			)
		}
	}

	t.logger.Info("Scheduled connector syncs",
		zap.Int("active_connectors", len(connectors)),
		zap.Int("queued", queued),
	)
	return queued
}
