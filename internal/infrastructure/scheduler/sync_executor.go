package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/domain/connector"
)

// permanentSyncErrors cannot be fixed by running the same sync again
var permanentSyncErrors = []error{
	connector.ErrConnectorNotFound,
	connector.ErrConnectorDisabled,
	connector.ErrCredentialNotFound,
	connector.ErrSyncConfigNotFound,
	connector.ErrCredentialDecrypt,
	connector.ErrUnsupportedSource,
	connector.ErrInvalidBaseURL,
}

// ConnectorSyncExecutor runs scheduled jobs through the sync service
type ConnectorSyncExecutor struct {
	syncer connectorapp.SyncService
	logger *zap.Logger
}

var _ SyncExecutor = (*ConnectorSyncExecutor)(nil)

// NewConnectorSyncExecutor creates a new executor
func NewConnectorSyncExecutor(syncer connectorapp.SyncService, logger *zap.Logger) *ConnectorSyncExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorSyncExecutor{syncer: syncer, logger: logger}
}

// Execute runs one sync attempt and records its outcome on the job
func (e *ConnectorSyncExecutor) Execute(ctx context.Context, job *SyncJob) error {
	outcome, err := e.syncer.RunSync(ctx, job.ConnectorID, job.Request)
	if err != nil {
		if runID, ok := connectorapp.IsRunFailure(err); ok {
			job.RunID = &runID
			job.RunStatus = connector.RunStatusFailed
		}
		for _, permanent := range permanentSyncErrors {
			if errors.Is(err, permanent) {
				return fmt.Errorf("%w: %w", ErrSyncNotRetryable, err)
			}
		}
		return err
	}

	job.Complete(outcome)
	totals := outcome.Stats.Totals()
	e.logger.Debug("Scheduled sync finished",
		zap.String("connector_id", job.ConnectorID.String()),
		zap.String("run_id", outcome.RunID.String()),
		zap.Int("total", totals.Total),
		zap.Int("failed", totals.Failed),
	)
	return nil
}
