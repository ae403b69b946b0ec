package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/logger"
	"github.com/aurum/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SyncService runs connector synchronizations
type SyncService interface {
	// RunSync pulls the enabled entity types of a connector, maps and stages
	// every record, and returns the finalized run.
	RunSync(ctx context.Context, connectorID uuid.UUID, req SyncRequest) (*SyncOutcome, error)
}

// SyncMetrics records sync throughput and run results
type SyncMetrics interface {
	RecordRecord(ctx context.Context, source connector.SourceType, entity connector.EntityType, status connector.RecordStatus)
	RecordRun(ctx context.Context, source connector.SourceType, status connector.RunStatus, duration time.Duration)
}

type noopSyncMetrics struct{}

func (noopSyncMetrics) RecordRecord(context.Context, connector.SourceType, connector.EntityType, connector.RecordStatus) {
}

func (noopSyncMetrics) RecordRun(context.Context, connector.SourceType, connector.RunStatus, time.Duration) {
}

// SyncOptions tunes how a run executes
type SyncOptions struct {
	// ParallelEntities runs the product and order loops concurrently
	ParallelEntities bool
}

// SyncRunError is returned when a run was created and then failed.
// It unwraps to the infrastructure error that aborted the run.
type SyncRunError struct {
	RunID uuid.UUID
	Err   error
}

func (e *SyncRunError) Error() string {
	return fmt.Sprintf("sync run %s failed: %v", e.RunID, e.Err)
}

func (e *SyncRunError) Unwrap() error {
	return e.Err
}

// SyncServiceImpl implements SyncService
type SyncServiceImpl struct {
	connectors  connector.ConnectorReader
	credentials connector.CredentialRepository
	configs     connector.SyncConfigRepository
	runs        connector.SyncRunRepository
	records     connector.ExternalRecordRepository
	factories   *connector.ClientFactoryRegistry
	encrypter   connector.Encrypter
	resolver    connector.LookupResolver
	archiver    connector.PageArchiver
	metrics     SyncMetrics
	logger      *zap.Logger
	opts        SyncOptions
	now         func() time.Time
}

// NewSyncService creates a new SyncServiceImpl
func NewSyncService(
	connectors connector.ConnectorReader,
	credentials connector.CredentialRepository,
	configs connector.SyncConfigRepository,
	runs connector.SyncRunRepository,
	records connector.ExternalRecordRepository,
	factories *connector.ClientFactoryRegistry,
	encrypter connector.Encrypter,
	resolver connector.LookupResolver,
	logger *zap.Logger,
) *SyncServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncServiceImpl{
		connectors:  connectors,
		credentials: credentials,
		configs:     configs,
		runs:        runs,
		records:     records,
		factories:   factories,
		encrypter:   encrypter,
		resolver:    resolver,
		metrics:     noopSyncMetrics{},
		logger:      logger,
		now:         time.Now,
	}
}

var _ SyncService = (*SyncServiceImpl)(nil)

// SetArchiver enables raw page archiving
func (s *SyncServiceImpl) SetArchiver(archiver connector.PageArchiver) {
	s.archiver = archiver
}

// SetMetrics sets the metrics sink
func (s *SyncServiceImpl) SetMetrics(metrics SyncMetrics) {
	if metrics == nil {
		metrics = noopSyncMetrics{}
	}
	s.metrics = metrics
}

// SetOptions sets the execution options
func (s *SyncServiceImpl) SetOptions(opts SyncOptions) {
	s.opts = opts
}

// syncJob carries the state of one run
type syncJob struct {
	connector *connector.Connector
	run       *connector.SyncRun
	client    connector.ExternalClient
	entities  []connector.EntityType
	rules     connector.RuleSets
	listOpts  connector.ListOptions
	stats     *connector.StatsAggregator
	enricher  *orderEnricher
	log       *zap.Logger
}

// RunSync implements SyncService.
// Missing connector, credential or config and client construction failures
// are returned before any run is recorded. Once the run exists, every
// infrastructure error finalizes it as failed and is returned as *SyncRunError.
func (s *SyncServiceImpl) RunSync(ctx context.Context, connectorID uuid.UUID, req SyncRequest) (*SyncOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "connector_sync", "run",
		telemetry.WithAttribute(telemetry.SpanAttrConnectorID, connectorID.String()))
	defer span.End()

	job, err := s.prepare(ctx, connectorID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	job.run = connector.StartSyncRun(connectorID, s.now())
	if err := s.runs.Create(ctx, job.run); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("create sync run: %w", err)
	}
	ctx, job.log = logger.WithRunID(ctx, job.log, job.run.ID.String())
	telemetry.SetAttribute(span, telemetry.SpanAttrRunID, job.run.ID.String())

	job.log.Info("sync run started", zap.Int("entity_types", len(job.entities)))
	runErr := s.execute(ctx, job)

	outcome, err := s.finalize(ctx, job, runErr)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return outcome, nil
}

// prepare loads everything a run needs without side effects
func (s *SyncServiceImpl) prepare(ctx context.Context, connectorID uuid.UUID, req SyncRequest) (*syncJob, error) {
	c, err := s.connectors.FindByID(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	if c.Status == connector.StatusDisabled {
		return nil, connector.ErrConnectorDisabled
	}
	cred, err := s.credentials.FindByConnectorID(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.FindByConnectorID(ctx, connectorID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String("connector_id", connectorID.String()),
		zap.String("source_type", c.SourceType.String()),
	)

	client, err := buildClient(s.factories, s.encrypter, c, cred)
	if err != nil {
		return nil, err
	}

	entities := cfg.EffectiveEntities(req.SyncProducts, req.SyncOrders)
	return &syncJob{
		connector: c,
		client:    client,
		entities:  entities,
		rules:     resolveRuleSets(cfg, log),
		listOpts: connector.ListOptions{
			PerPage:       req.pageSize(),
			ModifiedAfter: req.ModifiedAfter,
		},
		stats:    connector.NewStatsAggregator(entities...),
		enricher: &orderEnricher{resolver: s.resolver, source: c.SourceType},
		log:      log,
	}, nil
}

// resolveRuleSets parses the connector's custom rules. A malformed document
// falls back to the built-in rules.
func resolveRuleSets(cfg *connector.SyncConfig, log *zap.Logger) connector.RuleSets {
	if !cfg.HasCustomRules() {
		return connector.RuleSets{}
	}
	sets, err := connector.ParseRuleSets(cfg.MappingRules)
	if err != nil {
		log.Warn("custom mapping rules unusable, falling back to defaults", zap.Error(err))
		return connector.RuleSets{}
	}
	return sets
}

// buildClient decrypts the credential and hands it straight to the factory.
// The plaintext does not outlive this call except inside the client.
func buildClient(
	factories *connector.ClientFactoryRegistry,
	enc connector.Encrypter,
	c *connector.Connector,
	cred *connector.Credential,
) (connector.ExternalClient, error) {
	factory, err := factories.Get(c.SourceType)
	if err != nil {
		return nil, err
	}
	creds, err := cred.Open(enc)
	if err != nil {
		return nil, err
	}
	client, err := factory.NewClient(c.ID, c.BaseURL, creds)
	if err != nil {
		return nil, fmt.Errorf("build %s client: %w", c.SourceType, err)
	}
	return client, nil
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func (s *SyncServiceImpl) execute(ctx context.Context, job *syncJob) error {
	if !s.opts.ParallelEntities || len(job.entities) < 2 {
		for _, entity := range job.entities {
			if err := s.syncEntity(ctx, job, entity); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entity := range job.entities {
		g.Go(func() error {
			return s.syncEntity(gctx, job, entity)
		})
	}
	return g.Wait()
}

// syncEntity pages through one entity type strictly in order. Page N+1 is
// requested only after every item of page N has been staged.
func (s *SyncServiceImpl) syncEntity(ctx context.Context, job *syncJob, entity connector.EntityType) error {
	rules := job.rules.RulesFor(entity)
	log := job.log.With(zap.String("entity_type", entity.String()))

	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.fetchPage(ctx, job, entity, page)
		if err != nil {
			return fmt.Errorf("fetch %s page %d: %w", entity, page, err)
		}
		s.archivePage(ctx, job, entity, page, result.Items, log)

		for _, raw := range result.Items {
			if err := s.processRecord(ctx, job, entity, rules, raw); err != nil {
				return err
			}
		}
		log.Debug("page staged", zap.Int("page", page), zap.Int("items", len(result.Items)))

		if result.NextPage == nil {
			return nil
		}
		if *result.NextPage <= page {
			return fmt.Errorf("%w: next page %d after page %d", connector.ErrExternalInvalidResponse, *result.NextPage, page)
		}
		page = *result.NextPage
	}
}

func (s *SyncServiceImpl) fetchPage(ctx context.Context, job *syncJob, entity connector.EntityType, page int) (*connector.Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "connector_sync.fetch_page",
		telemetry.WithAttribute(telemetry.SpanAttrEntityType, entity.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPage, page),
	)
	defer span.End()

	opts := job.listOpts
	opts.Page = page
	result, err := connector.ListEntities(ctx, job.client, entity, opts)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if result == nil {
		result = &connector.Page{}
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrItemCount, len(result.Items))
	return result, nil
}

// archivePage stores the raw page when an archiver is configured.
// Archive failures never affect the run.
func (s *SyncServiceImpl) archivePage(ctx context.Context, job *syncJob, entity connector.EntityType, page int, items []connector.RawRecord, log *zap.Logger) {
	if s.archiver == nil || len(items) == 0 {
		return
	}
	err := s.archiver.ArchivePage(ctx, connector.PageArchive{
		ConnectorID: job.connector.ID,
		RunID:       job.run.ID,
		EntityType:  entity,
		Page:        page,
		Items:       items,
		FetchedAt:   s.now(),
	})
	if err != nil {
		log.Warn("page archive failed", zap.Int("page", page), zap.Error(err))
	}
}

// processRecord maps and stages one raw item. Mapping and lookup misses are
// recorded on the item; only repository or lookup failures are returned.
func (s *SyncServiceImpl) processRecord(
	ctx context.Context,
	job *syncJob,
	entity connector.EntityType,
	rules []connector.MappingRule,
	raw connector.RawRecord,
) error {
	source := job.connector.SourceType

	externalID, ok := connector.ExternalIDFrom(raw[connector.ExternalIDField])
	if !ok {
		job.stats.Record(entity, connector.RecordStatusFailed)
		s.metrics.RecordRecord(ctx, source, entity, connector.RecordStatusFailed)
		job.log.Warn("external item without id skipped", zap.String("entity_type", entity.String()))
		return nil
	}

	result := connector.ApplyRules(raw, rules)
	if entity == connector.EntityTypeOrder {
		if err := job.enricher.enrich(ctx, &result); err != nil {
			return fmt.Errorf("enrich order %s: %w", externalID, err)
		}
	}

	record := connector.NewExternalRecord(job.connector.ID, entity, externalID, raw, result, &job.run.ID)
	if err := s.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("upsert %s %s: %w", entity, externalID, err)
	}

	job.stats.Record(entity, record.Status)
	s.metrics.RecordRecord(ctx, source, entity, record.Status)
	return nil
}

// finalize records the terminal state exactly once. The update uses a context
// detached from cancellation so an aborted run is never left running.
func (s *SyncServiceImpl) finalize(ctx context.Context, job *syncJob, runErr error) (*SyncOutcome, error) {
	stats := job.stats.Snapshot()
	finishedAt := s.now()

	if runErr != nil {
		if err := job.run.Fail(stats, runErr, finishedAt); err != nil {
			return nil, err
		}
	} else if err := job.run.Succeed(stats, finishedAt); err != nil {
		return nil, err
	}

	if err := s.runs.Update(context.WithoutCancel(ctx), job.run); err != nil {
		job.log.Error("failed to finalize sync run", zap.String("status", job.run.Status.String()), zap.Error(err))
		if runErr == nil {
			return nil, fmt.Errorf("finalize sync run: %w", err)
		}
	}
	s.metrics.RecordRun(ctx, job.connector.SourceType, job.run.Status, job.run.Duration())

	totals := stats.Totals()
	fields := []zap.Field{
		zap.String("status", job.run.Status.String()),
		zap.Int("total", totals.Total),
		zap.Int("mapped", totals.Mapped),
		zap.Int("failed", totals.Failed),
		zap.Duration("duration", job.run.Duration()),
	}

	if runErr != nil {
		job.log.Error("sync run failed", append(fields, zap.Error(runErr))...)
		return nil, &SyncRunError{RunID: job.run.ID, Err: runErr}
	}

	job.log.Info("sync run finished", fields...)
	return &SyncOutcome{
		RunID:  job.run.ID,
		Status: job.run.Status,
		Stats:  stats,
	}, nil
}

// IsRunFailure reports whether err came from a run that was recorded as failed
func IsRunFailure(err error) (uuid.UUID, bool) {
	var runErr *SyncRunError
	if errors.As(err, &runErr) {
		return runErr.RunID, true
	}
	return uuid.Nil, false
}
