package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectorService is the management surface for connectors
type ConnectorService interface {
	ListConnectors(ctx context.Context) ([]ConnectorSummary, error)
	GetConnector(ctx context.Context, id uuid.UUID) (*ConnectorSummary, error)
	CreateConnector(ctx context.Context, req CreateConnectorRequest) (*ConnectorSummary, error)
	UpdateConnector(ctx context.Context, id uuid.UUID, req UpdateConnectorRequest) (*ConnectorSummary, error)
	UpdateMappingRules(ctx context.Context, id uuid.UUID, req UpdateMappingRulesRequest) (*ConnectorSummary, error)
	DisableConnector(ctx context.Context, id uuid.UUID) (*ConnectorSummary, error)
	TestConnector(ctx context.Context, id uuid.UUID) (*TestResult, error)
	SyncConnector(ctx context.Context, id uuid.UUID, req SyncRequest) (*SyncOutcome, error)
	ListSyncRuns(ctx context.Context, id uuid.UUID, limit int) ([]SyncRunResponse, error)
}

// requestValidator checks DTOs for callers that do not come through gin binding
var requestValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}()

// ConnectorServiceImpl implements ConnectorService
type ConnectorServiceImpl struct {
	connectors  connector.ConnectorRepository
	credentials connector.CredentialRepository
	configs     connector.SyncConfigRepository
	runs        connector.SyncRunRepository
	factories   *connector.ClientFactoryRegistry
	encrypter   connector.Encrypter
	sync        SyncService
	logger      *zap.Logger
	now         func() time.Time
}

// NewConnectorService creates a new ConnectorServiceImpl
func NewConnectorService(
	connectors connector.ConnectorRepository,
	credentials connector.CredentialRepository,
	configs connector.SyncConfigRepository,
	runs connector.SyncRunRepository,
	factories *connector.ClientFactoryRegistry,
	encrypter connector.Encrypter,
	sync SyncService,
	logger *zap.Logger,
) *ConnectorServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorServiceImpl{
		connectors:  connectors,
		credentials: credentials,
		configs:     configs,
		runs:        runs,
		factories:   factories,
		encrypter:   encrypter,
		sync:        sync,
		logger:      logger,
		now:         time.Now,
	}
}

var _ ConnectorService = (*ConnectorServiceImpl)(nil)

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// ListConnectors returns every connector with its flags and latest run.
// Configs and runs are read in one batch each.
func (s *ConnectorServiceImpl) ListConnectors(ctx context.Context) ([]ConnectorSummary, error) {
	connectors, err := s.connectors.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(connectors) == 0 {
		return []ConnectorSummary{}, nil
	}

	ids := make([]uuid.UUID, len(connectors))
	for i := range connectors {
		ids[i] = connectors[i].ID
	}

	configs, err := s.configs.FindByConnectorIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	latest, err := s.runs.FindLatestByConnectorIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConnectorSummary, len(connectors))
	for i := range connectors {
		c := &connectors[i]
		summaries[i] = ToConnectorSummary(c, configs[c.ID], latest[c.ID])
	}
	return summaries, nil
}

// GetConnector returns one connector summary
func (s *ConnectorServiceImpl) GetConnector(ctx context.Context, id uuid.UUID) (*ConnectorSummary, error) {
	c, err := s.connectors.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, c)
}

// ListSyncRuns returns the connector's runs, newest first
func (s *ConnectorServiceImpl) ListSyncRuns(ctx context.Context, id uuid.UUID, limit int) ([]SyncRunResponse, error) {
	if _, err := s.connectors.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRunHistoryLimit
	}

	runs, err := s.runs.FindByConnectorID(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	responses := make([]SyncRunResponse, len(runs))
	for i := range runs {
		responses[i] = ToSyncRunResponse(&runs[i])
	}
	return responses, nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// CreateConnector registers a connector with its encrypted credential and sync config
func (s *ConnectorServiceImpl) CreateConnector(ctx context.Context, req CreateConnectorRequest) (*ConnectorSummary, error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	source := connector.SourceType(strings.ToLower(req.SourceType))
	if _, err := s.factories.Get(source); err != nil {
		return nil, connector.ErrInvalidSourceType
	}

	c, err := connector.NewConnector(source, req.Name, req.BaseURL)
	if err != nil {
		return nil, err
	}
	cred, err := connector.SealCredential(c.ID, connector.ClientCredentials{
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
	}, s.encrypter)
	if err != nil {
		return nil, err
	}
	cfg := connector.NewSyncConfig(c.ID, req.SyncProducts, req.SyncOrders)

	if err := s.connectors.Create(ctx, c, cred, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("connector created",
		zap.String("connector_id", c.ID.String()),
		zap.String("source_type", c.SourceType.String()),
	)
	summary := ToConnectorSummary(c, cfg, nil)
	return &summary, nil
}

// UpdateConnector merges name, base URL and flags. Credentials are re-encrypted
// only for supplied values and custom mapping rules are kept.
func (s *ConnectorServiceImpl) UpdateConnector(ctx context.Context, id uuid.UUID, req UpdateConnectorRequest) (*ConnectorSummary, error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	c, err := s.connectors.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.FindByConnectorID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.BaseURL != nil {
		if err := c.UpdateBaseURL(*req.BaseURL); err != nil {
			return nil, err
		}
	}
	if req.Name != nil {
		c.Rename(*req.Name)
	}

	if req.ConsumerKey != nil || req.ConsumerSecret != nil {
		cred, err := s.credentials.FindByConnectorID(ctx, id)
		if err != nil {
			return nil, err
		}
		rotated, err := cred.Rotate(s.encrypter, req.ConsumerKey, req.ConsumerSecret)
		if err != nil {
			return nil, err
		}
		if rotated {
			if err := s.credentials.Save(ctx, cred); err != nil {
				return nil, err
			}
			s.logger.Info("connector credential rotated", zap.String("connector_id", id.String()))
		}
	}

	if req.SyncProducts != nil || req.SyncOrders != nil {
		cfg.SetFlags(req.SyncProducts, req.SyncOrders)
		if err := s.configs.Save(ctx, cfg); err != nil {
			return nil, err
		}
	}

	c.UpdatedAt = s.now()
	if err := s.connectors.Save(ctx, c); err != nil {
		return nil, err
	}
	return s.summarizeWith(ctx, c, cfg)
}

// UpdateMappingRules validates and stores the custom rule document
func (s *ConnectorServiceImpl) UpdateMappingRules(ctx context.Context, id uuid.UUID, req UpdateMappingRulesRequest) (*ConnectorSummary, error) {
	c, err := s.connectors.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.FindByConnectorID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cfg.ReplaceMappingRules(req.Rules); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("connector mapping rules updated",
		zap.String("connector_id", id.String()),
		zap.Bool("custom", cfg.HasCustomRules()),
	)
	return s.summarizeWith(ctx, c, cfg)
}

// DisableConnector stops scheduled and manual syncs for the connector
func (s *ConnectorServiceImpl) DisableConnector(ctx context.Context, id uuid.UUID) (*ConnectorSummary, error) {
	c, err := s.connectors.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Disable()
	if err := s.connectors.Save(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("connector disabled", zap.String("connector_id", id.String()))
	return s.summarize(ctx, c)
}

// TestConnector checks the connector's credentials against the platform.
// A failed check is reported in the result and leaves the connector untouched;
// the error return is reserved for lookup and persistence failures.
func (s *ConnectorServiceImpl) TestConnector(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	c, err := s.connectors.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cred, err := s.credentials.FindByConnectorID(ctx, id)
	if err != nil {
		return nil, err
	}

	testedAt := s.now()
	client, err := buildClient(s.factories, s.encrypter, c, cred)
	if err == nil {
		err = client.TestConnection(ctx)
	}
	if err != nil {
		s.logger.Warn("connector test failed",
			zap.String("connector_id", id.String()),
			zap.Error(err),
		)
		return &TestResult{Success: false, Message: err.Error(), TestedAt: testedAt}, nil
	}

	c.MarkTested(testedAt)
	if err := s.connectors.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save tested connector: %w", err)
	}
	return &TestResult{Success: true, Message: "connection ok", TestedAt: testedAt}, nil
}

// SyncConnector runs a sync for the connector
func (s *ConnectorServiceImpl) SyncConnector(ctx context.Context, id uuid.UUID, req SyncRequest) (*SyncOutcome, error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	return s.sync.RunSync(ctx, id, req)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *ConnectorServiceImpl) summarize(ctx context.Context, c *connector.Connector) (*ConnectorSummary, error) {
	cfg, err := s.configs.FindByConnectorID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return s.summarizeWith(ctx, c, cfg)
}

func (s *ConnectorServiceImpl) summarizeWith(ctx context.Context, c *connector.Connector, cfg *connector.SyncConfig) (*ConnectorSummary, error) {
	latest, err := s.runs.FindLatestByConnectorIDs(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return nil, err
	}
	summary := ToConnectorSummary(c, cfg, latest[c.ID])
	return &summary, nil
}
