package connector

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// ============================================================================
// Repository mocks
// ============================================================================

type MockConnectorRepository struct {
	mock.Mock
}

func (m *MockConnectorRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.Connector, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Connector), args.Error(1)
}

func (m *MockConnectorRepository) FindAll(ctx context.Context) ([]connector.Connector, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]connector.Connector), args.Error(1)
}

func (m *MockConnectorRepository) FindByStatus(ctx context.Context, status connector.Status) ([]connector.Connector, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]connector.Connector), args.Error(1)
}

func (m *MockConnectorRepository) Create(ctx context.Context, c *connector.Connector, cred *connector.Credential, cfg *connector.SyncConfig) error {
	args := m.Called(ctx, c, cred, cfg)
	return args.Error(0)
}

func (m *MockConnectorRepository) Save(ctx context.Context, c *connector.Connector) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

var _ connector.ConnectorRepository = (*MockConnectorRepository)(nil)

type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) FindByConnectorID(ctx context.Context, connectorID uuid.UUID) (*connector.Credential, error) {
	args := m.Called(ctx, connectorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Credential), args.Error(1)
}

func (m *MockCredentialRepository) Save(ctx context.Context, cred *connector.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

var _ connector.CredentialRepository = (*MockCredentialRepository)(nil)

type MockSyncConfigRepository struct {
	mock.Mock
}

func (m *MockSyncConfigRepository) FindByConnectorID(ctx context.Context, connectorID uuid.UUID) (*connector.SyncConfig, error) {
	args := m.Called(ctx, connectorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.SyncConfig), args.Error(1)
}

func (m *MockSyncConfigRepository) FindByConnectorIDs(ctx context.Context, connectorIDs []uuid.UUID) (map[uuid.UUID]*connector.SyncConfig, error) {
	args := m.Called(ctx, connectorIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*connector.SyncConfig), args.Error(1)
}

func (m *MockSyncConfigRepository) Save(ctx context.Context, cfg *connector.SyncConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

var _ connector.SyncConfigRepository = (*MockSyncConfigRepository)(nil)

type MockSyncRunRepository struct {
	mock.Mock
}

func (m *MockSyncRunRepository) Create(ctx context.Context, run *connector.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSyncRunRepository) Update(ctx context.Context, run *connector.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSyncRunRepository) FindByConnectorID(ctx context.Context, connectorID uuid.UUID, limit int) ([]connector.SyncRun, error) {
	args := m.Called(ctx, connectorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]connector.SyncRun), args.Error(1)
}

func (m *MockSyncRunRepository) FindLatestByConnectorIDs(ctx context.Context, connectorIDs []uuid.UUID) (map[uuid.UUID]*connector.SyncRun, error) {
	args := m.Called(ctx, connectorIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*connector.SyncRun), args.Error(1)
}

var _ connector.SyncRunRepository = (*MockSyncRunRepository)(nil)

type MockLookupResolver struct {
	mock.Mock
}

func (m *MockLookupResolver) ResolveUserIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

func (m *MockLookupResolver) ResolveProductIDByExternalID(ctx context.Context, source connector.SourceType, externalID string) (*uuid.UUID, error) {
	args := m.Called(ctx, source, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

var _ connector.LookupResolver = (*MockLookupResolver)(nil)

type MockUserLookupRepository struct {
	mock.Mock
}

func (m *MockUserLookupRepository) FindIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

type MockExternalReferenceRepository struct {
	mock.Mock
}

func (m *MockExternalReferenceRepository) FindInternalID(ctx context.Context, source connector.SourceType, entity connector.EntityType, externalID string) (*uuid.UUID, error) {
	args := m.Called(ctx, source, entity, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

// ============================================================================
// Fakes
// ============================================================================

type recordKey struct {
	connectorID uuid.UUID
	entity      connector.EntityType
	externalID  string
}

// memoryRecordStore upserts by natural key like the database does
type memoryRecordStore struct {
	mu      sync.Mutex
	records map[recordKey]*connector.ExternalRecord
	upserts int
	failOn  string
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: make(map[recordKey]*connector.ExternalRecord)}
}

func (s *memoryRecordStore) Upsert(_ context.Context, record *connector.ExternalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && record.ExternalID == s.failOn {
		return errors.New("db down")
	}
	s.upserts++
	s.records[recordKey{record.ConnectorID, record.EntityType, record.ExternalID}] = record
	return nil
}

func (s *memoryRecordStore) FindByKey(_ context.Context, connectorID uuid.UUID, entity connector.EntityType, externalID string) (*connector.ExternalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey{connectorID, entity, externalID}]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func (s *memoryRecordStore) CountByStatus(_ context.Context, connectorID uuid.UUID, entity connector.EntityType) (map[connector.RecordStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[connector.RecordStatus]int64{}
	for k, rec := range s.records {
		if k.connectorID == connectorID && k.entity == entity {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (s *memoryRecordStore) get(connectorID uuid.UUID, entity connector.EntityType, externalID string) *connector.ExternalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[recordKey{connectorID, entity, externalID}]
}

func (s *memoryRecordStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ connector.ExternalRecordRepository = (*memoryRecordStore)(nil)

// fakeClient serves fixed pages per entity and counts calls
type fakeClient struct {
	mu        sync.Mutex
	pages     map[connector.EntityType][][]connector.RawRecord
	failAt    map[connector.EntityType]int
	failErr   error
	calls     map[connector.EntityType][]int
	lastOpts  connector.ListOptions
	testErr   error
	testCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages:  make(map[connector.EntityType][][]connector.RawRecord),
		failAt: make(map[connector.EntityType]int),
		calls:  make(map[connector.EntityType][]int),
	}
}

func (c *fakeClient) TestConnection(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testCalls++
	return c.testErr
}

func (c *fakeClient) ListProducts(ctx context.Context, opts connector.ListOptions) (*connector.Page, error) {
	return c.list(ctx, connector.EntityTypeProduct, opts)
}

func (c *fakeClient) ListOrders(ctx context.Context, opts connector.ListOptions) (*connector.Page, error) {
	return c.list(ctx, connector.EntityTypeOrder, opts)
}

func (c *fakeClient) list(ctx context.Context, entity connector.EntityType, opts connector.ListOptions) (*connector.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[entity] = append(c.calls[entity], opts.Page)
	c.lastOpts = opts
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page, ok := c.failAt[entity]; ok && page == opts.Page {
		return nil, c.failErr
	}

	pages := c.pages[entity]
	if opts.Page < 1 || opts.Page > len(pages) {
		return &connector.Page{Items: []connector.RawRecord{}}, nil
	}
	result := &connector.Page{Items: pages[opts.Page-1]}
	if opts.Page < len(pages) {
		next := opts.Page + 1
		result.NextPage = &next
	}
	return result, nil
}

func (c *fakeClient) callCount(entity connector.EntityType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls[entity])
}

// fakeFactory hands out one prepared client
type fakeFactory struct {
	client    connector.ExternalClient
	err       error
	lastCreds connector.ClientCredentials
	builds    int
}

func (f *fakeFactory) SourceType() connector.SourceType {
	return connector.SourceTypeWooCommerce
}

func (f *fakeFactory) NewClient(_ uuid.UUID, _ string, creds connector.ClientCredentials) (connector.ExternalClient, error) {
	f.builds++
	f.lastCreds = creds
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

// fakeEncrypter prefixes values so tests can tell ciphertext from plaintext
type fakeEncrypter struct{}

func (fakeEncrypter) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeEncrypter) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errors.New("bad ciphertext")
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

// recordingArchiver captures archived pages
type recordingArchiver struct {
	mu    sync.Mutex
	pages []connector.PageArchive
	err   error
}

func (a *recordingArchiver) ArchivePage(_ context.Context, page connector.PageArchive) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pages = append(a.pages, page)
	return a.err
}
