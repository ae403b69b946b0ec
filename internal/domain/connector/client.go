package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RawRecord is one decoded item of an external list response
type RawRecord = map[string]any

// ListOptions are the paging and time-window filters of a list call.
// Zero values are omitted from the request.
type ListOptions struct {
	Page           int
	PerPage        int
	After          *time.Time
	Before         *time.Time
	ModifiedAfter  *time.Time
	ModifiedBefore *time.Time
}

// Page is one page of external items. NextPage is nil on the last page.
type Page struct {
	Items    []RawRecord
	NextPage *int
}

// ExternalClient performs authenticated, paginated reads against one external platform
type ExternalClient interface {
	TestConnection(ctx context.Context) error
	ListProducts(ctx context.Context, opts ListOptions) (*Page, error)
	ListOrders(ctx context.Context, opts ListOptions) (*Page, error)
}

// ListEntities dispatches a list call for the entity type
func ListEntities(ctx context.Context, client ExternalClient, entity EntityType, opts ListOptions) (*Page, error) {
	switch entity {
	case EntityTypeProduct:
		return client.ListProducts(ctx, opts)
	case EntityTypeOrder:
		return client.ListOrders(ctx, opts)
	default:
		return nil, ErrInvalidEntityType
	}
}

// ---------------------------------------------------------------------------
// ClientFactory
// ---------------------------------------------------------------------------

// ClientFactory builds an ExternalClient for one source type from decrypted credentials.
// Credentials live only as long as the returned client.
type ClientFactory interface {
	SourceType() SourceType
	NewClient(connectorID uuid.UUID, baseURL string, creds ClientCredentials) (ExternalClient, error)
}

// ClientFactoryRegistry resolves the factory for a connector's source type.
// Adding a source means registering a factory, not changing the orchestrator.
type ClientFactoryRegistry struct {
	mu        sync.RWMutex
	factories map[SourceType]ClientFactory
}

// NewClientFactoryRegistry creates a registry with the given factories
func NewClientFactoryRegistry(factories ...ClientFactory) *ClientFactoryRegistry {
	r := &ClientFactoryRegistry{factories: make(map[SourceType]ClientFactory)}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds or replaces the factory for its source type
func (r *ClientFactoryRegistry) Register(factory ClientFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.SourceType()] = factory
}

// Get returns the factory for the source type
func (r *ClientFactoryRegistry) Get(source SourceType) (ClientFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
	return f, nil
}

// SourceTypes returns the registered source types in sorted order
func (r *ClientFactoryRegistry) SourceTypes() []SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]SourceType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ---------------------------------------------------------------------------
// PageArchiver
// ---------------------------------------------------------------------------

// PageArchive is one fetched page kept verbatim for audit
type PageArchive struct {
	ConnectorID uuid.UUID
	RunID       uuid.UUID
	EntityType  EntityType
	Page        int
	Items       []RawRecord
	FetchedAt   time.Time
}

// PageArchiver stores raw pages outside the database
type PageArchiver interface {
	ArchivePage(ctx context.Context, page PageArchive) error
}

// ---------------------------------------------------------------------------
// LookupResolver
// ---------------------------------------------------------------------------

// LookupResolver turns external identifiers into internal ids.
// A miss returns nil without an error.
type LookupResolver interface {
	ResolveUserIDByEmail(ctx context.Context, email string) (*uuid.UUID, error)
	ResolveProductIDByExternalID(ctx context.Context, source SourceType, externalID string) (*uuid.UUID, error)
}
