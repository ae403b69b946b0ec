package connector

import (
	"context"
	"strings"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
)

// LookupResolverImpl resolves external identifiers through the read repositories
type LookupResolverImpl struct {
	users connector.UserLookupRepository
	refs  connector.ExternalReferenceRepository
}

// NewLookupResolver creates a new LookupResolverImpl
func NewLookupResolver(users connector.UserLookupRepository, refs connector.ExternalReferenceRepository) *LookupResolverImpl {
	return &LookupResolverImpl{users: users, refs: refs}
}

var _ connector.LookupResolver = (*LookupResolverImpl)(nil)

// ResolveUserIDByEmail returns the internal user id for an email, or nil on a miss.
// Emails are compared case-insensitively.
func (r *LookupResolverImpl) ResolveUserIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return r.users.FindIDByEmail(ctx, email)
}

// ResolveProductIDByExternalID returns the internal product id crosswalked
// from an external product id, or nil on a miss.
func (r *LookupResolverImpl) ResolveProductIDByExternalID(ctx context.Context, source connector.SourceType, externalID string) (*uuid.UUID, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	return r.refs.FindInternalID(ctx, source, connector.EntityTypeProduct, externalID)
}
