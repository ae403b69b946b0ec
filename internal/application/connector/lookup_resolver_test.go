package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLookupResolver_ResolveUserIDByEmail(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("normalizes email before lookup", func(t *testing.T) {
		users := new(MockUserLookupRepository)
		users.On("FindIDByEmail", ctx, "buyer@example.com").Return(&userID, nil)
		resolver := NewLookupResolver(users, new(MockExternalReferenceRepository))

		got, err := resolver.ResolveUserIDByEmail(ctx, "  Buyer@Example.COM ")

		require.NoError(t, err)
		assert.Equal(t, &userID, got)
		users.AssertExpectations(t)
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		users := new(MockUserLookupRepository)
		users.On("FindIDByEmail", ctx, "nobody@example.com").Return(nil, nil)
		resolver := NewLookupResolver(users, new(MockExternalReferenceRepository))

		got, err := resolver.ResolveUserIDByEmail(ctx, "nobody@example.com")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("blank email skips the repository", func(t *testing.T) {
		users := new(MockUserLookupRepository)
		resolver := NewLookupResolver(users, new(MockExternalReferenceRepository))

		got, err := resolver.ResolveUserIDByEmail(ctx, "   ")

		require.NoError(t, err)
		assert.Nil(t, got)
		users.AssertNotCalled(t, "FindIDByEmail", mock.Anything, mock.Anything)
	})

	t.Run("repository error propagates", func(t *testing.T) {
		users := new(MockUserLookupRepository)
		dbErr := errors.New("connection reset")
		users.On("FindIDByEmail", ctx, "buyer@example.com").Return(nil, dbErr)
		resolver := NewLookupResolver(users, new(MockExternalReferenceRepository))

		_, err := resolver.ResolveUserIDByEmail(ctx, "buyer@example.com")

		assert.ErrorIs(t, err, dbErr)
	})
}

func TestLookupResolver_ResolveProductIDByExternalID(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()

	refs := new(MockExternalReferenceRepository)
	refs.On("FindInternalID", ctx, connector.SourceTypeWooCommerce, connector.EntityTypeProduct, "501").Return(&productID, nil)
	refs.On("FindInternalID", ctx, connector.SourceTypeWooCommerce, connector.EntityTypeProduct, "999").Return(nil, nil)
	resolver := NewLookupResolver(new(MockUserLookupRepository), refs)

	got, err := resolver.ResolveProductIDByExternalID(ctx, connector.SourceTypeWooCommerce, "501")
	require.NoError(t, err)
	assert.Equal(t, &productID, got)

	got, err = resolver.ResolveProductIDByExternalID(ctx, connector.SourceTypeWooCommerce, "999")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = resolver.ResolveProductIDByExternalID(ctx, connector.SourceTypeWooCommerce, "")
	require.NoError(t, err)
	assert.Nil(t, got)
	refs.AssertNumberOfCalls(t, "FindInternalID", 2)
}
