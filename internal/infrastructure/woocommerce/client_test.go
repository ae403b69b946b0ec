package woocommerce

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testCreds = connector.ClientCredentials{ConsumerKey: "ck_test", ConsumerSecret: "cs_test"}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, testCreds, Config{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client, server
}

func TestClient_ListProducts(t *testing.T) {
	t.Run("sends auth and query and computes next page", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotQuery map[string][]string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			gotQuery = r.URL.Query()
			w.Header().Set(TotalPagesHeader, "3")
			_, _ = w.Write([]byte(`[{"id": 501, "name": "1 oz Gold Eagle", "price": "2450.10"}]`))
		})

		modified := time.Date(2026, 9, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
		page, err := client.ListProducts(context.Background(), connector.ListOptions{
			Page:          2,
			PerPage:       50,
			ModifiedAfter: &modified,
		})

		require.NoError(t, err)
		assert.Equal(t, "/wp-json/wc/v3/products", gotPath)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("ck_test:cs_test")), gotAuth)
		assert.Equal(t, []string{"2"}, gotQuery["page"])
		assert.Equal(t, []string{"50"}, gotQuery["per_page"])
		assert.Equal(t, []string{"2026-09-01T10:00:00Z"}, gotQuery["modified_after"])
		assert.NotContains(t, gotQuery, "after")
		assert.NotContains(t, gotQuery, "consumer_key")

		require.Len(t, page.Items, 1)
		assert.Equal(t, json.Number("501"), page.Items[0]["id"])
		require.NotNil(t, page.NextPage)
		assert.Equal(t, 3, *page.NextPage)
	})

	t.Run("last page has no next page", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(TotalPagesHeader, "2")
			_, _ = w.Write([]byte(`[]`))
		})

		page, err := client.ListProducts(context.Background(), connector.ListOptions{Page: 2})

		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Nil(t, page.NextPage)
	})

	t.Run("missing header means single page", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id": 1}]`))
		})

		page, err := client.ListProducts(context.Background(), connector.ListOptions{})

		require.NoError(t, err)
		assert.Nil(t, page.NextPage)
	})
}

func TestClient_ListOrders(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set(TotalPagesHeader, "1")
		_, _ = w.Write([]byte(`[{"id": 9001, "billing": {"email": "buyer@example.com"}}]`))
	})

	page, err := client.ListOrders(context.Background(), connector.ListOptions{Page: 1})

	require.NoError(t, err)
	assert.Equal(t, "/wp-json/wc/v3/orders", gotPath)
	require.Len(t, page.Items, 1)
	assert.Equal(t, map[string]any{"email": "buyer@example.com"}, page.Items[0]["billing"])
}

func TestClient_Errors(t *testing.T) {
	t.Run("non-2xx carries status and body", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"woocommerce_rest_cannot_view"}`))
		})

		_, err := client.ListProducts(context.Background(), connector.ListOptions{Page: 1})

		require.Error(t, err)
		assert.ErrorIs(t, err, connector.ErrExternalRequestFailed)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "woocommerce_rest_cannot_view")
		assert.True(t, apiErr.IsAuthError())
		assert.NotContains(t, err.Error(), "cs_test")
	})

	t.Run("non-array body is an invalid response", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"products": []}`))
		})

		_, err := client.ListProducts(context.Background(), connector.ListOptions{Page: 1})

		assert.ErrorIs(t, err, connector.ErrExternalInvalidResponse)
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[` + strings.Repeat(`{"id":1},`, 100) + `{"id":2}]`))
		}))
		defer server.Close()
		client, err := NewClient(server.URL, testCreds, Config{MaxResponseBytes: 64})
		require.NoError(t, err)

		_, err = client.ListProducts(context.Background(), connector.ListOptions{Page: 1})

		assert.ErrorIs(t, err, connector.ErrExternalInvalidResponse)
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := server.URL
		server.Close()
		client, err := NewClient(url, testCreds, Config{Timeout: time.Second})
		require.NoError(t, err)

		_, err = client.ListOrders(context.Background(), connector.ListOptions{Page: 1})

		assert.ErrorIs(t, err, connector.ErrExternalRequestFailed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.ListOrders(ctx, connector.ListOptions{Page: 1})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClient_TestConnection(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"environment": {"version": "9.1.0"}}`))
	})

	require.NoError(t, client.TestConnection(context.Background()))
	assert.Equal(t, "/wp-json/wc/v3/system_status", gotPath)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("not a url", testCreds, Config{})
	assert.ErrorIs(t, err, connector.ErrInvalidBaseURL)

	_, err = NewClient("https://shop.example.com", connector.ClientCredentials{ConsumerKey: "ck"}, Config{})
	assert.ErrorIs(t, err, connector.ErrMissingCredentials)
}

func TestFactory_CircuitBreakerPerConnector(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Breaker = BreakerConfig{Enabled: true, MaxRequests: 1, OpenTimeout: time.Minute, ConsecutiveFailures: 2}
	factory := NewFactory(cfg, zaptest.NewLogger(t))
	tripped := uuid.New()

	for i := 0; i < 2; i++ {
		client, err := factory.NewClient(tripped, server.URL, testCreds)
		require.NoError(t, err)
		_, err = client.ListProducts(context.Background(), connector.ListOptions{Page: 1})
		require.ErrorIs(t, err, connector.ErrExternalRequestFailed)
	}
	assert.Equal(t, gobreaker.StateOpen, factory.BreakerState(tripped))

	client, err := factory.NewClient(tripped, server.URL, testCreds)
	require.NoError(t, err)
	_, err = client.ListProducts(context.Background(), connector.ListOptions{Page: 1})
	assert.ErrorIs(t, err, connector.ErrExternalUnavailable)
	assert.Equal(t, int32(2), hits.Load())

	other, err := factory.NewClient(uuid.New(), server.URL, testCreds)
	require.NoError(t, err)
	_, err = other.ListProducts(context.Background(), connector.ListOptions{Page: 1})
	assert.ErrorIs(t, err, connector.ErrExternalRequestFailed)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFactory_ClientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Breaker.ConsecutiveFailures = 1
	factory := NewFactory(cfg, nil)
	id := uuid.New()

	for i := 0; i < 3; i++ {
		client, err := factory.NewClient(id, server.URL, testCreds)
		require.NoError(t, err)
		err = client.TestConnection(context.Background())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, gobreaker.StateClosed, factory.BreakerState(id))
}

func TestFactory_SharesRateLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 5
	factory := NewFactory(cfg, nil)
	id := uuid.New()

	a, err := factory.NewClient(id, "https://shop.example.com", testCreds)
	require.NoError(t, err)
	b, err := factory.NewClient(id, "https://shop.example.com", testCreds)
	require.NoError(t, err)

	assert.Same(t, a.(*Client).limiter, b.(*Client).limiter)
	assert.Equal(t, connector.SourceTypeWooCommerce, factory.SourceType())
}
