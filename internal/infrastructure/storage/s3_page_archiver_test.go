package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeS3 records path-style requests
type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   map[string]int // "METHOD path" -> status
}

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	status, ok := f.status[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if ok && status >= 300 {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestArchiver(t *testing.T, fake *fakeS3, prefix string) *S3PageArchiver {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	archiver, err := NewS3PageArchiver(&config.StorageConfig{
		Endpoint:     server.URL,
		Region:       "us-east-1",
		Bucket:       "archive",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
		Prefix:       prefix,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return archiver
}

func TestNewS3PageArchiver_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3PageArchiver(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3PageArchiver(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3PageArchiver(&config.StorageConfig{Bucket: "b", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3PageArchiver(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("endpoint without scheme and default prefix", func(t *testing.T) {
		archiver, err := NewS3PageArchiver(&config.StorageConfig{
			Endpoint:  "localhost:9000",
			Bucket:    "b",
			AccessKey: "k",
			SecretKey: "s",
		})
		require.NoError(t, err)
		assert.Equal(t, "b", archiver.Bucket())
		assert.Equal(t, DefaultKeyPrefix, archiver.keyPrefix)
	})
}

func TestS3PageArchiver_PageKey(t *testing.T) {
	archiver := newTestArchiver(t, &fakeS3{}, "/raw/pages/")
	connectorID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	runID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	key := archiver.PageKey(connector.PageArchive{
		ConnectorID: connectorID,
		RunID:       runID,
		EntityType:  connector.EntityTypeOrder,
		Page:        7,
	})

	assert.Equal(t, "raw/pages/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/order/page-0007.json", key)
}

func TestS3PageArchiver_ArchivePage(t *testing.T) {
	fake := &fakeS3{}
	archiver := newTestArchiver(t, fake, "")

	page := connector.PageArchive{
		ConnectorID: uuid.New(),
		RunID:       uuid.New(),
		EntityType:  connector.EntityTypeProduct,
		Page:        2,
		Items: []connector.RawRecord{
			{"id": json.Number("501"), "name": "1 oz Gold Maple Leaf"},
			{"id": json.Number("502"), "name": "10 oz Silver Bar"},
		},
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	err := archiver.ArchivePage(context.Background(), page)
	require.NoError(t, err)

	requests := fake.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPut, requests[0].Method)
	assert.Equal(t, "/archive/"+archiver.PageKey(page), requests[0].Path)
	assert.Equal(t, "application/json", requests[0].ContentType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(requests[0].Body, &doc))
	assert.Equal(t, page.ConnectorID.String(), doc["connectorId"])
	assert.Equal(t, page.RunID.String(), doc["runId"])
	assert.Equal(t, "product", doc["entityType"])
	assert.Equal(t, float64(2), doc["page"])
	assert.Equal(t, float64(2), doc["itemCount"])
	assert.Equal(t, "2026-03-01T12:00:00Z", doc["fetchedAt"])
	items := doc["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "10 oz Silver Bar", items[1].(map[string]any)["name"])
}

func TestS3PageArchiver_ArchivePageFailure(t *testing.T) {
	fake := &fakeS3{status: map[string]int{}}
	archiver := newTestArchiver(t, fake, "pages")

	page := connector.PageArchive{
		ConnectorID: uuid.New(),
		RunID:       uuid.New(),
		EntityType:  connector.EntityTypeOrder,
		Page:        1,
	}
	fake.status["PUT /archive/"+archiver.PageKey(page)] = http.StatusForbidden

	err := archiver.ArchivePage(context.Background(), page)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload page")
}

func TestS3PageArchiver_EnsureBucket(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		fake := &fakeS3{}
		archiver := newTestArchiver(t, fake, "")

		require.NoError(t, archiver.EnsureBucket(context.Background()))
		requests := fake.recorded()
		require.Len(t, requests, 1)
		assert.Equal(t, http.MethodHead, requests[0].Method)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		fake := &fakeS3{status: map[string]int{"HEAD /archive": http.StatusNotFound}}
		archiver := newTestArchiver(t, fake, "")

		require.NoError(t, archiver.EnsureBucket(context.Background()))
		requests := fake.recorded()
		require.Len(t, requests, 2)
		assert.Equal(t, http.MethodPut, requests[1].Method)
		assert.Equal(t, "/archive", requests[1].Path)
	})
}

func TestNopPageArchiver(t *testing.T) {
	var archiver connector.PageArchiver = NewNopPageArchiver()
	assert.NoError(t, archiver.ArchivePage(context.Background(), connector.PageArchive{Page: 1}))
}
