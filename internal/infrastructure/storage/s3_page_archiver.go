// Package storage archives raw connector pages to S3-compatible object storage.
package storage

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aurum/backend/internal/domain/connector"
	infraconfig "github.com/aurum/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

var _ connector.PageArchiver = (*S3PageArchiver)(nil)

// DefaultKeyPrefix applies when no prefix is configured.
const DefaultKeyPrefix = "connector-pages"

// archivedPage is the object body written per page.
type archivedPage struct {
	ConnectorID string                `json:"connectorId"`
	RunID       string                `json:"runId"`
	EntityType  string                `json:"entityType"`
	Page        int                   `json:"page"`
	ItemCount   int                   `json:"itemCount"`
	FetchedAt   time.Time             `json:"fetchedAt"`
	Items       []connector.RawRecord `json:"items"`
}

// S3PageArchiver writes fetched pages to a bucket on AWS S3 or any store
// speaking its API.
type S3PageArchiver struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	logger    *zap.Logger
}

type S3PageArchiverOption func(*S3PageArchiver)

func WithLogger(logger *zap.Logger) S3PageArchiverOption {
	return func(a *S3PageArchiver) { a.logger = logger.Named("page_archiver") }
}

// NewS3PageArchiver builds an archiver with static credentials. The bucket is
// not touched until EnsureBucket or the first ArchivePage.
func NewS3PageArchiver(cfg *infraconfig.StorageConfig, opts ...S3PageArchiverOption) (*S3PageArchiver, error) {
	if cfg == nil {
		return nil, errors.New("page archive: configuration is required")
	}
	for _, req := range []struct{ name, value string }{
		{"bucket", cfg.Bucket},
		{"access key", cfg.AccessKey},
		{"secret key", cfg.SecretKey},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("page archive: %s is required", req.name)
		}
	}

	endpoint, err := archiveEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	region := cmp.Or(cfg.Region, "us-east-1")
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region), config.WithCredentialsProvider(creds))
	if err != nil {
		return nil, fmt.Errorf("page archive: load aws config: %w", err)
	}

	a := &S3PageArchiver{
		client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = cfg.UsePathStyle
			// MinIO and friends reject some checksum headers unless asked for.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}),
		bucket:    cfg.Bucket,
		keyPrefix: cmp.Or(strings.Trim(cfg.Prefix, "/"), DefaultKeyPrefix),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// archiveEndpoint adds a scheme to bare host:port endpoints.
func archiveEndpoint(raw string, useSSL bool) (string, error) {
	endpoint := cmp.Or(raw, "localhost:9000")
	if !strings.Contains(endpoint, "://") {
		scheme := "http://"
		if useSSL {
			scheme = "https://"
		}
		endpoint = scheme + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", fmt.Errorf("page archive: endpoint %q: %w", raw, err)
	}
	return endpoint, nil
}

// EnsureBucket creates the bucket unless it already exists.
func (a *S3PageArchiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &a.bucket})
	if err == nil {
		return nil
	}
	var (
		notFound *types.NotFound
		noBucket *types.NoSuchBucket
	)
	if !errors.As(err, &notFound) && !errors.As(err, &noBucket) {
		return fmt.Errorf("page archive: head bucket %s: %w", a.bucket, err)
	}

	a.logger.Info("Creating page archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &a.bucket})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("page archive: create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ArchivePage writes one page as a JSON document
func (a *S3PageArchiver) ArchivePage(ctx context.Context, page connector.PageArchive) error {
	body, err := json.Marshal(archivedPage{
		ConnectorID: page.ConnectorID.String(),
		RunID:       page.RunID.String(),
		EntityType:  string(page.EntityType),
		Page:        page.Page,
		ItemCount:   len(page.Items),
		FetchedAt:   page.FetchedAt.UTC(),
		Items:       page.Items,
	})
	if err != nil {
		return fmt.Errorf("page archive: encode page %d: %w", page.Page, err)
	}

	key := a.PageKey(page)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &a.bucket,
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("page archive: upload page %s: %w", key, err)
	}

	a.logger.Debug("Archived connector page",
		zap.String("connector_id", page.ConnectorID.String()),
		zap.String("run_id", page.RunID.String()),
		zap.String("entity_type", string(page.EntityType)),
		zap.Int("page", page.Page),
		zap.Int("items", len(page.Items)),
	)
	return nil
}

// PageKey returns <prefix>/<connector>/<run>/<entity>/page-<n>.json
func (a *S3PageArchiver) PageKey(page connector.PageArchive) string {
	return path.Join(
		a.keyPrefix,
		page.ConnectorID.String(),
		page.RunID.String(),
		string(page.EntityType),
		fmt.Sprintf("page-%04d.json", page.Page),
	)
}

func (a *S3PageArchiver) Bucket() string { return a.bucket }
