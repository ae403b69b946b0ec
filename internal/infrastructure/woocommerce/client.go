package woocommerce

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/telemetry"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// response is a successful raw response
type response struct {
	body   []byte
	header http.Header
}

// Client is a read-only WooCommerce REST client bound to one store and one
// key pair. It never retries.
type Client struct {
	baseURL       string
	authorization string
	cfg           Config
	httpClient    *http.Client
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker[*response]
}

var _ connector.ExternalClient = (*Client)(nil)

// NewClient creates a client for the store at baseURL.
// The credentials are kept only as the Authorization header of this client.
func NewClient(baseURL string, creds connector.ClientCredentials, cfg Config) (*Client, error) {
	normalized, err := connector.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if !creds.IsComplete() {
		return nil, connector.ErrMissingCredentials
	}
	cfg = cfg.withDefaults()

	return &Client{
		baseURL:       normalized,
		authorization: basicAuth(creds),
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func basicAuth(creds connector.ClientCredentials) string {
	token := base64.StdEncoding.EncodeToString([]byte(creds.ConsumerKey + ":" + creds.ConsumerSecret))
	return "Basic " + token
}

// TestConnection fetches the store's system status
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "/system_status", nil)
	return err
}

// ListProducts returns one page of products
func (c *Client) ListProducts(ctx context.Context, opts connector.ListOptions) (*connector.Page, error) {
	return c.list(ctx, "/products", opts)
}

// ListOrders returns one page of orders
func (c *Client) ListOrders(ctx context.Context, opts connector.ListOptions) (*connector.Page, error) {
	return c.list(ctx, "/orders", opts)
}

func (c *Client) list(ctx context.Context, resource string, opts connector.ListOptions) (*connector.Page, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	resp, err := c.get(ctx, resource, listQuery(opts))
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(resp.body))
	decoder.UseNumber()
	var items []connector.RawRecord
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", connector.ErrExternalInvalidResponse, resource, err)
	}
	if items == nil {
		items = []connector.RawRecord{}
	}

	result := &connector.Page{Items: items}
	if total, ok := totalPages(resp.header); ok && total > page {
		next := page + 1
		result.NextPage = &next
	}
	return result, nil
}

// listQuery translates the present options into query parameters
func listQuery(opts connector.ListOptions) url.Values {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	setTime := func(key string, t *time.Time) {
		if t != nil {
			q.Set(key, t.UTC().Format(time.RFC3339))
		}
	}
	setTime("after", opts.After)
	setTime("before", opts.Before)
	setTime("modified_after", opts.ModifiedAfter)
	setTime("modified_before", opts.ModifiedBefore)
	return q
}

func totalPages(header http.Header) (int, bool) {
	raw := strings.TrimSpace(header.Get(TotalPagesHeader))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, query url.Values) (*response, error) {
	ctx, span := telemetry.StartSpan(ctx, "woocommerce.get",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("http.request.method", http.MethodGet),
		telemetry.WithAttribute("url.path", c.cfg.APIPrefix+path),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	call := func() (*response, error) {
		return c.do(ctx, path, query)
	}

	var (
		resp *response
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", connector.ErrExternalUnavailable, err)
		}
	} else {
		resp, err = call()
	}

	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return resp, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*response, error) {
	endpoint := c.baseURL + c.cfg.APIPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrExternalRequestFailed, err)
	}
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrExternalRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", connector.ErrExternalRequestFailed, err)
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", connector.ErrExternalInvalidResponse, c.cfg.MaxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return &response{body: body, header: resp.Header}, nil
}

// breakerSuccess decides which errors count against the store.
// Rejected requests and cancellations are not the store's fault.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.serverSide()
	}
	if errors.Is(err, connector.ErrExternalInvalidResponse) {
		return true
	}
	return false
}
