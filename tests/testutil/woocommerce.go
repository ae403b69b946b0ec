// Package testutil holds test doubles shared across packages, chiefly an
// in-memory WooCommerce store.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/woocommerce"
	"github.com/google/uuid"
)

// wooDefaultPerPage is the page size WooCommerce uses when per_page is absent
const wooDefaultPerPage = 10

// FakeStore is an in-memory WooCommerce store served over httptest.
// It answers the v3 products, orders and system_status endpoints with
// Basic auth and X-WP-TotalPages pagination.
type FakeStore struct {
	server      *httptest.Server
	credentials connector.ClientCredentials

	mu       sync.Mutex
	products []map[string]any
	orders   []map[string]any
	status   int
	hits     map[string]int
	queries  []string
}

// NewFakeStore starts a store that is closed when the test ends.
func NewFakeStore(t *testing.T) *FakeStore {
	t.Helper()

	s := &FakeStore{
		credentials: connector.ClientCredentials{
			ConsumerKey:    "ck_" + uuid.NewString()[:8],
			ConsumerSecret: "cs_" + uuid.NewString()[:8],
		},
		hits: make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

// URL returns the store base URL.
func (s *FakeStore) URL() string {
	return s.server.URL
}

// Credentials returns the key pair the store accepts.
func (s *FakeStore) Credentials() connector.ClientCredentials {
	return s.credentials
}

// SetProducts replaces the product catalogue.
func (s *FakeStore) SetProducts(items ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = items
}

// SetOrders replaces the order list.
func (s *FakeStore) SetOrders(items ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = items
}

// FailWith makes every request answer with status. Zero restores normal service.
func (s *FakeStore) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits returns how many requests reached a resource such as "products".
func (s *FakeStore) Hits(resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[resource]
}

// Queries returns the raw query strings of every list request in arrival order.
func (s *FakeStore) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *FakeStore) serve(w http.ResponseWriter, r *http.Request) {
	resource, ok := strings.CutPrefix(r.URL.Path, woocommerce.DefaultAPIPrefix+"/")
	if !ok {
		writeWooError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[resource]++

	if s.status != 0 {
		writeWooError(w, s.status, "internal_server_error", "There has been a critical error on this website.")
		return
	}

	key, secret, hasAuth := r.BasicAuth()
	if !hasAuth || key != s.credentials.ConsumerKey || secret != s.credentials.ConsumerSecret {
		writeWooError(w, http.StatusUnauthorized, "woocommerce_rest_authentication_error", "Invalid signature - provided signature does not match.")
		return
	}

	switch resource {
	case "system_status":
		writeJSON(w, http.StatusOK, map[string]any{"environment": map[string]any{"version": "9.3.0"}})
	case "products":
		s.queries = append(s.queries, r.URL.RawQuery)
		writePage(w, r, s.products)
	case "orders":
		s.queries = append(s.queries, r.URL.RawQuery)
		writePage(w, r, s.orders)
	default:
		writeWooError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
	}
}

func writePage(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", wooDefaultPerPage)

	totalPages := (len(items) + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	w.Header().Set("X-WP-Total", strconv.Itoa(len(items)))
	w.Header().Set(woocommerce.TotalPagesHeader, strconv.Itoa(totalPages))
	writeJSON(w, http.StatusOK, append([]map[string]any{}, items[start:end]...))
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeWooError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
		"data":    map[string]any{"status": status},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ---------------------------------------------------------------------------
// Payload builders
// ---------------------------------------------------------------------------

// WooProduct returns a product payload shaped like the v3 API.
func WooProduct(id int, name, price string) map[string]any {
	return map[string]any{
		"id":                id,
		"name":              name,
		"sku":               "SKU-" + strconv.Itoa(id),
		"type":              "simple",
		"status":            "publish",
		"price":             price,
		"regular_price":     price,
		"sale_price":        "",
		"stock_status":      "instock",
		"stock_quantity":    nil,
		"weight":            "0.0311",
		"virtual":           false,
		"date_modified_gmt": "2026-09-01T10:00:00",
	}
}

// WooOrder returns an order payload shaped like the v3 API with one line item per product id.
func WooOrder(id int, email, total string, productIDs ...int) map[string]any {
	items := make([]any, 0, len(productIDs))
	for i, pid := range productIDs {
		items = append(items, map[string]any{
			"id":         id*100 + i,
			"product_id": pid,
			"quantity":   1,
			"total":      total,
		})
	}
	return map[string]any{
		"id":               id,
		"number":           strconv.Itoa(id),
		"status":           "processing",
		"currency":         "usd",
		"total":            total,
		"total_tax":        "0.00",
		"shipping_total":   "0.00",
		"billing":          map[string]any{"email": email},
		"payment_method":   "bacs",
		"date_created_gmt": "2026-09-02T08:30:00",
		"line_items":       items,
	}
}
