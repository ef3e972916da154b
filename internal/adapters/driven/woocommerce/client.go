package woocommerce

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.OrderClient          = (*Client)(nil)
	_ driven.PerformanceAnalytics = (*Client)(nil)
)

const (
	ordersPath    = "/wp-json/wc/v3/orders"
	analyticsPath = "/wp-json/wc-analytics/reports/products"

	// maxErrorBody bounds how much of an error response is kept
	maxErrorBody = 512
)

// Client calls a store's WooCommerce REST API. It makes exactly one
// attempt per page; retries belong to the caller.
type Client struct {
	stores     driven.StoreRegistry
	httpClient *http.Client
	perPage    int
	maxPages   int
	statuses   []string
	logger     *slog.Logger
}

// Config holds dependencies for Client.
type Config struct {
	Stores     driven.StoreRegistry // Resolves base URL and credentials per store
	HTTPClient *http.Client         // Optional (default: 30s timeout)
	Timeout    time.Duration        // Used when HTTPClient is nil (default: 30s)
	PerPage    int                  // Page size (default: 100, max 100)
	MaxPages   int                  // Safety limit per fetch (default: 1000)
	Statuses   []string             // Default status filter (default: completed, processing, on-hold)
	Logger     *slog.Logger
}

// NewClient creates a new WooCommerce client.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	perPage := cfg.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}

	statuses := cfg.Statuses
	if len(statuses) == 0 {
		statuses = domain.DefaultOrderStatuses
	}

	return &Client{
		stores:     cfg.Stores,
		httpClient: httpClient,
		perPage:    perPage,
		maxPages:   maxPages,
		statuses:   statuses,
		logger:     logger,
	}
}

// FetchOrders lists every order matching query, walking pages until the
// API reports the last page or a short page arrives.
func (c *Client) FetchOrders(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error) {
	store, err := c.store(ctx, storeID)
	if err != nil {
		return nil, err
	}

	params := c.windowParams(query)
	statuses := query.Statuses
	if len(statuses) == 0 {
		statuses = c.statuses
	}
	params.Set("status", strings.Join(statuses, ","))
	params.Set("orderby", "date")
	params.Set("order", "asc")

	perPage := c.pageSize(query.PerPage)
	orders := make([]*domain.Order, 0)

	err = c.paginate(ctx, store, ordersPath, params, perPage, func(body []byte) (int, error) {
		items, _, err := decodeList[wireOrder](body)
		if err != nil {
			return 0, err
		}
		orders = append(orders, lo.Map(items, func(item wireOrder, _ int) *domain.Order {
			return item.toDomain()
		})...)
		return len(items), nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched orders", "store_id", storeID, "orders", len(orders))
	return orders, nil
}

// ProductTotals reads per-product totals from the analytics products report.
// It returns nil when the report yields no list, so callers can fall back.
func (c *Client) ProductTotals(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.ProductCacheEntry, error) {
	store, err := c.store(ctx, storeID)
	if err != nil {
		return nil, err
	}

	params := c.windowParams(query)
	params.Set("orderby", "net_revenue")
	params.Set("order", "desc")
	params.Set("extended_info", "true")

	var entries []*domain.ProductCacheEntry
	usable := false

	err = c.paginate(ctx, store, analyticsPath, params, c.perPage, func(body []byte) (int, error) {
		items, isList, err := decodeList[wireProductReport](body)
		if err != nil {
			return 0, err
		}
		if !isList {
			return 0, nil
		}
		usable = true
		entries = append(entries, lo.Map(items, func(item wireProductReport, _ int) *domain.ProductCacheEntry {
			entry := item.toDomain()
			entry.StoreID = storeID
			return entry
		})...)
		return len(items), nil
	})
	if err != nil {
		return nil, err
	}
	if !usable {
		return nil, nil
	}
	if entries == nil {
		entries = []*domain.ProductCacheEntry{}
	}
	return entries, nil
}

func (c *Client) store(ctx context.Context, storeID string) (*domain.Store, error) {
	store, err := c.stores.Get(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("resolve store %s: %w", storeID, err)
	}
	if store.BaseURL == "" {
		return nil, fmt.Errorf("store %s has no base url: %w", storeID, domain.ErrInvalidInput)
	}
	return store, nil
}

func (c *Client) windowParams(query domain.OrderQuery) url.Values {
	params := url.Values{}
	if query.After != nil {
		params.Set("after", query.After.UTC().Format(time.RFC3339))
	}
	if query.Before != nil {
		params.Set("before", query.Before.UTC().Format(time.RFC3339))
	}
	return params
}

func (c *Client) pageSize(requested int) int {
	if requested > 0 && requested <= 100 {
		return requested
	}
	return c.perPage
}

// paginate requests pages 1..N. handle decodes one page body and returns
// how many items it held.
func (c *Client) paginate(ctx context.Context, store *domain.Store, path string, params url.Values, perPage int, handle func([]byte) (int, error)) error {
	params.Set("per_page", strconv.Itoa(perPage))

	for page := 1; page <= c.maxPages; page++ {
		params.Set("page", strconv.Itoa(page))

		body, header, err := c.doRequest(ctx, store, path, params)
		if err != nil {
			return err
		}

		n, err := handle(body)
		if err != nil {
			return fmt.Errorf("store %s page %d: %w", store.ID, page, err)
		}

		if total, err := strconv.Atoi(header.Get("X-WP-TotalPages")); err == nil {
			if page >= total {
				return nil
			}
			continue
		}
		if n < perPage {
			return nil
		}
	}

	c.logger.Warn("page limit reached", "store_id", store.ID, "path", path, "max_pages", c.maxPages)
	return nil
}

// doRequest performs one authenticated GET. Non-2xx responses become
// *domain.UpstreamError.
func (c *Client) doRequest(ctx context.Context, store *domain.Store, path string, params url.Values) ([]byte, http.Header, error) {
	endpoint := strings.TrimSuffix(store.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if !store.Credentials.IsEmpty() {
		req.SetBasicAuth(store.Credentials.ConsumerKey, store.Credentials.ConsumerSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, nil, &domain.UpstreamError{
			StoreID:    store.ID,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Body:       string(body),
		}
	}

	return body, resp.Header, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or
// past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
