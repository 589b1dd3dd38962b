package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/cache"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	accessTokenHeader        = "X-Shopify-Access-Token"
	defaultRetryAfter        = 2 * time.Second
	inventoryManagementValue = "shopify"
)

var errServerStatus = errors.New("server error status")

// Product is a Shopify product as returned by the Admin REST API.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ProductType string    `json:"product_type"`
	Vendor      string    `json:"vendor"`
	Tags        string    `json:"tags"`
	BodyHTML    string    `json:"body_html"`
	Variants    []Variant `json:"variants"`
}

type Variant struct {
	ID                  int64   `json:"id"`
	ProductID           int64   `json:"product_id"`
	SKU                 string  `json:"sku"`
	Price               string  `json:"price"`
	CompareAtPrice      *string `json:"compare_at_price"`
	InventoryItemID     int64   `json:"inventory_item_id"`
	InventoryManagement string  `json:"inventory_management"`
	InventoryPolicy     string  `json:"inventory_policy"`
}

type inventoryItem struct {
	ID      int64   `json:"id"`
	Cost    *string `json:"cost"`
	Tracked bool    `json:"tracked"`
}

type inventoryLevel struct {
	InventoryItemID int64 `json:"inventory_item_id"`
	LocationID      int64 `json:"location_id"`
	Available       *int  `json:"available"`
}

// ShopifyClient implements Catalog against the Shopify Admin REST API.
// Every request passes the admission limiter and the circuit breaker.
type ShopifyClient struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*response]
	locator    Locator
	retryAfter time.Duration
	logger     *slog.Logger

	breakerCfg config.CircuitBreakerConfig
	index      cache.Cache
	indexTTL   time.Duration
}

type Option func(*ShopifyClient)

// WithCircuitBreaker replaces the default breaker settings.
func WithCircuitBreaker(cfg config.CircuitBreakerConfig) Option {
	return func(c *ShopifyClient) {
		c.breakerCfg = cfg
	}
}

// WithSKUIndex resolves SKUs through an index kept in the given cache instead of a full scan per lookup.
func WithSKUIndex(index cache.Cache, ttl time.Duration) Option {
	return func(c *ShopifyClient) {
		c.index = index
		c.indexTTL = ttl
	}
}

// WithDefaultRetryAfter sets the delay reported for 429 responses without a Retry-After header.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(c *ShopifyClient) {
		if d > 0 {
			c.retryAfter = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *ShopifyClient) {
		c.logger = logger.With("component", "catalog")
	}
}

// NewShopifyClient creates a client for the store in cfg. The http client is expected to carry the
// tracing transport and timeout.
func NewShopifyClient(cfg config.ShopifyConfig, httpClient *http.Client, opts ...Option) *ShopifyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &ShopifyClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/admin/api/" + cfg.APIVersion,
		token:      cfg.AccessToken,
		pageSize:   cfg.PageSize,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limitOf(cfg.RequestsPerSecond), 1),
		retryAfter: defaultRetryAfter,
		logger:     slog.Default().With("component", "catalog"),
		breakerCfg: config.CircuitBreakerConfig{
			ConsecutiveFailures: 5,
			ErrorRatePercent:    50,
			OpenTimeout:         30 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.breaker = newBreaker(c.breakerCfg, c.logger)
	if c.index != nil {
		c.locator = NewCachedLocator(c, c.index, c.indexTTL, c.logger)
	} else {
		c.locator = NewScanLocator(c)
	}
	return c
}

func limitOf(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func newBreaker(cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*response] {
	st := gobreaker.Settings{
		Name:        "shopify-admin",
		MaxRequests: 3,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		// 4xx answers are domain outcomes; only transport failures and 5xx trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			}
		},
	}
	return gobreaker.NewCircuitBreaker[*response](st)
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do performs one authenticated request and maps the status to the error taxonomy.
func (c *ShopifyClient) do(ctx context.Context, method, path string, query url.Values, in, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set(accessTokenHeader, c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		data, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		r := &response{status: res.StatusCode, header: res.Header, body: data}
		if res.StatusCode >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, errServerStatus) && resp != nil {
			return nil, fmt.Errorf("%w: %s %s returned %d", apperrors.ErrRemoteUnavailable, method, path, resp.status)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", apperrors.ErrRemoteUnavailable, method, path, err)
	}

	switch {
	case resp.status >= 200 && resp.status < 300:
		if out != nil && len(resp.body) > 0 {
			if err := json.Unmarshal(resp.body, out); err != nil {
				return nil, fmt.Errorf("%w: failed to decode %s %s response: %v", apperrors.ErrRemoteUnavailable, method, path, err)
			}
		}
		return resp.header, nil
	case resp.status == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, apperrors.ErrNotFound)
	case resp.status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.header.Get("Retry-After"), c.retryAfter)
		c.logger.WarnContext(ctx, "catalog request throttled", "method", method, "path", path, "retry_after", retryAfter)
		return nil, &apperrors.RateLimitedError{RetryAfter: retryAfter}
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s rejected credentials (%d)", apperrors.ErrRemoteUnavailable, method, path, resp.status)
	default:
		return nil, &apperrors.RemoteValidationError{Messages: parseErrors(resp.body, resp.status)}
	}
}

func parseRetryAfter(v string, def time.Duration) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// parseErrors flattens the "errors" member, which Shopify sends as a string, a list or a field map.
func parseErrors(body []byte, status int) []string {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		var s string
		if json.Unmarshal(envelope.Errors, &s) == nil {
			return []string{s}
		}
		var list []string
		if json.Unmarshal(envelope.Errors, &list) == nil {
			return list
		}
		var fields map[string]json.RawMessage
		if json.Unmarshal(envelope.Errors, &fields) == nil {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var out []string
			for _, k := range keys {
				var msgs []string
				if json.Unmarshal(fields[k], &msgs) != nil {
					var msg string
					_ = json.Unmarshal(fields[k], &msg)
					msgs = []string{msg}
				}
				for _, m := range msgs {
					out = append(out, k+" "+m)
				}
			}
			return out
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return []string{text}
	}
	return []string{fmt.Sprintf("unexpected status %d", status)}
}

// parseNextPageInfo extracts the page_info cursor of the rel="next" link.
func parseNextPageInfo(linkHeader string) (string, bool) {
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		urlPart := strings.Trim(strings.TrimSpace(strings.Split(part, ";")[0]), "<>")
		if parsed, err := url.Parse(urlPart); err == nil {
			if cursor := parsed.Query().Get("page_info"); cursor != "" {
				return cursor, true
			}
		}
	}
	return "", false
}

// ListProducts returns one page of products and the cursor of the next page, empty on the last page.
func (c *ShopifyClient) ListProducts(ctx context.Context, pageInfo string) ([]Product, string, error) {
	query := url.Values{"limit": {strconv.Itoa(c.pageSize)}}
	if pageInfo != "" {
		query.Set("page_info", pageInfo)
	}
	var out struct {
		Products []Product `json:"products"`
	}
	header, err := c.do(ctx, http.MethodGet, "/products.json", query, nil, &out)
	if err != nil {
		return nil, "", err
	}
	next, _ := parseNextPageInfo(header.Get("Link"))
	return out.Products, next, nil
}

// GetProduct fetches one product by id.
func (c *ShopifyClient) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d.json", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

func (c *ShopifyClient) getInventoryItem(ctx context.Context, id int64) (*inventoryItem, error) {
	var out struct {
		InventoryItem inventoryItem `json:"inventory_item"`
	}
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/inventory_items/%d.json", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.InventoryItem, nil
}

func (c *ShopifyClient) updateInventoryItem(ctx context.Context, id int64, fields map[string]any) (*inventoryItem, error) {
	fields["id"] = id
	var out struct {
		InventoryItem inventoryItem `json:"inventory_item"`
	}
	in := map[string]any{"inventory_item": fields}
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/inventory_items/%d.json", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out.InventoryItem, nil
}

func (c *ShopifyClient) getInventoryLevels(ctx context.Context, itemID int64) ([]inventoryLevel, error) {
	var out struct {
		InventoryLevels []inventoryLevel `json:"inventory_levels"`
	}
	query := url.Values{"inventory_item_ids": {strconv.FormatInt(itemID, 10)}}
	if _, err := c.do(ctx, http.MethodGet, "/inventory_levels.json", query, nil, &out); err != nil {
		return nil, err
	}
	return out.InventoryLevels, nil
}

func (c *ShopifyClient) setInventoryLevel(ctx context.Context, itemID, locationID int64, available int) error {
	in := map[string]any{
		"inventory_item_id": itemID,
		"location_id":       locationID,
		"available":         available,
	}
	_, err := c.do(ctx, http.MethodPost, "/inventory_levels/set.json", nil, in, nil)
	return err
}

func (c *ShopifyClient) updateProduct(ctx context.Context, id int64, fields map[string]any) (*Product, error) {
	fields["id"] = id
	var out struct {
		Product Product `json:"product"`
	}
	in := map[string]any{"product": fields}
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d.json", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

func (c *ShopifyClient) updateVariant(ctx context.Context, id int64, fields map[string]any) (*Variant, error) {
	fields["id"] = id
	var out struct {
		Variant Variant `json:"variant"`
	}
	in := map[string]any{"variant": fields}
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/variants/%d.json", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out.Variant, nil
}

func (c *ShopifyClient) createProduct(ctx context.Context, fields map[string]any) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	in := map[string]any{"product": fields}
	if _, err := c.do(ctx, http.MethodPost, "/products.json", nil, in, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}
