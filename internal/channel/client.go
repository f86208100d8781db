// Package channel is the gateway to the external sales Channel's REST API.
// Calls are paced, authenticated with a cached client-credentials token and
// never retried here; callers decide what a failure means for their batch.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultPageLimit            = 100
	defaultRefreshMargin        = time.Minute
	maxPages                    = 1000
	responseBodyReadLimit int64 = 1024

	headerServiceName   = "X-Channel-Svc-Name"
	headerCorrelationID = "X-Correlation-Id"
)

var errCredentialsRequired = errors.New("channel client id and secret are required")

// Client wraps the Channel endpoints used by the sync jobs.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	serviceName string
	pageLimit   int
	limiter     *rate.Limiter
	tokens      oauth2.TokenSource
	now         func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. The same client performs
// token exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter overrides the request pacing.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithTokenSource overrides the token source, mostly for tests.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// NewClient builds the Channel client from configuration.
func NewClient(cfg config.ChannelConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errCredentialsRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("channel base url is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		serviceName: cfg.ServiceName,
		pageLimit:   pageLimit,
		now:         time.Now,
	}
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	} else {
		client.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.tokens == nil {
		margin := cfg.TokenRefreshMargin
		if margin <= 0 {
			margin = defaultRefreshMargin
		}
		client.tokens = newTokenSource(cfg.ClientID, cfg.ClientSecret, cfg.ResolvedTokenURL(), client.httpClient, timeout, margin)
	}

	return client, nil
}

type pageMeta struct {
	TotalCount int    `json:"totalCount"`
	Limit      int    `json:"limit"`
	NextCursor string `json:"nextCursor"`
}

type ordersPage struct {
	Meta   *pageMeta  `json:"meta"`
	Orders []RawOrder `json:"orders"`
}

type returnsPage struct {
	Meta         *pageMeta   `json:"meta"`
	ReturnOrders []RawReturn `json:"returnOrders"`
}

// GetReleasedOrders lists every purchase order released inside window,
// following the pagination cursor to the end.
func (c *Client) GetReleasedOrders(ctx context.Context, window Window) ([]RawOrder, error) {
	if !window.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "released orders window is invalid")
	}
	query := url.Values{}
	query.Set("createdStartDate", window.Start.UTC().Format(time.RFC3339))
	query.Set("createdEndDate", window.End.UTC().Format(time.RFC3339))

	var orders []RawOrder
	err := c.paginate(ctx, "/v3/orders/released", query, func(body []byte) (*pageMeta, error) {
		var page ordersPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedFeed, err, "decode released orders page")
		}
		orders = append(orders, page.Orders...)
		return page.Meta, nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetReturns lists every return created inside window.
func (c *Client) GetReturns(ctx context.Context, window Window) ([]RawReturn, error) {
	if !window.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "returns window is invalid")
	}
	query := url.Values{}
	query.Set("returnCreationStartDate", window.Start.UTC().Format(time.RFC3339))
	query.Set("returnCreationEndDate", window.End.UTC().Format(time.RFC3339))

	var returns []RawReturn
	err := c.paginate(ctx, "/v3/returns", query, func(body []byte) (*pageMeta, error) {
		var page returnsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedFeed, err, "decode returns page")
		}
		returns = append(returns, page.ReturnOrders...)
		return page.Meta, nil
	})
	if err != nil {
		return nil, err
	}
	return returns, nil
}

func (c *Client) paginate(ctx context.Context, path string, query url.Values, decode func([]byte) (*pageMeta, error)) error {
	query.Set("limit", strconv.Itoa(c.pageLimit))
	seen := map[string]struct{}{}
	for page := 0; page < maxPages; page++ {
		body, err := c.do(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		meta, err := decode(body)
		if err != nil {
			return err
		}
		if meta == nil {
			return pkgerrors.New(pkgerrors.CodeMalformedFeed, fmt.Sprintf("%s page missing meta", path))
		}
		if meta.NextCursor == "" {
			return nil
		}
		if _, dup := seen[meta.NextCursor]; dup {
			return pkgerrors.New(pkgerrors.CodeMalformedFeed, fmt.Sprintf("%s returned a repeating cursor", path))
		}
		seen[meta.NextCursor] = struct{}{}
		query.Set("cursor", meta.NextCursor)
	}
	return pkgerrors.New(pkgerrors.CodeMalformedFeed, fmt.Sprintf("%s exceeded %d pages", path, maxPages))
}

// Acknowledge confirms receipt of a purchase order.
func (c *Client) Acknowledge(ctx context.Context, purchaseOrderID string) error {
	po := strings.TrimSpace(purchaseOrderID)
	if po == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase order id is required")
	}
	_, err := c.do(ctx, http.MethodPost, "/v3/orders/"+url.PathEscape(po)+"/acknowledge", nil, nil)
	return err
}

type shipmentLine struct {
	LineNumber     string `json:"lineNumber"`
	Quantity       int    `json:"quantity"`
	ShipDateTime   string `json:"shipDateTime"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingURL,omitempty"`
}

type shipmentRequest struct {
	OrderShipment struct {
		OrderLines []shipmentLine `json:"orderLines"`
	} `json:"orderShipment"`
}

// ShipLines marks the given lines of a purchase order as shipped.
func (c *Client) ShipLines(ctx context.Context, purchaseOrderID string, lines []LineShipment) error {
	po := strings.TrimSpace(purchaseOrderID)
	if po == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase order id is required")
	}
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one shipment line is required")
	}

	var req shipmentRequest
	for _, line := range lines {
		if line.LineNumber == "" || strings.TrimSpace(line.TrackingNumber) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipment lines need a line number and tracking number")
		}
		carrier := line.Carrier
		if !carrier.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("carrier %q is not a channel carrier", carrier))
		}
		shippedAt := line.ShippedAt
		if shippedAt.IsZero() {
			shippedAt = c.now()
		}
		req.OrderShipment.OrderLines = append(req.OrderShipment.OrderLines, shipmentLine{
			LineNumber:     line.LineNumber,
			Quantity:       line.Quantity,
			ShipDateTime:   shippedAt.UTC().Format(time.RFC3339),
			Carrier:        carrier.String(),
			TrackingNumber: strings.TrimSpace(line.TrackingNumber),
			TrackingURL:    line.TrackingURL,
		})
	}

	_, err := c.do(ctx, http.MethodPost, "/v3/orders/"+url.PathEscape(po)+"/shipping", nil, req)
	return err
}

type inventoryQuantity struct {
	Unit   string `json:"unit"`
	Amount int    `json:"amount"`
}

type inventoryItem struct {
	SKU      string            `json:"sku"`
	Quantity inventoryQuantity `json:"quantity"`
}

type inventoryFeed struct {
	Inventory []inventoryItem `json:"inventory"`
}

// PushInventory submits a bulk inventory feed and returns the Channel feed id.
func (c *Client) PushInventory(ctx context.Context, updates []InventoryUpdate) (string, error) {
	if len(updates) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "inventory feed is empty")
	}
	feed := inventoryFeed{Inventory: make([]inventoryItem, 0, len(updates))}
	for _, update := range updates {
		if update.SKU == "" || update.Quantity < 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid inventory update for sku %q", update.SKU))
		}
		feed.Inventory = append(feed.Inventory, inventoryItem{
			SKU:      update.SKU,
			Quantity: inventoryQuantity{Unit: "EACH", Amount: update.Quantity},
		})
	}

	query := url.Values{}
	query.Set("feedType", "inventory")
	body, err := c.do(ctx, http.MethodPost, "/v3/feeds", query, feed)
	if err != nil {
		return "", err
	}
	var resp struct {
		FeedID string `json:"feedId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode inventory feed response")
	}
	if resp.FeedID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "inventory feed response missing feed id")
	}
	return resp.FeedID, nil
}

// RetireItem removes a SKU from the Channel catalog. A SKU the Channel no
// longer knows is treated as already retired.
func (c *Client) RetireItem(ctx context.Context, sku string) error {
	trimmed := strings.TrimSpace(sku)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	_, err := c.do(ctx, http.MethodDelete, "/v3/items/"+url.PathEscape(trimmed), nil, nil)
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.status == http.StatusNotFound {
		return nil
	}
	return err
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "channel client not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "wait for channel rate limit")
	}

	token, err := c.tokens.Token()
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch channel access token")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal channel request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build channel request")
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceName != "" {
		req.Header.Set(headerServiceName, c.serviceName)
	}
	req.Header.Set(headerCorrelationID, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
		code := pkgerrors.CodeDependency
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			code = pkgerrors.CodeValidation
		}
		return nil, pkgerrors.Wrap(code, cause, fmt.Sprintf("%s %s rejected", method, path))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read %s %s response", method, path))
	}
	return raw, nil
}
