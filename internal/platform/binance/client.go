package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/venuearb/internal/crypto"
	"github.com/alanyoungcy/venuearb/internal/domain"
)

const defaultRecvWindow = 5 * time.Second

// Client is the REST client for a Binance-compatible spot API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	recvWindow time.Duration

	limiter     domain.RateLimiter
	limiterKey  string
	limit       int
	limitWindow time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter makes every request wait for a slot of limit requests per
// window under key.
func WithRateLimiter(l domain.RateLimiter, key string, limit int, window time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter, c.limiterKey, c.limit, c.limitWindow = l, key, limit, window
	}
}

// NewClient creates a REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com". auth may be nil
// for public market data only.
func NewClient(baseURL string, auth *crypto.HMACAuth, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		auth:       auth,
		recvWindow: defaultRecvWindow,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeInfo returns every listed symbol with its filters.
func (c *Client) ExchangeInfo(ctx context.Context) (ExchangeInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return ExchangeInfo{}, fmt.Errorf("binance: exchange info: %w", err)
	}
	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return ExchangeInfo{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	return info, nil
}

// Depth returns the order book of symbol with up to limit levels per side.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (DepthResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/api/v3/depth", params, false)
	if err != nil {
		return DepthResponse{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}
	var depth DepthResponse
	if err := json.Unmarshal(body, &depth); err != nil {
		return DepthResponse{}, fmt.Errorf("binance: decode depth: %w", err)
	}
	return depth, nil
}

// Account returns the account balances.
func (c *Client) Account(ctx context.Context) (AccountResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return AccountResponse{}, fmt.Errorf("binance: account: %w", err)
	}
	var acct AccountResponse
	if err := json.Unmarshal(body, &acct); err != nil {
		return AccountResponse{}, fmt.Errorf("binance: decode account: %w", err)
	}
	return acct, nil
}

// CoinConfigs returns the deposit/withdraw configuration of every coin.
func (c *Client) CoinConfigs(ctx context.Context) ([]CoinConfig, error) {
	body, err := c.do(ctx, http.MethodGet, "/sapi/v1/capital/config/getall", url.Values{}, true)
	if err != nil {
		return nil, fmt.Errorf("binance: coin config: %w", err)
	}
	var coins []CoinConfig
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, fmt.Errorf("binance: decode coin config: %w", err)
	}
	return coins, nil
}

// PlaceLimitOrder submits a GTC limit order. side is "BUY" or "SELL".
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol, side, quantity, price string) (OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", quantity)
	params.Set("price", price)
	params.Set("newOrderRespType", "RESULT")

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("binance: place order: %w", err)
	}
	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResponse{}, fmt.Errorf("binance: decode order response: %w", err)
	}
	if resp.Status == "REJECTED" || resp.Status == "EXPIRED" {
		return resp, fmt.Errorf("binance: order %d %s: %w", resp.OrderID, resp.Status, domain.ErrInvalidOrder)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds, optionally signs, sends and reads a request.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.limiterKey, c.limit, c.limitWindow); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var query string
	switch {
	case signed:
		if !c.auth.Enabled() {
			return nil, fmt.Errorf("binance: API credentials not configured")
		}
		query = c.auth.Sign(params, c.recvWindow)
	case params != nil:
		query = params.Encode()
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		for k, v := range c.auth.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr APIError
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("binance: %s (%d): %w", apiErr.Msg, apiErr.Code, domain.ErrRateLimited)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("binance: unauthorized: %s (%d)", apiErr.Msg, apiErr.Code)
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(apiErr.Msg), "insufficient balance") {
			return fmt.Errorf("binance: %s: %w", apiErr.Msg, domain.ErrInsufficientBalance)
		}
		return fmt.Errorf("binance: bad request: %s (%d)", apiErr.Msg, apiErr.Code)
	default:
		return fmt.Errorf("binance: HTTP %d: %s (%d)", statusCode, apiErr.Msg, apiErr.Code)
	}
}
