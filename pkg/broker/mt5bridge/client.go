package mt5bridge

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

	"github.com/zeromicro/go-zero/core/logx"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond

	minHistoryLimit = 50
	maxHistoryLimit = 10000
)

var (
	// ErrBridgeUnavailable means the bridge could not be reached or kept
	// failing with server errors after every retry.
	ErrBridgeUnavailable = errors.New("mt5bridge: bridge unavailable")
	// ErrUnsupportedResolution is returned for resolutions MT5 cannot serve.
	ErrUnsupportedResolution = errors.New("mt5bridge: unsupported resolution")
)

// Client wraps the MT5 bridge HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the bridge address.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPTimeout sets the per-request timeout of the default client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithRetryBackoff sets the first retry delay; later delays double.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// NewClient constructs a bridge client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    "http://127.0.0.1:8001",
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the bridge address.
func (c *Client) BaseURL() string { return c.baseURL }

// bridgeResolution maps a chart resolution onto the bridge's timeframe key.
func bridgeResolution(r bars.Resolution) (string, error) {
	switch r {
	case bars.Res1m, bars.Res5m, bars.Res15m, bars.Res30m, bars.Res1h, bars.Res4h:
		return string(r), nil
	case bars.Res1D:
		return "1d", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedResolution, r)
	}
}

// GetHistorySeries fetches bars in [FromMs, ToMs]. The bridge never caches,
// so MaxAgeMs is ignored here.
func (c *Client) GetHistorySeries(ctx context.Context, req broker.HistoryRequest) (*broker.HistorySeries, error) {
	res, err := bridgeResolution(req.Resolution)
	if err != nil {
		return nil, err
	}
	limit := maxHistoryLimit
	if ms := req.Resolution.Millis(); ms > 0 && req.ToMs > req.FromMs {
		limit = int((req.ToMs-req.FromMs)/ms) + 1
		limit = min(max(limit, minHistoryLimit), maxHistoryLimit)
	}
	body := historyRequest{
		Symbol:     req.Symbol,
		Resolution: res,
		From:       req.FromMs,
		To:         req.ToMs,
		Limit:      limit,
	}
	var out historyResponse
	if err := c.do(ctx, http.MethodPost, "/history/series", nil, body, &out); err != nil {
		return nil, err
	}
	source := out.Source
	if source == "" {
		source = "mt5"
	}
	return &broker.HistorySeries{Bars: out.Bars, FetchedAtMs: out.FetchedAtMs, Source: source}, nil
}

// GetPositions lists open positions, optionally for one symbol.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]broker.Position, error) {
	var out positionsResponse
	if err := c.do(ctx, http.MethodGet, "/positions", symbolQuery(symbol), nil, &out); err != nil {
		return nil, err
	}
	positions := make([]broker.Position, 0, len(out.Positions))
	for _, p := range out.Positions {
		positions = append(positions, p.toPosition())
	}
	return positions, nil
}

// GetOrders lists pending orders, optionally for one symbol.
func (c *Client) GetOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	var out ordersResponse
	if err := c.do(ctx, http.MethodGet, "/orders", symbolQuery(symbol), nil, &out); err != nil {
		return nil, err
	}
	orders := make([]broker.Order, 0, len(out.Orders))
	for _, o := range out.Orders {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

// ModifyPosition moves a position's SL and/or TP.
func (c *Client) ModifyPosition(ctx context.Context, id string, sl, tp *float64) error {
	ticket, err := parseTicket(id)
	if err != nil {
		return err
	}
	if sl == nil && tp == nil {
		return fmt.Errorf("mt5bridge: modify position %s: nothing to update", id)
	}
	var out envelope
	return c.do(ctx, http.MethodPost, "/position/modify", nil, modifyPositionRequest{Position: ticket, SL: sl, TP: tp}, &out)
}

// ModifyOrder moves a pending order's price, SL and/or TP.
func (c *Client) ModifyOrder(ctx context.Context, id string, price, sl, tp *float64) error {
	ticket, err := parseTicket(id)
	if err != nil {
		return err
	}
	if price == nil && sl == nil && tp == nil {
		return fmt.Errorf("mt5bridge: modify order %s: nothing to update", id)
	}
	var out envelope
	return c.do(ctx, http.MethodPost, "/order/modify", nil, modifyOrderRequest{Order: ticket, Price: price, SL: sl, TP: tp}, &out)
}

// GetQuote returns the latest tick for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("mt5bridge: symbol is required")
	}
	var out quoteResponse
	if err := c.do(ctx, http.MethodGet, "/quote", symbolQuery(symbol), nil, &out); err != nil {
		return nil, err
	}
	q := out.Quote.toQuote()
	if q.Symbol == "" {
		q.Symbol = out.Resolved
	}
	return &q, nil
}

func symbolQuery(symbol string) url.Values {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil
	}
	return url.Values{"symbol": []string{symbol}}
}

func parseTicket(id string) (int64, error) {
	ticket, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || ticket <= 0 {
		return 0, fmt.Errorf("mt5bridge: invalid ticket %q", id)
	}
	return ticket, nil
}

// statusError is a non-2xx answer. 5xx answers are retried.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("mt5bridge: http status %d: %s", e.status, e.msg)
}

func (e *statusError) retryable() bool { return e.status >= http.StatusInternalServerError }

// do sends one request with retries on transport errors and 5xx answers.
// result must embed envelope; a false ok is reported as an error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mt5bridge: encode %s request: %w", path, err)
		}
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
		err := c.once(ctx, method, endpoint, payload, result)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		var de *decodeError
		if errors.As(err, &de) {
			return err
		}
		lastErr = err
		logx.WithContext(ctx).Infof("mt5bridge: %s %s attempt=%d err=%v", method, path, attempt+1, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrBridgeUnavailable, method, path, lastErr)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) once(ctx context.Context, method, endpoint string, payload []byte, result any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &decodeError{fmt.Errorf("mt5bridge: build request: %w", err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mt5bridge: read response: %w", err)
	}

	var env envelope
	_ = json.Unmarshal(data, &env)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &statusError{status: resp.StatusCode, msg: msg}
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &decodeError{fmt.Errorf("mt5bridge: decode response: %w", err)}
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = "request rejected"
		}
		return &statusError{status: resp.StatusCode, msg: msg}
	}
	return nil
}
