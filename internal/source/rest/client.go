package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eaccountant/internal/core"
	"eaccountant/internal/source"
)

const (
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 8 << 20
	maxDetailLength = 200

	salesPath    = "/api/monthly-sales/"
	profitsPath  = "/api/profits/"
	productsPath = "/api/products/"
)

// Client reads reports from the accounting backend's REST API.
type Client struct {
	baseURL string
	token   string
	fields  source.FieldMap
	http    *http.Client
}

// Ensure interface conformance
var (
	_ source.SalesReader  = (*Client)(nil)
	_ source.ProfitReader = (*Client)(nil)
	_ source.StockReader  = (*Client)(nil)
)

// Option customizes a Client.
type Option func(*Client)

// WithToken sends "Authorization: Token <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithFields(fields source.FieldMap) Option {
	return func(c *Client) { c.fields = fields.WithDefaults() }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the overall request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = newHTTPClientWithPooling(d)
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("missing base URL")
	}
	if u, err := url.Parse(baseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL: baseURL,
		fields:  source.DefaultSalesFields(),
		http:    newHTTPClientWithPooling(defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPError is a non-2xx answer from the backend. Detail carries the
// backend's "detail" message when it sent one.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP error! status: %d: %s", e.StatusCode, e.Detail)
}

// MonthlySales implements source.SalesReader.
func (c *Client) MonthlySales(ctx context.Context) (core.Batch[core.Record], error) {
	body, err := c.get(ctx, salesPath, nil)
	if err != nil {
		return core.Batch[core.Record]{}, fmt.Errorf("fetch monthly sales: %w", err)
	}
	batch, err := source.DecodeSales(body, c.fields)
	if err != nil {
		return batch, fmt.Errorf("decode monthly sales: %w", err)
	}
	logRejected(ctx, "monthly_sales", batch.Rejected)
	return batch, nil
}

// Profits implements source.ProfitReader.
func (c *Client) Profits(ctx context.Context, period core.Period) (core.Batch[core.ProfitRow], error) {
	if !period.IsValid() {
		return core.Batch[core.ProfitRow]{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	body, err := c.get(ctx, profitsPath, url.Values{"period": {period.String()}})
	if err != nil {
		return core.Batch[core.ProfitRow]{}, fmt.Errorf("fetch profits: %w", err)
	}
	batch, err := source.DecodeProfits(body)
	if err != nil {
		return batch, fmt.Errorf("decode profits: %w", err)
	}
	logRejected(ctx, "profits", batch.Rejected)
	return batch, nil
}

// Products implements source.StockReader.
func (c *Client) Products(ctx context.Context) (core.Batch[core.Product], error) {
	body, err := c.get(ctx, productsPath, nil)
	if err != nil {
		return core.Batch[core.Product]{}, fmt.Errorf("fetch products: %w", err)
	}
	batch, err := source.DecodeProducts(body)
	if err != nil {
		return batch, fmt.Errorf("decode products: %w", err)
	}
	logRejected(ctx, "products", batch.Rejected)
	return batch, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	slog.DebugContext(ctx, "Report source responded",
		"path", path,
		"status_code", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

// errorDetail extracts the optional "detail" string of an error body, or a
// short excerpt of a plain text body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return strings.TrimSpace(payload.Detail)
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "<") {
		return ""
	}
	if len(text) > maxDetailLength {
		text = text[:maxDetailLength] + "..."
	}
	return text
}

func logRejected(ctx context.Context, report string, rejected []core.RecordError) {
	for _, r := range rejected {
		slog.WarnContext(ctx, "Rejected malformed record",
			"report", report,
			"index", r.Index,
			"field", r.Field,
			"value", r.Value,
			"error", r.Err)
	}
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and keep-alive suitable for repeated report fetches.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
