// Package api provides the metadata store client with optimistic-concurrency
// writes, pagination traversal, and chunked bulk insertion.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for metadata store operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cidb_requests_total",
		Help: "Total metadata store requests by method and status",
	}, []string{"method", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cidb_request_duration_seconds",
		Help:    "Metadata store request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	apiValidationRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_validation_rejects_total",
		Help: "Total entities rejected by remote schema validation (422)",
	})

	apiOversizeRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_oversize_retries_total",
		Help: "Total 413 responses retried with chunked transfer",
	})
)

const (
	// DefaultChunkSize bounds the number of entities per bulk insert request.
	DefaultChunkSize = 100

	// DefaultMaxPages caps pagination traversal to guard against cyclic
	// next-link chains from a misbehaving server.
	DefaultMaxPages = 1000
)

// Client is the metadata store client. All requests carry the account token as
// basic auth credentials (token as username, empty password).
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the store's versioned API root, e.g. "http://www.api.example.org/v1".
	BaseURL string

	// Token is the account authentication token (REQUIRED).
	Token string

	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration

	// ChunkSize bounds the entities per bulk insert request.
	ChunkSize int

	// MaxPages caps pagination traversal depth.
	MaxPages int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:     baseURL,
		Token:       token,
		HTTPTimeout: 30 * time.Second,
		ChunkSize:   DefaultChunkSize,
		MaxPages:    DefaultMaxPages,
	}
}

// New creates a new metadata store client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrEmptyToken
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}

	logger := log.With().Str("component", "cidb-api").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Get issues a read against the endpoint. When errorIfNotFound is false a 404
// is returned silently; any other non-success status is logged with the
// response URL and body but still returned. Only transport failures and
// malformed arguments produce a Go error.
func (c *Client) Get(ctx context.Context, endpoint string, errorIfNotFound bool) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if resp.NotFound() && !errorIfNotFound {
		return resp, nil
	}
	if !resp.OK() {
		c.logHTTPError(resp)
	}
	return resp, nil
}

// Post issues a write creating one or more entities at a collection endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, payload any) (*Response, error) {
	resp, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		c.logHTTPError(resp)
	}
	return resp, nil
}

// do issues a single request and converts the response. A 413 from the server
// is retried exactly once with a chunked transfer before being reported.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (*Response, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, endpoint, body, "", false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusRequestEntityTooLarge && len(body) > 0 {
		apiOversizeRetriesTotal.Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("method", method).
			Msg("Payload too large, retrying once with chunked transfer")

		resp, err = c.send(ctx, method, endpoint, body, "", true)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// sendConditional performs one write carrying an If-Match header when etag is
// non-empty.
func (c *Client) sendConditional(ctx context.Context, method, endpoint string, body []byte, etag string) (*Response, error) {
	return c.send(ctx, method, endpoint, body, etag, false)
}

// send performs one HTTP round trip. With chunked set, the body is streamed
// without a Content-Length so the transport uses chunked encoding.
func (c *Client) send(ctx context.Context, method, endpoint string, body []byte, etag string, chunked bool) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request for %s: %w", method, endpoint, err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
		if chunked {
			req.ContentLength = -1
		}
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	req.SetBasicAuth(c.config.Token, "")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	apiRequestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       respBody,
		URL:        httpResp.Request.URL.String(),
	}, nil
}

// logHTTPError records a non-success response with its URL and body.
func (c *Client) logHTTPError(resp *Response) {
	c.logger.Error().
		Str("url", resp.URL).
		Int("status", resp.StatusCode).
		Str("body", string(resp.Body)).
		Msg("Metadata store request failed")
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}
	return body, nil
}
