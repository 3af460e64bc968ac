// Package api provides the ACX metadata records client: paginated listing
// of record identifiers and per-record patch updates.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/beacx/acx-api-client/pkg/logging"
)

// Prometheus metrics for ACX API operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acx_requests_total",
		Help: "Total ACX API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acx_request_duration_seconds",
		Help:    "ACX API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acx_errors_total",
		Help: "Total ACX API errors by class",
	}, []string{"class"})
)

// pagesHeader carries the total page count on list responses.
const pagesHeader = "X-Pages"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.acx.example".
	BaseURL string

	// HTTPClient performs the requests. It is expected to inject the
	// bearer credential (see pkg/auth). Defaults to a 30s-timeout client.
	HTTPClient *http.Client

	// UserAgent identifies this client to the API.
	UserAgent string

	// PageSize is the number of records requested per list page.
	PageSize int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		PageSize:  100,
	}
}

// Client is the ACX metadata records API client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new ACX client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logging.NewLogger("acx-client"),
	}, nil
}

// record is the subset of the list payload this client consumes.
type record struct {
	ID string `json:"id"`
}

type listResponse struct {
	Records []record `json:"records"`
}

// ListRecordIDs fetches the identifiers of all records created inside the
// window, paging through the collection in order. A failure on any page
// fails the whole listing; partial identifier sets are never returned.
func (c *Client) ListRecordIDs(ctx context.Context, windowStart, windowEnd time.Time) ([]string, error) {
	start := time.Now()

	var ids []string
	totalPages := 1
	for page := 1; page <= totalPages; page++ {
		pageIDs, pages, err := c.listPage(ctx, windowStart, windowEnd, page)
		if err != nil {
			return nil, fmt.Errorf("list records page %d: %w", page, err)
		}
		if pages > totalPages {
			totalPages = pages
		}
		ids = append(ids, pageIDs...)
	}

	c.logger.Info().
		Int("records", len(ids)).
		Int("pages", totalPages).
		Time("window_start", windowStart).
		Time("window_end", windowEnd).
		Dur("duration", time.Since(start)).
		Msg("Record listing complete")

	return ids, nil
}

// listPage fetches one page and returns its identifiers plus the total page
// count reported by the X-Pages header.
func (c *Client) listPage(ctx context.Context, windowStart, windowEnd time.Time, page int) ([]string, int, error) {
	endpoint := "/v1/records"

	q := url.Values{}
	q.Set("created_after", windowStart.UTC().Format(time.RFC3339))
	q.Set("created_before", windowEnd.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(c.config.PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req, endpoint)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("decode list response: %w", err)
	}

	totalPages := 1
	if v := resp.Header.Get(pagesHeader); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, 0, fmt.Errorf("parse %s header: %w", pagesHeader, err)
		}
		totalPages = n
	}

	ids := make([]string, 0, len(payload.Records))
	for _, r := range payload.Records {
		ids = append(ids, r.ID)
	}

	c.logger.Debug().
		Int("page", page).
		Int("total_pages", totalPages).
		Int("records", len(ids)).
		Msg("Fetched record page")

	return ids, totalPages, nil
}

// PatchRecord applies a partial update to one record. Transport and server
// failures come back as *APIError carrying retry eligibility.
func (c *Client) PatchRecord(ctx context.Context, id string, patch map[string]any) error {
	endpoint := "/v1/records/" + id

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.config.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "/v1/records/{id}")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("record_id", id).
		Int("status", resp.StatusCode).
		Msg("Record patched")

	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)
	return nil
}

// do executes one request with common headers, metrics and error
// classification. Non-2xx responses are closed and returned as *APIError.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Request failed")

		return nil, &APIError{
			Class:         ErrorClassNetwork,
			Message:       "request failed",
			Err:           err,
			RetryEligible: retryEligible(ErrorClassNetwork),
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classify(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")

		apiErr := &APIError{
			StatusCode:    resp.StatusCode,
			Class:         class,
			Message:       resp.Status,
			RetryEligible: retryEligible(class),
		}
		if resp.StatusCode == http.StatusNotFound {
			apiErr.Err = ErrRecordNotFound
		}
		resp.Body.Close()
		return nil, apiErr
	}

	return resp, nil
}
