// Package intercom implements the read-only Intercom API client: batched
// conversation search with rate-limit backoff, and by-id retrieval with a
// search fallback.
package intercom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Intercom REST API origin.
	DefaultBaseURL = "https://api.intercom.io"

	// DefaultAPIVersion is sent in the Intercom-Version header.
	DefaultAPIVersion = "2.8"

	// EnvAPIToken overrides the configured token when set.
	EnvAPIToken = "INTERCOM_API_TOKEN"

	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second
	defaultBackoffFactor  = 2.0
	defaultMaxBackoff     = 60 * time.Second

	// Client-side pacing, kept under Intercom's documented window.
	requestsPerSecond = 10
)

// Config carries credentials, endpoint, and retry tuning for a Client.
type Config struct {
	APIToken   string
	BaseURL    string
	APIVersion string

	// BatchSize pins the search batch size; 0 selects a computed size.
	BatchSize int

	MaxRetries     int
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
}

// Client is a read-only Intercom API client. It is safe for sequential use;
// fetches are independent and idempotent.
type Client struct {
	cfg     Config
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// sleep is the backoff wait, injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client from cfg. The INTERCOM_API_TOKEN environment
// variable takes precedence over cfg.APIToken; a "Bearer " scheme prefix on
// either is stripped. The base URL accepts a bare origin or a full
// conversations resource URL.
func NewClient(log *slog.Logger, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	token := cfg.APIToken
	if env := strings.TrimSpace(os.Getenv(EnvAPIToken)); env != "" {
		token = env
	}

	return &Client{
		cfg:     cfg,
		token:   stripBearer(token),
		baseURL: normalizeBaseURL(cfg.BaseURL),
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  log.With(slog.String("component", "intercom")),
		sleep:   sleepContext,
	}
}

func stripBearer(token string) string {
	trimmed := strings.TrimSpace(token)
	if len(trimmed) >= 7 && strings.EqualFold(trimmed[:7], "bearer ") {
		return strings.TrimSpace(trimmed[7:])
	}
	return trimmed
}

// normalizeBaseURL removes a trailing slash and a trailing conversations
// resource path, so callers may pass either form.
func normalizeBaseURL(value string) string {
	u := strings.TrimRight(strings.TrimSpace(value), "/")
	u = strings.TrimSuffix(u, "/conversations/search")
	u = strings.TrimSuffix(u, "/conversations")
	return strings.TrimRight(u, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type searchRequest struct {
	Query               searchQuery `json:"query"`
	DisplayAs           string      `json:"display_as"`
	SortField           string      `json:"sort_field"`
	SortOrder           string      `json:"sort_order"`
	IncludeMessages     bool        `json:"include_messages"`
	IncludeMessageParts bool        `json:"include_message_parts"`
	Expand              []string    `json:"expand"`
}

type searchQuery struct {
	Operator string         `json:"operator"`
	Value    []searchFilter `json:"value"`
}

type searchFilter struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Value    []string `json:"value"`
}

type searchResponse struct {
	Conversations []map[string]any `json:"conversations"`
}

// FetchBatch retrieves raw conversation records for ids, partitioned into
// batches. Rate-limited batches are retried with backoff and halved; other
// API failures propagate immediately. Returned records follow batch order,
// not the order of ids.
func (c *Client) FetchBatch(ctx context.Context, ids []string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = intelligentBatchSize(len(ids))
	}
	pending := partition(ids, batchSize)
	total := len(pending)

	var records []map[string]any
	for len(pending) > 0 {
		batch := pending[0]
		pending = pending[1:]

		c.logger.Info("fetching batch",
			slog.Int("size", len(batch)),
			slog.Int("remaining", len(pending)),
			slog.Int("planned", total))

		got, requeue, err := c.searchWithRetry(ctx, batch)
		if err != nil {
			return records, err
		}
		if len(requeue) > 0 {
			pending = append([][]string{requeue}, pending...)
		}
		records = append(records, got...)
	}
	return records, nil
}

// searchWithRetry runs the retry state machine for one batch: up to
// MaxRetries attempts, sleeping between rate-limited attempts and halving
// multi-id batches. The ids dropped by halving are returned for re-queueing.
func (c *Client) searchWithRetry(ctx context.Context, batch []string) (records []map[string]any, requeue []string, err error) {
	for attempt := 1; ; attempt++ {
		records, err = c.search(ctx, batch)
		if err == nil {
			if len(records) == 0 && len(batch) == 1 {
				return nil, requeue, &NotFoundError{ID: batch[0]}
			}
			return records, requeue, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return nil, requeue, err
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, requeue, err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = c.backoff(attempt)
		}
		c.logger.Warn("rate limited, backing off",
			slog.Duration("wait", wait),
			slog.Int("attempt", attempt),
			slog.Int("batch_size", len(batch)))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, requeue, err
		}

		if len(batch) > 1 {
			half := (len(batch) + 1) / 2
			dropped := append([]string(nil), batch[half:]...)
			requeue = append(dropped, requeue...)
			batch = batch[:half]
		}
	}
}

// backoff returns InitialBackoff * BackoffFactor^(attempt-1), capped.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * c.cfg.BackoffFactor)
		if wait >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	if wait > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return wait
}

func (c *Client) search(ctx context.Context, ids []string) ([]map[string]any, error) {
	body := searchRequest{
		Query: searchQuery{
			Operator: "OR",
			Value: []searchFilter{
				{Field: "id", Operator: "IN", Value: ids},
			},
		},
		DisplayAs:           "plaintext",
		SortField:           "created_at",
		SortOrder:           "desc",
		IncludeMessages:     true,
		IncludeMessageParts: true,
		Expand: []string{
			"conversation_message",
			"conversation_parts",
			"contact",
			"assignee",
		},
	}

	var parsed searchResponse
	if err := c.do(ctx, http.MethodPost, "/conversations/search", body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Conversations, nil
}

// FetchOne retrieves a single conversation: direct GET first, falling back
// to a single-id search (with the usual retry policy) when the GET misses
// or returns a record for a different id.
func (c *Client) FetchOne(ctx context.Context, id string) (map[string]any, error) {
	var record map[string]any
	err := c.do(ctx, http.MethodGet, "/conversations/"+id, nil, &record)
	if err == nil && idsEqual(record["id"], id) {
		return record, nil
	}
	if err != nil {
		var apiErr *APIError
		if !(errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound) {
			return nil, err
		}
		c.logger.Debug("direct fetch missed, falling back to search", slog.String("id", id))
	} else {
		c.logger.Debug("direct fetch returned mismatched record, falling back to search",
			slog.String("id", id), slog.Any("got", record["id"]))
	}

	records, _, err := c.searchWithRetry(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{ID: id}
	}
	return records[0], nil
}

// idsEqual compares ids as strings, tolerating numeric vs string typing.
func idsEqual(got any, want string) bool {
	switch v := got.(type) {
	case string:
		return v == want
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64) == want
	case json.Number:
		return v.String() == want
	default:
		return false
	}
}

// do issues one request and decodes the response into out. Pacing goes
// through the shared limiter so bursts stay inside the remote window.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Intercom-Version", c.cfg.APIVersion)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body failed", slog.Any("error", err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(resp, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// responseError maps a non-success response onto the error taxonomy.
func (c *Client) responseError(resp *http.Response, body []byte) error {
	message := extractMessage(body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}
	default:
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return &APIError{Status: resp.StatusCode, Message: message}
	}
}

// extractMessage pulls the human-readable message out of an Intercom error
// body, which is either {"message": ...} or {"errors": [{"message": ...}]}.
func extractMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if len(parsed.Errors) > 0 {
		return parsed.Errors[0].Message
	}
	return ""
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
