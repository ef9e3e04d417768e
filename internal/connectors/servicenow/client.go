package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the number of retries for throttled or unavailable responses.
	MaxRetries = 3

	// RetryDelay is the initial delay between retries.
	RetryDelay = time.Second

	// RequestRate throttles Table API calls per second.
	RequestRate = 5

	maxResponseBytes = 64 << 20
)

// Record is one Table API row.
type Record map[string]any

// String returns the field value as a string. Reference fields returned as
// {"value": ..., "display_value": ...} objects yield their display value.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, k := range []string{"display_value", "value"} {
			if s, ok := v[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Client calls the ServiceNow Table API with basic authentication.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
}

// NewClient creates a client for cfg. A nil httpClient uses a client with
// DefaultTimeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(RequestRate), 1),
		retryDelay: RetryDelay,
	}
}

// ListRecords returns up to limit records from table.
func (c *Client) ListRecords(ctx context.Context, table string, limit int) ([]Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "servicenow.list_records")
	defer span.End()
	span.SetAttributes(attribute.String("servicenow.table", table), attribute.Int("servicenow.limit", limit))

	q := url.Values{}
	q.Set("sysparm_limit", strconv.Itoa(limit))
	q.Set("sysparm_exclude_reference_link", "true")
	endpoint := c.cfg.BaseURL + "/api/now/table/" + url.PathEscape(table) + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt, lastErr)); err != nil {
				return nil, err
			}
		}

		records, err := c.get(ctx, table, endpoint)
		if err == nil {
			span.SetAttributes(attribute.Int("servicenow.records", len(records)))
			return records, nil
		}
		if !retryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		lastErr = err
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, table, endpoint string) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("servicenow: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("servicenow: connect to %s: %w", c.cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("servicenow: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Table:      table,
			Message:    extractMessage(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if isHTML(resp.Header.Get("Content-Type"), body) {
		return nil, &APIError{StatusCode: resp.StatusCode, Table: table, Message: "received HTML instead of JSON", LoginPage: true}
	}

	var payload struct {
		Result []Record `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("servicenow: decode table %s: %w", table, err)
	}
	return payload.Result, nil
}

func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return c.retryDelay * time.Duration(1<<(attempt-1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isHTML(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "text/html" {
		return true
	}
	trimmed := strings.TrimSpace(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(trimmed, "<")
}

// extractMessage reads {"error":{"message":...,"detail":...}} bodies.
func extractMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		if payload.Error.Detail != "" {
			return payload.Error.Message + ": " + payload.Error.Detail
		}
		return payload.Error.Message
	}
	return ""
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
