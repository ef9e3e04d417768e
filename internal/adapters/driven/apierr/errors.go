// Package apierr provides error types shared by the HTTP provider adapters.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var (
	_ driven.TransientError = (*APIError)(nil)
	_ driven.TransientError = (*TransportError)(nil)
)

// maxMessageLen bounds provider messages copied into errors.
const maxMessageLen = 300

// APIError represents a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string

	// RetryAfter is parsed from the Retry-After header when present.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Transient reports whether another provider might succeed: credential,
// throttling, timeout and server-side failures qualify. Client errors such
// as malformed input do not.
func (e *APIError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusForbidden,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// TransportError wraps a failure to reach the provider at all.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transient is always true for connectivity failures.
func (e *TransportError) Transient() bool { return true }

// FromResponse builds an APIError from a response and its already-read body.
func FromResponse(provider string, resp *http.Response, body []byte) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    extractMessage(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Transport wraps a client.Do failure. Cancellation by the caller is
// returned unchanged so it is never mistaken for a provider outage.
func Transport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Provider: provider, Err: err}
}

// extractMessage pulls the provider's error message out of common JSON shapes:
// {"error":{"message":"..."}} and {"error":"..."}.
func extractMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return truncate(nested.Error.Message)
	}

	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return truncate(flat.Error)
	}

	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "..."
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// RetryAfter returns the provider's retry hint, or 0.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// ChatError maps a provider failure onto the chat error categories.
func ChatError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrChatAuth), errors.Is(err, domain.ErrChatRateLimit), errors.Is(err, domain.ErrChatProvider):
		return err
	case IsUnauthorized(err):
		return fmt.Errorf("%w: %w", domain.ErrChatAuth, err)
	case IsRateLimited(err):
		return fmt.Errorf("%w: %w", domain.ErrChatRateLimit, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrChatProvider, err)
	}
}
