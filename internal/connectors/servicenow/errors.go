package servicenow

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError represents a failed Table API request.
type APIError struct {
	StatusCode int
	Table      string
	Message    string

	// RetryAfter is parsed from the Retry-After header when present.
	RetryAfter time.Duration

	// LoginPage is set when the instance answered with HTML instead of
	// JSON, which is how rejected credentials often surface.
	LoginPage bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("servicenow: table %s: API error %d", e.Table, e.StatusCode)
	}
	return fmt.Sprintf("servicenow: table %s: API error %d: %s", e.Table, e.StatusCode, e.Message)
}

// Hint returns a remediation for the common failures.
func (e *APIError) Hint() string {
	switch {
	case e.LoginPage:
		return "The instance returned a login page instead of JSON. Check the credentials, that the account is active, and the instance URL."
	case e.StatusCode == http.StatusUnauthorized:
		return "Authentication failed. Verify SERVICENOW_USERNAME and SERVICENOW_PASSWORD."
	case e.StatusCode == http.StatusForbidden:
		return "Access forbidden. The user needs the 'rest_api_explorer' role for API access."
	case e.StatusCode == http.StatusNotFound:
		return fmt.Sprintf("Table '%s' was not found or the user cannot read it.", e.Table)
	default:
		return ""
	}
}

// Fatal reports whether the failure will repeat for every table.
func (e *APIError) Fatal() bool {
	return e.LoginPage || e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsUnauthorized checks if the error indicates rejected credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Fatal()
}

// IsNotFound checks if the error indicates a missing table.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
