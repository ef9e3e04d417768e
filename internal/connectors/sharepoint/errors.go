package sharepoint

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrLibraryNotFound indicates the configured library is not a drive of the site.
var ErrLibraryNotFound = errors.New("sharepoint: document library not found")

// GraphError represents a non-2xx Microsoft Graph response.
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
	URL        string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("sharepoint: graph error %d %s: %s (URL: %s)", e.StatusCode, e.Code, e.Message, e.URL)
}

// Hint returns a remediation for authorization and lookup failures.
func (e *GraphError) Hint() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "Graph rejected the access token. Check SHAREPOINT_TENANT_ID, SHAREPOINT_CLIENT_ID and SHAREPOINT_CLIENT_SECRET."
	case http.StatusForbidden:
		return "The app registration needs the Sites.Read.All application permission with admin consent."
	case http.StatusNotFound:
		return "The site was not found. Use a Graph site id or 'contoso.sharepoint.com:/sites/name'."
	default:
		return ""
	}
}

// Fatal reports whether the failure will repeat for every file.
func (e *GraphError) Fatal() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// tokenError wraps a failed client credentials exchange.
type tokenError struct {
	err error
}

func (e *tokenError) Error() string { return fmt.Sprintf("sharepoint: acquire token: %v", e.err) }
func (e *tokenError) Unwrap() error { return e.err }

func (e *tokenError) Hint() string {
	return "The client credentials were rejected. Check the tenant id, client id and client secret."
}

// IsUnauthorized checks if the error indicates rejected credentials.
func IsUnauthorized(err error) bool {
	var te *tokenError
	if errors.As(err, &te) {
		return true
	}
	var ge *GraphError
	return errors.As(err, &ge) && ge.Fatal()
}
