package metabase

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned on the first call when the base URL or
	// credentials are missing.
	ErrNotConfigured = errors.New("metabase: base URL, username and password must be configured")

	// ErrUnauthorized is returned when a request is still rejected after one
	// re-authentication.
	ErrUnauthorized = errors.New("metabase: request unauthorized after session refresh")
)

// APIError is a non-2xx response from the BI tool. Body holds the response
// text verbatim.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metabase %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// QueryError is a dataset query the BI tool accepted but failed to run.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return "metabase query failed: " + e.Message
}
