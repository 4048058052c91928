// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so that every endpoint returns the same error envelope: a JSON
// object with an "error" string, plus "details" for validation failures.
package httputil
