package ciapi

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested CI API resource does not exist.
// Retrying will not help.
var ErrNotFound = errors.New("resource not found")

// StatusError reports a CI API response with an unexpected HTTP status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ci api returned status %d for %s", e.StatusCode, e.Endpoint)
}
