package api

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrEmptyToken is returned when a client is constructed without a token.
	ErrEmptyToken = errors.New("authentication token must not be empty")

	// ErrEmptyEndpoint is returned when an operation is given an empty endpoint.
	ErrEmptyEndpoint = errors.New("endpoint must not be empty")

	// ErrNilEntity is returned when an insert or upsert is given a nil entity.
	ErrNilEntity = errors.New("entity must not be nil")

	// ErrEmptyFilter is returned when a filter operation is given an empty expression.
	ErrEmptyFilter = errors.New("filter expression must not be empty")

	// ErrMissingEtag is returned when a conditional write cannot obtain the
	// current etag from the entity's endpoint.
	ErrMissingEtag = errors.New("missing etag")
)

// StatusError reports a non-success HTTP status where the operation cannot
// continue, such as a failed page fetch during pagination.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("request for %s returned status %d", e.URL, e.StatusCode)
}
