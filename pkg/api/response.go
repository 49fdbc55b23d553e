package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Entity is one resource instance as stored by the metadata store. Field names
// and values are opaque to the client; persisted entities carry a server
// assigned "_etag" version field.
type Entity = map[string]any

// Response is the outcome of a single request against the metadata store.
// HTTP-level failures are reported through the status code, not through Go
// errors; callers are expected to inspect OK().
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// OK reports whether the response has a 2xx status code.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NotFound reports whether the response has a 404 status code.
func (r *Response) NotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.URL, err)
	}
	return nil
}

// Entity decodes the response body as a single entity.
func (r *Response) Entity() (Entity, error) {
	var entity Entity
	if err := r.JSON(&entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Etag extracts the server-assigned version tag from the response body's
// "_etag" field. Returns ErrMissingEtag when the body is not a valid entity
// document or carries no etag.
func (r *Response) Etag() (string, error) {
	var entity Entity
	if err := json.Unmarshal(r.Body, &entity); err != nil {
		return "", fmt.Errorf("%w: %s returned a malformed entity body", ErrMissingEtag, r.URL)
	}
	etag, ok := entity["_etag"].(string)
	if !ok || etag == "" {
		return "", fmt.Errorf("%w: entity at %s has no _etag field", ErrMissingEtag, r.URL)
	}
	return etag, nil
}
