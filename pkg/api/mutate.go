package api

import (
	"context"
	"net/http"
)

// The conditional write protocol is read-then-write, not atomic: the etag is
// fetched with a plain GET immediately before the write, so a concurrent
// writer between the two requests causes the server to reject the write with
// a version mismatch. The client never retries that case; callers observe the
// non-success response and must re-fetch if they want to retry.

// Patch applies partial updates to the entity at endpoint using the
// optimistic-concurrency protocol. Returns ErrMissingEtag when the prior GET
// yields no etag, so a stale or absent entity never receives an unconditioned
// write.
func (c *Client) Patch(ctx context.Context, endpoint string, updates Entity) (*Response, error) {
	etag, err := c.fetchEtag(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := c.doConditional(ctx, http.MethodPatch, endpoint, updates, etag)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		c.logHTTPError(resp)
	}
	return resp, nil
}

// Delete removes the entity at endpoint using the optimistic-concurrency
// protocol.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	etag, err := c.fetchEtag(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := c.doConditional(ctx, http.MethodDelete, endpoint, nil, etag)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		c.logHTTPError(resp)
	}
	return resp, nil
}

// Put replaces the entity at endpoint. With a non-empty etag the write is
// conditional (update-if-unchanged); with an empty etag the entity is created.
func (c *Client) Put(ctx context.Context, endpoint string, entity Entity, etag string) (*Response, error) {
	if entity == nil {
		return nil, ErrNilEntity
	}

	resp, err := c.doConditional(ctx, http.MethodPut, endpoint, entity, etag)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		c.logHTTPError(resp)
	}
	return resp, nil
}

// Upsert creates or replaces the entity at endpoint. An existing entity's
// etag is attached so a concurrent modification is rejected by the server; a
// missing entity is created without a condition.
func (c *Client) Upsert(ctx context.Context, endpoint string, entity Entity, name string) (*Response, error) {
	if entity == nil {
		return nil, ErrNilEntity
	}
	if name == "" {
		name = "entity"
	}

	c.logger.Debug().Str("endpoint", endpoint).Msgf("Trying to upsert %s", name)

	getResp, err := c.Get(ctx, endpoint, false)
	if err != nil {
		return nil, err
	}

	var etag string
	if getResp.OK() {
		etag, err = getResp.Etag()
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.Put(ctx, endpoint, entity, etag)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		c.logValidationReject(resp, name, entity)
	}
	return resp, nil
}

// Insert creates a new entity at the collection endpoint. A 422 rejection is
// logged with the entity payload for diagnosis and returned, not raised.
func (c *Client) Insert(ctx context.Context, endpoint string, entity Entity, name string) (*Response, error) {
	if entity == nil {
		return nil, ErrNilEntity
	}
	if name == "" {
		name = "entity"
	}

	c.logger.Debug().Str("endpoint", endpoint).Msgf("Trying to insert %s", name)

	resp, err := c.Post(ctx, endpoint, entity)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		c.logValidationReject(resp, name, entity)
	}
	return resp, nil
}

// fetchEtag reads the entity's current version tag immediately before a
// conditional write. The etag is never cached across calls.
func (c *Client) fetchEtag(ctx context.Context, endpoint string) (string, error) {
	resp, err := c.Get(ctx, endpoint, true)
	if err != nil {
		return "", err
	}
	return resp.Etag()
}

// doConditional sends a write carrying an If-Match header when an etag is
// present.
func (c *Client) doConditional(ctx context.Context, method, endpoint string, payload any, etag string) (*Response, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	return c.sendConditional(ctx, method, endpoint, body, etag)
}

func (c *Client) logValidationReject(resp *Response, name string, entity Entity) {
	apiValidationRejectsTotal.Inc()
	c.logger.Error().
		Str("url", resp.URL).
		Interface("entity", entity).
		Str("body", string(resp.Body)).
		Msgf("The %s failed remote validation", name)
}
