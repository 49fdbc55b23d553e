package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cidb_pages_fetched_total",
	Help: "Total collection pages fetched during pagination traversal",
})

// page is one response unit of a paginated collection listing. Items uses a
// pointer so a page with no _items field can be told apart from a page with an
// empty one.
type page struct {
	Items *[]Entity `json:"_items"`
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Meta struct {
		Total *int `json:"total"`
	} `json:"_meta"`
}

// ListAll returns all items of the collection at endpoint, following the
// next-link chain in page order. Traversal stops silently on a page with no
// items field (the store reports malformed or missing pages this way), on an
// empty page, or when the page carries no next link. The MaxPages cap bounds
// traversal in case the server returns a cyclic link chain.
func (c *Client) ListAll(ctx context.Context, endpoint string) ([]Entity, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	return c.iterPages(ctx, endpoint)
}

// FilterList returns all items of the collection at endpoint matching the
// where expression. The expression syntax is the store's own and is passed
// through uninterpreted.
func (c *Client) FilterList(ctx context.Context, endpoint, where string) ([]Entity, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if where == "" {
		return nil, ErrEmptyFilter
	}
	return c.iterPages(ctx, endpoint+"?where="+url.QueryEscape(where))
}

// Count returns the collection's metadata total. A response without a
// _meta.total field reports -1 rather than an error.
func (c *Client) Count(ctx context.Context, endpoint string) (int, error) {
	resp, err := c.Get(ctx, endpoint, true)
	if err != nil {
		return 0, err
	}

	var p page
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return 0, fmt.Errorf("decode collection metadata from %s: %w", resp.URL, err)
	}
	if p.Meta.Total == nil {
		return -1, nil
	}
	return *p.Meta.Total, nil
}

// iterPages accumulates items by walking the next-link chain starting at
// startLink. Each next href may be relative and is resolved against the
// current link.
func (c *Client) iterPages(ctx context.Context, startLink string) ([]Entity, error) {
	var results []Entity

	nextLink := startLink
	for i := 0; i < c.config.MaxPages; i++ {
		resp, err := c.Get(ctx, nextLink, true)
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			return nil, &StatusError{URL: resp.URL, StatusCode: resp.StatusCode}
		}
		apiPagesFetchedTotal.Inc()

		var p page
		if err := json.Unmarshal(resp.Body, &p); err != nil {
			return nil, fmt.Errorf("decode page from %s: %w", resp.URL, err)
		}

		if p.Items == nil {
			// The store returns page documents without _items for
			// out-of-range pages; stop with what we have.
			c.logger.Debug().Str("link", nextLink).Msg("Page has no items field, stopping traversal")
			return results, nil
		}
		if len(*p.Items) == 0 {
			return results, nil
		}
		results = append(results, *p.Items...)

		if p.Links.Next.Href == "" {
			return results, nil
		}

		nextLink, err = resolveLink(nextLink, p.Links.Next.Href)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Warn().
		Str("start_link", startLink).
		Int("max_pages", c.config.MaxPages).
		Msg("Pagination iteration cap reached, returning accumulated items")

	return results, nil
}

// resolveLink resolves a possibly-relative next href against the current link.
func resolveLink(current, next string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse current page link %q: %w", current, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next page link %q: %w", next, err)
	}
	return base.ResolveReference(ref).String(), nil
}
