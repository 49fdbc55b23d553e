package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiBulkChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cidb_bulk_chunks_total",
	Help: "Total bulk insert chunks by outcome",
}, []string{"outcome"})

// BulkInsert creates the given entities at the collection endpoint in chunks
// so a large collection never exceeds the store's request size limit. Each
// chunk is posted independently: a chunk rejected by validation (422) is
// logged with its contents and processing of the remaining chunks continues.
// One response per chunk is returned, in order; callers aggregate chunk
// outcomes to decide overall success.
func (c *Client) BulkInsert(ctx context.Context, endpoint string, entities []Entity, pluralName string) ([]*Response, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if pluralName == "" {
		pluralName = "entities"
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no %s to bulk insert", ErrNilEntity, pluralName)
	}
	for _, e := range entities {
		if e == nil {
			return nil, fmt.Errorf("%w: all %s must be non-nil", ErrNilEntity, pluralName)
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("count", len(entities)).
		Msgf("Trying to bulk insert %s", pluralName)

	responses := make([]*Response, 0, (len(entities)+c.config.ChunkSize-1)/c.config.ChunkSize)
	for _, chunk := range chunks(entities, c.config.ChunkSize) {
		resp, err := c.Post(ctx, endpoint, chunk)
		if err != nil {
			return responses, err
		}
		if resp.StatusCode == http.StatusUnprocessableEntity {
			apiValidationRejectsTotal.Inc()
			apiBulkChunksTotal.WithLabelValues("rejected").Inc()
			c.logger.Error().
				Str("url", resp.URL).
				Interface("chunk", chunk).
				Str("body", string(resp.Body)).
				Msgf("A chunk of %s failed remote validation", pluralName)
		} else if resp.OK() {
			apiBulkChunksTotal.WithLabelValues("ok").Inc()
		} else {
			apiBulkChunksTotal.WithLabelValues("error").Inc()
		}
		responses = append(responses, resp)
	}

	return responses, nil
}

// AllOK reports whether every chunk response has a success status.
func AllOK(responses []*Response) bool {
	for _, resp := range responses {
		if !resp.OK() {
			return false
		}
	}
	return true
}

// chunks splits entities into successive size-bounded slices. The size is
// clamped to the collection length, which slicing implies anyway.
func chunks(entities []Entity, size int) [][]Entity {
	if size > len(entities) {
		size = len(entities)
	}
	var out [][]Entity
	for i := 0; i < len(entities); i += size {
		end := i + size
		if end > len(entities) {
			end = len(entities)
		}
		out = append(out, entities[i:end])
	}
	return out
}
