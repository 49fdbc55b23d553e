package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached CI API response.
type Key struct {
	// Endpoint is the CI API path (e.g., "/repositories/owner/repo/builds").
	Endpoint string

	// QueryParams are the request's query parameters.
	QueryParams url.Values
}

// String generates a deterministic Redis key.
// Format: cidb:endpoint:query1=val1:query2=val2
func (k Key) String() string {
	parts := []string{"cidb"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
