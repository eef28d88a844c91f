package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "swapi"

// CacheKey represents a unique identifier for a cached document.
type CacheKey struct {
	// Host is the remote API host (e.g., "www.swapi.tech")
	Host string

	// Endpoint is the request path (e.g., "/api/planets/1")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"page": "2"})
	QueryParams url.Values
}

// KeyForURL builds the cache key for a request URL.
func KeyForURL(u *url.URL) CacheKey {
	return CacheKey{
		Host:        strings.ToLower(u.Host),
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: swapi:host:endpoint:query1=val1:query2=val2
//
// Example:
//
//	swapi:www.swapi.tech:api/planets:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Host != "" {
		parts = append(parts, k.Host)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add query params (sorted for determinism)
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
