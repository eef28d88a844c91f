// Package cache provides an optional Redis-backed document cache with
// ETag support for conditional requests.
//
// The cache never suppresses a request: a cached entry only turns the next
// GET for the same URL into a conditional one (If-None-Match or
// If-Modified-Since). A 304 answer is served from the cached body and
// extends the entry's lifetime.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, cache.WithMaxTTL(30*time.Minute))
//
//	u, _ := url.Parse("https://www.swapi.tech/api/planets/1")
//	key := cache.KeyForURL(u)
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// plain request, then manager.Put(ctx, key, manager.Entry(u.String(), resp.Header, body))
//	}
//	entry.Apply(req)
//
// # Metrics
//
//   - swapi_cache_lookups_total{result="hit|miss|expired"}
//   - swapi_cache_revalidations_total
//   - swapi_cache_failures_total{op="get|set|delete"}
package cache
