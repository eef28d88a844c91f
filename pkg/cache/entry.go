package cache

import (
	"net/http"
	"time"
)

// Entry is a cached JSON document together with the validators needed to
// revalidate it.
type Entry struct {
	URL  string `json:"url"`
	Body []byte `json:"body"`

	// ETag and LastModified are echoed back as If-None-Match and
	// If-Modified-Since. ETag wins when both are present.
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`

	Expires  time.Time `json:"expires"`
	CachedAt time.Time `json:"cached_at"`
}

// Expired reports whether the entry is stale at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the time left until expiry at now, never negative.
func (e *Entry) TTL(now time.Time) time.Duration {
	return max(e.Expires.Sub(now), 0)
}

// Conditional reports whether the entry carries a validator.
func (e *Entry) Conditional() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}

// Apply turns req into a conditional request for e. It is a no-op for
// entries without validators.
func (e *Entry) Apply(req *http.Request) {
	if !e.Conditional() || req == nil {
		return
	}
	if e.ETag != "" {
		req.Header.Set("If-None-Match", e.ETag)
		return
	}
	req.Header.Set("If-Modified-Since", e.LastModified.UTC().Format(http.TimeFormat))
}
