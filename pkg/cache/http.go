package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL applies when a response carries no freshness information.
// The public SWAPI mirrors send none.
const DefaultTTL = 5 * time.Minute

// Freshness returns when a response with header h stops being fresh.
// Cache-Control max-age wins over Expires; no-store and no-cache make the
// response stale immediately. Without either header now+fallback is used.
func Freshness(h http.Header, now time.Time, fallback time.Duration) time.Time {
	if cc := h.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(strings.ToLower(directive)), "=")
			switch name {
			case "no-store", "no-cache":
				return now
			case "max-age":
				if secs, err := strconv.Atoi(strings.Trim(value, `"`)); err == nil {
					return now.Add(time.Duration(max(secs, 0)) * time.Second)
				}
			}
		}
	}

	if raw := h.Get("Expires"); raw != "" {
		expires, err := http.ParseTime(raw)
		if err != nil {
			// An invalid Expires means already expired
			return now
		}
		if expires.Before(now) {
			return now
		}
		return expires
	}

	return now.Add(fallback)
}

// NewEntry builds the entry for a 200 response whose body has already been read.
func NewEntry(rawURL string, h http.Header, body []byte, now time.Time, fallback time.Duration) *Entry {
	entry := &Entry{
		URL:      rawURL,
		Body:     body,
		ETag:     h.Get("ETag"),
		Expires:  Freshness(h, now, fallback),
		CachedAt: now,
	}
	if raw := h.Get("Last-Modified"); raw != "" {
		if lastMod, err := http.ParseTime(raw); err == nil {
			entry.LastModified = lastMod
		}
	}
	return entry
}
