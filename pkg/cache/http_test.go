package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestFreshness(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)

	tests := []struct {
		name   string
		header http.Header
		want   time.Time
	}{
		{
			name:   "no headers uses fallback",
			header: http.Header{},
			want:   now.Add(DefaultTTL),
		},
		{
			name:   "expires",
			header: http.Header{"Expires": {expires.Format(http.TimeFormat)}},
			want:   expires,
		},
		{
			name: "max-age wins over expires",
			header: http.Header{
				"Cache-Control": {"public, max-age=60"},
				"Expires":       {expires.Format(http.TimeFormat)},
			},
			want: now.Add(time.Minute),
		},
		{
			name:   "no-store is stale",
			header: http.Header{"Cache-Control": {"no-store"}},
			want:   now,
		},
		{
			name:   "unparseable expires is stale",
			header: http.Header{"Expires": {"0"}},
			want:   now,
		},
		{
			name:   "past expires is clamped to now",
			header: http.Header{"Expires": {now.Add(-time.Hour).Format(http.TimeFormat)}},
			want:   now,
		},
		{
			name:   "malformed max-age falls through to fallback",
			header: http.Header{"Cache-Control": {"max-age=soon"}},
			want:   now.Add(DefaultTTL),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Freshness(tt.header, now, DefaultTTL)
			if !got.Equal(tt.want) {
				t.Errorf("Freshness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lastMod := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	header := http.Header{
		"Etag":          {`W/"5f-abc"`},
		"Cache-Control": {"max-age=120"},
		"Last-Modified": {lastMod.Format(http.TimeFormat)},
	}
	body := []byte(`{"message":"ok"}`)

	entry := NewEntry("https://www.swapi.tech/api/planets/1", header, body, now, DefaultTTL)

	if string(entry.Body) != string(body) {
		t.Errorf("Body = %s, want %s", entry.Body, body)
	}
	if entry.URL != "https://www.swapi.tech/api/planets/1" {
		t.Errorf("URL = %q", entry.URL)
	}
	if entry.ETag != `W/"5f-abc"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if !entry.Expires.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("Expires = %v", entry.Expires)
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
	if !entry.CachedAt.Equal(now) {
		t.Errorf("CachedAt = %v, want %v", entry.CachedAt, now)
	}
}
