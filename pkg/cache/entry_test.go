package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestEntry_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expired entry", now.Add(-time.Hour), true},
		{"valid entry", now.Add(time.Hour), false},
		{"expires exactly now", now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Expires: tt.expires}
			if got := e.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := (&Entry{Expires: now.Add(90 * time.Second)}).TTL(now); got != 90*time.Second {
		t.Errorf("TTL() = %v, want 90s", got)
	}
	if got := (&Entry{Expires: now.Add(-time.Minute)}).TTL(now); got != 0 {
		t.Errorf("TTL() of stale entry = %v, want 0", got)
	}
}

func TestEntry_Apply(t *testing.T) {
	lastMod := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		entry         *Entry
		wantNoneMatch string
		wantModSince  string
	}{
		{
			name:  "nil entry",
			entry: nil,
		},
		{
			name:  "no validators",
			entry: &Entry{Body: []byte(`{}`)},
		},
		{
			name:          "etag preferred",
			entry:         &Entry{ETag: `"abc"`, LastModified: lastMod},
			wantNoneMatch: `"abc"`,
		},
		{
			name:         "last-modified only",
			entry:        &Entry{LastModified: lastMod},
			wantModSince: "Sat, 04 May 2024 12:00:00 GMT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "https://www.swapi.tech/api/planets", nil)
			tt.entry.Apply(req)

			if got := req.Header.Get("If-None-Match"); got != tt.wantNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantNoneMatch)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantModSince {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantModSince)
			}
			if tt.entry.Conditional() != (tt.wantNoneMatch != "" || tt.wantModSince != "") {
				t.Error("Conditional() disagrees with headers added")
			}
		})
	}
}
