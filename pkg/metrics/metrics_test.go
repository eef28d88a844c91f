package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	// registers the request and retry metrics
	_ "github.com/Sternrassler/swapi-ingest/pkg/client"
	_ "github.com/Sternrassler/swapi-ingest/pkg/ratelimit"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"swapi_retry_exhausted_total",
		"swapi_request_duration_seconds",
		"swapi_rate_limit_acquired_total",
		"swapi_rate_limit_wait_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %s in exposition", name)
		}
	}
}
