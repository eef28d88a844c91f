package pipeline

import (
	"context"
	"fmt"

	"github.com/Sternrassler/swapi-ingest/pkg/snapshot"
)

// Snapshot fetches url once (rate-limited, with retries) and stores the
// raw document as a snapshot without touching the store. An empty url
// snapshots the configured listing endpoint.
func (o *Orchestrator) Snapshot(ctx context.Context, url string) (*snapshot.Snapshot, error) {
	if url == "" {
		url = o.config.BaseURL
	}
	logger := o.logger.With().Str("url", url).Logger()

	fetcher, err := o.newClient(logger)
	if err != nil {
		return nil, fmt.Errorf("create fetch client: %w", err)
	}
	defer fetcher.Close()

	doc, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	snap, err := o.snapshots.Write(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}
