// Package pipeline runs one ingestion: fetch the listing index, snapshot
// it, collect every item reference, then normalize and upsert items in
// listing order with periodic commits.
//
// A run moves through
//
//	idle -> fetching_index -> paginating -> processing <-> committing -> done
//
// and ends in failed from any state on a run-level error: the index cannot
// be fetched, a storage backend is unavailable, or the context ends.
// Per-item problems (skips, normalization errors, detail fetch failures,
// rejected rows) are counted and never abort the run. Batches committed
// before a failure stay committed.
package pipeline
