// Package pagination walks page-numbered listing endpoints.
//
// The remote API reports total_records on every listing page and serves a
// fixed number of items per page. The paginator fetches page 1 to learn the
// total, computes ceil(total_records / page_size) pages and requests each of
// them exactly once.
//
// Example usage:
//
//	p := pagination.New(fetchClient, pagination.DefaultConfig(), logger)
//	for ref, err := range p.Paginate(ctx, "https://www.swapi.tech/api/planets") {
//		if err != nil {
//			// *PageError for a bad page, anything else for the index
//			continue
//		}
//		fmt.Println(ref.Name, ref.URL)
//	}
//
// The sequence is not restartable: ranging over it again re-issues every
// request. Items are yielded in listing order even when pages are
// prefetched concurrently.
package pagination
