package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swapi_pages_fetched_total",
	Help: "Listing pages fetched by outcome",
}, []string{"outcome"})

// ErrMissingTotal is returned when the index page carries no usable total_records.
var ErrMissingTotal = errors.New("listing has no total_records")

// Fetcher retrieves one JSON document. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (client.Document, error)
}

// Config holds paginator configuration.
type Config struct {
	// PageSize is the number of items the remote API serves per page.
	PageSize int

	// Concurrency is the number of pages fetched ahead of the consumer.
	// 1 walks pages strictly one after another.
	Concurrency int
}

// DefaultConfig returns the observed remote contract: 10 items per page,
// fetched sequentially.
func DefaultConfig() Config {
	return Config{
		PageSize:    10,
		Concurrency: 1,
	}
}

// ItemRef points at one listed item.
type ItemRef struct {
	UID  string
	Name string
	URL  string

	// Page and Position locate the item in the listing (both 1-based).
	Page     int
	Position int
}

// Index is the first listing page together with the page plan derived from it.
type Index struct {
	BaseURL      string
	TotalRecords int
	PageSize     int
	Pages        int

	// Document is the raw first page as returned by the API.
	Document client.Document

	// Items are the references found on page 1.
	Items []ItemRef
}

// PageError reports a listing page that could not be fetched.
type PageError struct {
	Page int
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// Paginator turns a listing endpoint into a lazy sequence of item references.
type Paginator struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a paginator.
func New(fetcher Fetcher, config Config, logger zerolog.Logger) *Paginator {
	if config.PageSize <= 0 {
		config.PageSize = 10
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// PageCount returns ceil(total / pageSize).
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PageURL returns baseURL with its page query parameter set to page.
// Other query parameters are preserved.
func PageURL(baseURL string, page int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchIndex fetches page 1 and derives the page plan from its total_records.
func (p *Paginator) FetchIndex(ctx context.Context, baseURL string) (*Index, error) {
	first, err := PageURL(baseURL, 1)
	if err != nil {
		return nil, err
	}

	doc, err := p.fetcher.Fetch(ctx, first)
	if err != nil {
		pagesFetched.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch index: %w", err)
	}

	total, ok := intValue(doc["total_records"])
	if !ok {
		pagesFetched.WithLabelValues("error").Inc()
		return nil, &client.FatalError{
			URL:        first,
			StatusCode: 200,
			ErrorClass: client.ErrorClassDecode,
			Err:        ErrMissingTotal,
		}
	}

	idx := &Index{
		BaseURL:      baseURL,
		TotalRecords: total,
		PageSize:     p.config.PageSize,
		Pages:        PageCount(total, p.config.PageSize),
		Document:     doc,
		Items:        p.itemsFromPage(doc, 1, first),
	}
	if idx.Pages == 0 {
		// An empty listing still had its first page requested
		idx.Pages = 1
	}
	p.countPage(idx.Items, doc)

	p.logger.Info().
		Str("url", baseURL).
		Int("total_records", total).
		Int("pages", idx.Pages).
		Msg("Listing index fetched")

	return idx, nil
}

// Items yields every item reference of the listing described by idx: the
// page 1 items already in idx, then pages 2..idx.Pages. A page that cannot
// be fetched is yielded as a *PageError and traversal moves on.
func (p *Paginator) Items(ctx context.Context, idx *Index) iter.Seq2[ItemRef, error] {
	return func(yield func(ItemRef, error) bool) {
		for _, ref := range idx.Items {
			if !yield(ref, nil) {
				return
			}
		}
		if idx.Pages < 2 {
			return
		}

		for res := range p.fetchPages(ctx, idx.BaseURL, idx.Pages) {
			if res.err != nil {
				if !yield(ItemRef{Page: res.page}, res.err) {
					return
				}
				continue
			}
			for _, ref := range res.items {
				if !yield(ref, nil) {
					return
				}
			}
		}
	}
}

// Paginate fetches the index of baseURL and yields all of its items.
// An index failure is yielded once as a non-PageError error and ends the sequence.
func (p *Paginator) Paginate(ctx context.Context, baseURL string) iter.Seq2[ItemRef, error] {
	return func(yield func(ItemRef, error) bool) {
		idx, err := p.FetchIndex(ctx, baseURL)
		if err != nil {
			yield(ItemRef{}, err)
			return
		}
		for ref, err := range p.Items(ctx, idx) {
			if !yield(ref, err) {
				return
			}
		}
	}
}

type pageResult struct {
	page  int
	items []ItemRef
	err   error
}

// fetchPages fetches pages 2..pages with up to Concurrency requests in
// flight and delivers them in page order.
func (p *Paginator) fetchPages(ctx context.Context, baseURL string, pages int) iter.Seq[pageResult] {
	if p.config.Concurrency == 1 {
		return func(yield func(pageResult) bool) {
			for page := 2; page <= pages; page++ {
				if !yield(p.fetchPage(ctx, baseURL, page)) {
					return
				}
			}
		}
	}

	return func(yield func(pageResult) bool) {
		start := time.Now()

		var wg sync.WaitGroup
		defer wg.Wait()

		// Stops in-flight workers before waiting on them
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// One buffered slot per page keeps delivery ordered while workers
		// run ahead of the consumer.
		slots := make([]chan pageResult, pages+1)
		for page := 2; page <= pages; page++ {
			slots[page] = make(chan pageResult, 1)
		}

		pageQueue := make(chan int)
		go func() {
			defer close(pageQueue)
			for page := 2; page <= pages; page++ {
				select {
				case pageQueue <- page:
				case <-ctx.Done():
					return
				}
			}
		}()

		for i := 0; i < min(p.config.Concurrency, pages-1); i++ {
			wg.Add(1)
			go p.worker(ctx, baseURL, pageQueue, slots, &wg, i)
		}

		for page := 2; page <= pages; page++ {
			var res pageResult
			select {
			case res = <-slots[page]:
			case <-ctx.Done():
				return
			}
			if !yield(res) {
				return
			}
			if page%50 == 0 {
				p.logger.Info().
					Int("fetched", page).
					Int("total", pages).
					Float64("progress_pct", float64(page)/float64(pages)*100).
					Msg("Pagination progress")
			}
		}

		p.logger.Debug().
			Str("url", baseURL).
			Int("pages", pages).
			Dur("duration", time.Since(start)).
			Msg("Pagination complete")
	}
}

// worker processes pages from the queue
func (p *Paginator) worker(ctx context.Context, baseURL string, pageQueue <-chan int, slots []chan pageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for page := range pageQueue {
		slots[page] <- p.fetchPage(ctx, baseURL, page)
	}

	p.logger.Trace().Int("worker_id", workerID).Msg("Page worker done")
}

func (p *Paginator) fetchPage(ctx context.Context, baseURL string, page int) pageResult {
	pageURL, err := PageURL(baseURL, page)
	if err != nil {
		return pageResult{page: page, err: &PageError{Page: page, URL: baseURL, Err: err}}
	}

	doc, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		pagesFetched.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Int("page", page).Str("url", pageURL).Msg("Page fetch failed")
		return pageResult{page: page, err: &PageError{Page: page, URL: pageURL, Err: err}}
	}

	items := p.itemsFromPage(doc, page, pageURL)
	p.countPage(items, doc)
	return pageResult{page: page, items: items}
}

func (p *Paginator) countPage(items []ItemRef, doc client.Document) {
	if _, ok := doc["results"]; !ok {
		pagesFetched.WithLabelValues("empty").Inc()
		return
	}
	pagesFetched.WithLabelValues("ok").Inc()
}

// itemsFromPage extracts item references from a listing page. A missing or
// malformed results field contributes no items.
func (p *Paginator) itemsFromPage(doc client.Document, page int, pageURL string) []ItemRef {
	raw, ok := doc["results"]
	if !ok {
		p.logger.Warn().Int("page", page).Str("url", pageURL).Msg("Page has no results, treating as empty")
		return nil
	}
	results, ok := raw.([]any)
	if !ok {
		p.logger.Warn().Int("page", page).Str("url", pageURL).Msg("Page results is not a list, treating as empty")
		return nil
	}

	items := make([]ItemRef, 0, len(results))
	for i, r := range results {
		obj, ok := r.(map[string]any)
		if !ok {
			p.logger.Warn().Int("page", page).Int("position", i+1).Msg("Listing entry is not an object")
			continue
		}
		items = append(items, ItemRef{
			UID:      stringValue(obj["uid"]),
			Name:     stringValue(obj["name"]),
			URL:      stringValue(obj["url"]),
			Page:     page,
			Position: i + 1,
		})
	}
	return items
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}
