// Package testutil provides an in-process fake of the remote listing API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ListingPath is the listing endpoint served by MockAPI.
const ListingPath = "/api/planets"

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Request is one request received by the mock.
type Request struct {
	Path   string
	Page   int
	At     time.Time
	Header http.Header
}

type failure struct {
	status    int
	remaining int // < 0 fails forever
}

// MockAPI is a configurable fake of a paginated planets API.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	pageSize       int
	planets        []map[string]any
	omitResults    map[int]bool
	omitProperties map[string]bool
	omitTotal      bool
	failures       map[string]*failure

	requests         []Request
	conditionalCount int
}

// NewMockAPI creates a mock serving total planets, ten per page. Planet 1 is
// Tatooine, the rest are named "Planet <uid>".
func NewMockAPI(total int) *MockAPI {
	m := &MockAPI{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pageSize:       10,
		omitResults:    make(map[int]bool),
		omitProperties: make(map[string]bool),
		failures:       make(map[string]*failure),
	}
	for i := 1; i <= total; i++ {
		name := fmt.Sprintf("Planet %d", i)
		if i == 1 {
			name = "Tatooine"
		}
		m.planets = append(m.planets, DefaultProperties(name))
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// DefaultProperties returns a complete property set for a planet.
func DefaultProperties(name string) map[string]any {
	return map[string]any{
		"name":            name,
		"rotation_period": "23",
		"orbital_period":  "304",
		"diameter":        "10465",
		"climate":         "arid",
		"gravity":         "1 standard",
		"terrain":         "desert",
		"surface_water":   "1",
		"population":      "200000",
		"created":         "2025-01-01T00:00:00.000Z",
		"edited":          "2025-01-01T00:00:00.000Z",
	}
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// ListingURL returns the listing endpoint URL.
func (m *MockAPI) ListingURL() string {
	return m.server.URL + ListingPath
}

// DetailURL returns the detail URL of the planet with the given uid.
func (m *MockAPI) DetailURL(uid int) string {
	return fmt.Sprintf("%s%s/%d", m.server.URL, ListingPath, uid)
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetPlanet replaces the properties of the planet with the given uid (1-based).
func (m *MockAPI) SetPlanet(uid int, props map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planets[uid-1] = props
}

// OmitResults makes the given listing page respond without a results field.
func (m *MockAPI) OmitResults(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitResults[page] = true
}

// OmitProperties makes the detail document of uid respond without properties.
func (m *MockAPI) OmitProperties(uid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitProperties[strconv.Itoa(uid)] = true
}

// OmitTotal makes listing pages respond without total_records.
func (m *MockAPI) OmitTotal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTotal = true
}

// FailPage makes the given listing page answer with status for the next
// times requests. A negative times fails forever.
func (m *MockAPI) FailPage(page, status, times int) {
	m.fail(pageKey(page), status, times)
}

// FailDetail makes the detail document of uid answer with status for the
// next times requests. A negative times fails forever.
func (m *MockAPI) FailDetail(uid, status, times int) {
	m.fail(fmt.Sprintf("%s/%d", ListingPath, uid), status, times)
}

func (m *MockAPI) fail(key string, status, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = &failure{status: status, remaining: times}
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Requests returns every request received so far, in arrival order.
func (m *MockAPI) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Request(nil), m.requests...)
}

// ListingRequests returns the requests made to the listing endpoint.
func (m *MockAPI) ListingRequests() []Request {
	var out []Request
	for _, r := range m.Requests() {
		if r.Path == ListingPath {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// ConditionalCount returns the number of conditional requests.
func (m *MockAPI) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	path := strings.TrimSuffix(r.URL.Path, "/")

	m.mu.Lock()
	m.requests = append(m.requests, Request{Path: path, Page: page, At: time.Now(), Header: r.Header.Clone()})
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}
	handler, custom := m.handlers[path]

	key := path
	if path == ListingPath {
		key = pageKey(page)
	}
	var status int
	if f, ok := m.failures[key]; ok && f.remaining != 0 {
		status = f.status
		if f.remaining > 0 {
			f.remaining--
		}
	}
	m.mu.Unlock()

	if custom {
		handler(w, r)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"%s"}`, http.StatusText(status))
		return
	}

	switch {
	case path == ListingPath:
		m.writeListing(w, page)
	case strings.HasPrefix(path, ListingPath+"/"):
		m.writeDetail(w, strings.TrimPrefix(path, ListingPath+"/"))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"not found"}`))
	}
}

func (m *MockAPI) writeListing(w http.ResponseWriter, page int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	total := len(m.planets)
	body := map[string]any{
		"message":     "ok",
		"total_pages": (total + m.pageSize - 1) / m.pageSize,
		"previous":    nil,
		"next":        nil,
	}
	if !m.omitTotal {
		body["total_records"] = total
	}
	if !m.omitResults[page] {
		results := []map[string]any{}
		for i := (page - 1) * m.pageSize; i < min(page*m.pageSize, total); i++ {
			uid := i + 1
			results = append(results, map[string]any{
				"uid":  strconv.Itoa(uid),
				"name": m.planets[i]["name"],
				"url":  m.DetailURL(uid),
			})
		}
		body["results"] = results
	}

	writeJSON(w, body)
}

func (m *MockAPI) writeDetail(w http.ResponseWriter, uid string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := strconv.Atoi(uid)
	if err != nil || n < 1 || n > len(m.planets) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"not found"}`))
		return
	}

	result := map[string]any{
		"description": "A planet.",
		"_id":         fmt.Sprintf("5f7254c11b7dfa00041c%04d", n),
		"uid":         uid,
		"__v":         0,
	}
	if !m.omitProperties[uid] {
		props := make(map[string]any, len(m.planets[n-1])+1)
		for k, v := range m.planets[n-1] {
			props[k] = v
		}
		props["url"] = m.DetailURL(n)
		result["properties"] = props
	}

	writeJSON(w, map[string]any{"message": "ok", "result": result})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", fmt.Sprintf(`"%d"`, time.Now().UnixNano()))
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func pageKey(page int) string {
	return fmt.Sprintf("%s?page=%d", ListingPath, page)
}
