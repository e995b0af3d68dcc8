// Package testutil provides testing utilities for the listings harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// MockImmo is a configurable mock listings API server. It understands the
// /immo pagination protocol (from/size plus a JSON-encoded geoSearches
// parameter) and serves per-city page fixtures.
type MockImmo struct {
	server *httptest.Server

	mu        sync.RWMutex
	cityPages map[string][]string // city -> JSON body per page
	handler   func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount     int
	ConditionalCount int
	LastQuery        url.Values
}

// NewMockImmo creates a new mock listings API server.
func NewMockImmo() *MockImmo {
	mock := &MockImmo{
		cityPages: make(map[string][]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		if r.Header.Get("If-None-Match") != "" {
			mock.ConditionalCount++
		}
		handler := mock.handler
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockImmo) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockImmo) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockImmo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastQuery = nil
}

// SetHandler overrides the default handler entirely.
func (m *MockImmo) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// SetCityPages configures the page bodies served for one city, in order.
// Requests past the last page get an empty content list.
func (m *MockImmo) SetCityPages(city string, pages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cityPages[city] = pages
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockImmo) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockImmo) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// defaultHandler serves the configured per-city pages.
func (m *MockImmo) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	q := r.URL.Query()
	city := GeoQueryOf(q.Get("geoSearches"))
	from, _ := strconv.Atoi(q.Get("from"))
	size, _ := strconv.Atoi(q.Get("size"))

	pageIndex := 0
	if size > 0 {
		pageIndex = from / size
	}

	m.mu.RLock()
	pages := m.cityPages[city]
	m.mu.RUnlock()

	etag := fmt.Sprintf(`"%s-page-%d"`, city, pageIndex)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)

	if pageIndex >= len(pages) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[],"total":0}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(pages[pageIndex]))
}

// GeoQueryOf extracts the geoSearchQuery from an encoded geoSearches value.
func GeoQueryOf(geoSearches string) string {
	var geo []struct {
		GeoSearchQuery string `json:"geoSearchQuery"`
	}
	if err := json.Unmarshal([]byte(geoSearches), &geo); err != nil || len(geo) == 0 {
		return ""
	}
	return geo[0].GeoSearchQuery
}

// PageBody builds a JSON page body with listings under the given key.
func PageBody(itemsKey string, ids ...string) string {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{
			"id":    id,
			"title": "Listing " + id,
		})
	}

	body, _ := json.Marshal(map[string]any{
		itemsKey: items,
		"total":  len(ids),
	})
	return string(body)
}

// IDRange returns string ids for the half-open range [from, from+n).
func IDRange(from, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, strconv.Itoa(from+i))
	}
	return ids
}
