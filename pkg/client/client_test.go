package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/Rekoko/immo-harvester/pkg/cache"
	"github.com/Rekoko/immo-harvester/pkg/query"
)

// testConfig returns a config pointed at a test server with fast backoff.
func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.BaseDelay = 1 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	return cfg
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig(),
			expectError: false,
		},
		{
			name: "empty base URL",
			config: Config{
				MaxRetries: 3,
				BaseDelay:  time.Second,
			},
			expectError: true,
			errorMsg:    "base URL is required",
		},
		{
			name: "negative max retries",
			config: Config{
				BaseURL:    "https://api.thinkimmo.com",
				MaxRetries: -1,
				BaseDelay:  time.Second,
			},
			expectError: true,
			errorMsg:    "max_retries must be >= 0 (got -1)",
		},
		{
			name: "zero base delay",
			config: Config{
				BaseURL:    "https://api.thinkimmo.com",
				MaxRetries: 3,
			},
			expectError: true,
			errorMsg:    "base_delay must be > 0 (got 0s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if c == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL == "" {
		t.Error("BaseURL should be set")
	}
	if cfg.MaxRetries <= 0 {
		t.Errorf("MaxRetries = %d, should be > 0", cfg.MaxRetries)
	}
	if cfg.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", cfg.MaxBackoff)
	}
	if !cfg.UseCache {
		t.Error("UseCache should default to true")
	}
}

func TestFetch_CacheHitAvoidsNetwork(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[{"id":"1"}],"total":1}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Revalidate = false
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	q := query.Default().WithGeo("Landshut", query.GeoTown, "Bayern")

	first, err := c.Fetch(ctx, q, nil)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	if requestCount != 1 {
		t.Fatalf("Request count after first fetch = %d, want 1", requestCount)
	}

	second, err := c.Fetch(ctx, q, nil)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if requestCount != 1 {
		t.Errorf("Request count after cached fetch = %d, want 1 (no network I/O)", requestCount)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Cached payload differs from the original")
	}
}

func TestFetch_NotModifiedRevalidation(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[{"id":"1"},{"id":"2"}],"total":2}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	q := query.Default().WithGeo("Landshut", query.GeoTown, "Bayern")
	key := cache.Fingerprint(server.URL+"/immo", q.Params())

	first, err := c.Fetch(ctx, q, nil)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	entryAfterFirst, err := c.Store().Get(ctx, key)
	if err != nil {
		t.Fatalf("Cache entry missing after first fetch: %v", err)
	}
	expiresAfterFirst := entryAfterFirst.Expires

	time.Sleep(10 * time.Millisecond)

	second, err := c.Fetch(ctx, q, nil)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if requestCount != 2 {
		t.Errorf("Request count = %d, want 2 (revalidation hits the network)", requestCount)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("304 revalidation changed the payload")
	}

	entryAfterSecond, err := c.Store().Get(ctx, key)
	if err != nil {
		t.Fatalf("Cache entry missing after revalidation: %v", err)
	}
	if !entryAfterSecond.Expires.After(expiresAfterFirst) {
		t.Errorf("Expiry not extended: %v -> %v", expiresAfterFirst, entryAfterSecond.Expires)
	}
}

func TestFetch_RetryOnServerError(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[],"total":0}`))
	}))
	defer server.Close()

	c, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	payload, err := c.Fetch(context.Background(), query.Default(), nil)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if payload == nil {
		t.Fatal("Payload is nil")
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", attemptCount)
	}
}

func TestFetch_RetryOnRateLimitHonorsRetryAfter(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[],"total":0}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.BaseDelay = 10 * time.Second // would dominate if Retry-After were ignored
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	start := time.Now()
	_, err = c.Fetch(context.Background(), query.Default(), nil)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if attemptCount != 2 {
		t.Errorf("Expected 2 attempts (1 retry), got %d", attemptCount)
	}
	if elapsed := time.Since(start); elapsed > 1*time.Second {
		t.Errorf("Fetch took %v, Retry-After: 0 should retry immediately", elapsed)
	}
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = c.Fetch(context.Background(), query.Default(), nil)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, ErrorClassClient)
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt (no retry for 4xx), got %d", attemptCount)
	}
}

func TestFetch_RetryExhausted(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 2
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = c.Fetch(context.Background(), query.Default(), nil)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("Expected exactly maxRetries+1 = 3 attempts, got %d", attemptCount)
	}
}

func TestFetch_MalformedBodyRetried(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content": [truncated`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 1
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = c.Fetch(context.Background(), query.Default(), nil)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if attemptCount != 2 {
		t.Errorf("Expected 2 attempts, got %d", attemptCount)
	}
}

func TestFetch_HeadersForwarded(t *testing.T) {
	var received http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":[],"total":0}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.UserAgent = "harvester-test/1.0"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	headers := map[string]string{"rId": "run-42"}
	if _, err := c.Fetch(context.Background(), query.Default(), headers); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if got := received.Get("rId"); got != "run-42" {
		t.Errorf("rId header = %q, want %q", got, "run-42")
	}
	if got := received.Get("Accept"); got != "application/json" {
		t.Errorf("Accept header = %q, want application/json", got)
	}
	if got := received.Get("User-Agent"); got != "harvester-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", got, "harvester-test/1.0")
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.BaseDelay = 5 * time.Second
	cfg.MaxBackoff = 30 * time.Second
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Fetch(ctx, query.Default(), nil)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
}
