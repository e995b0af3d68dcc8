// Package client provides the core listings API HTTP client with caching,
// conditional revalidation, and retry/backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Rekoko/immo-harvester/pkg/cache"
	"github.com/Rekoko/immo-harvester/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for listings API operations.
var (
	immoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_requests_total",
		Help: "Total listings API requests by outcome",
	}, []string{"status"})

	immoRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "immo_request_duration_seconds",
		Help:    "Listings API fetch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})

	immoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_errors_total",
		Help: "Total listings API errors by class",
	}, []string{"class"})

	immoRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	immoRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// immoPath is the single search endpoint of the listings API.
const immoPath = "/immo"

// Client is the caching, retrying listings API client.
type Client struct {
	httpClient *http.Client
	store      cache.Store
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the listings API, without trailing slash.
	BaseURL string

	// UserAgent sent on every request.
	UserAgent string

	// TTL is how long a fetched payload stays fresh in the cache.
	TTL time.Duration

	// Retry
	MaxRetries int           // retries after the initial attempt
	BaseDelay  time.Duration // backoff base, doubled per attempt
	MaxBackoff time.Duration // cap for a single backoff sleep

	// Timeout per HTTP request.
	Timeout time.Duration

	// Caching
	UseCache   bool
	Revalidate bool        // send If-None-Match when a cached ETag exists
	Store      cache.Store // defaults to a bounded in-memory store
}

// DefaultConfig returns a configuration safe against upstream rate limits.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.thinkimmo.com",
		UserAgent:  "immo-harvester/0.1.0",
		TTL:        60 * time.Second,
		MaxRetries: 6,
		BaseDelay:  750 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		Timeout:    30 * time.Second,
		UseCache:   true,
		Revalidate: true,
	}
}

// New creates a new listings API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("base_delay must be > 0 (got %v)", cfg.BaseDelay)
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	store := cfg.Store
	if store == nil {
		store = cache.NewMemoryStore(cache.DefaultMemoryCap)
	}

	logger := log.With().Str("component", "immo-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		store:  store,
		config: cfg,
		logger: logger,
	}, nil
}

// Fetch executes one search against the listings API and returns the parsed
// payload. Extra headers are merged over the defaults.
//
// Cached payloads are returned without network I/O while fresh (unless
// revalidation is enabled, in which case a conditional request is made and a
// 304 answer serves the cached payload with an extended expiry). Rate limits,
// 5xx responses, transport failures, and malformed bodies are retried with
// exponential backoff up to MaxRetries; other 4xx statuses fail immediately.
func (c *Client) Fetch(ctx context.Context, q query.Query, headers map[string]string) (map[string]any, error) {
	endpoint := c.config.BaseURL + immoPath
	params := q.Params()
	key := cache.Fingerprint(endpoint, params)

	startTime := time.Now()
	status := "error"
	defer func() {
		immoRequestDuration.WithLabelValues(status).Observe(time.Since(startTime).Seconds())
	}()

	var cached *cache.Entry
	if c.config.UseCache {
		entry, err := c.store.Get(ctx, key)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		if err == nil {
			cached = entry
		}

		if cached != nil && !cached.IsExpired() && !c.config.Revalidate {
			c.logger.Debug().
				Str("key", key).
				Time("expires", cached.Expires).
				Msg("Cache hit - skipping request")
			status = "cache_hit"
			immoRequestsTotal.WithLabelValues(status).Inc()
			return cached.Payload, nil
		}
	}

	values := url.Values{}
	for name, value := range params {
		values.Set(name, value)
	}
	requestURL := endpoint + "?" + values.Encode()

	var lastErr error
	lastClass := ErrorClassNetwork

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.config.UserAgent)
		for name, value := range headers {
			req.Header.Set(name, value)
		}

		if c.config.Revalidate && cached != nil && cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("etag", cached.ETag).
				Msg("Making conditional request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			lastClass = ErrorClassNetwork
			immoErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Request failed")

			if attempt == c.config.MaxRetries {
				break
			}
			if err := c.backoff(ctx, ErrorClassNetwork, backoffDelay(c.config.BaseDelay, attempt, c.config.MaxBackoff)); err != nil {
				return nil, err
			}
			continue
		}

		// 304: the cached payload is still valid, extend its life.
		if resp.StatusCode == http.StatusNotModified && cached != nil {
			resp.Body.Close()
			cache.NotModifiedResponses.Inc()

			newExpires := time.Now().Add(c.config.TTL)
			if err := c.store.Touch(ctx, key, newExpires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to extend cache entry expiry")
			}

			c.logger.Debug().Str("key", key).Msg("304 Not Modified - using cache")
			status = "not_modified"
			immoRequestsTotal.WithLabelValues(status).Inc()
			return cached.Payload, nil
		}

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
			immoErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Listings API error")

			if !shouldRetry(errClass) {
				resp.Body.Close()
				immoRequestsTotal.WithLabelValues("client_error").Inc()
				return nil, apiErr
			}

			delay := retryAfterDelay(resp.Header,
				backoffDelay(c.config.BaseDelay, attempt, c.config.MaxBackoff),
				c.config.MaxBackoff)
			resp.Body.Close()
			lastErr = apiErr
			lastClass = errClass

			if attempt == c.config.MaxRetries {
				break
			}
			if err := c.backoff(ctx, errClass, delay); err != nil {
				return nil, err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		var payload map[string]any
		if err == nil {
			err = json.Unmarshal(body, &payload)
		}
		if err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			lastClass = ErrorClassDecode
			immoErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Malformed response body")

			if attempt == c.config.MaxRetries {
				break
			}
			if err := c.backoff(ctx, ErrorClassDecode, backoffDelay(c.config.BaseDelay, attempt, c.config.MaxBackoff)); err != nil {
				return nil, err
			}
			continue
		}

		if c.config.UseCache {
			now := time.Now()
			entry := &cache.Entry{
				Payload:  payload,
				ETag:     resp.Header.Get("ETag"),
				Expires:  now.Add(c.config.TTL),
				CachedAt: now,
			}
			if err := c.store.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			}
		}

		if attempt > 0 {
			c.logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
		}
		status = "ok"
		immoRequestsTotal.WithLabelValues(status).Inc()
		return payload, nil
	}

	immoRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()

	c.logger.Warn().
		Int("attempts", c.config.MaxRetries+1).
		Str("error_class", string(lastClass)).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.config.MaxRetries+1, lastErr)
}

// backoff records the retry and sleeps for the given delay, honoring ctx.
func (c *Client) backoff(ctx context.Context, errClass ErrorClass, delay time.Duration) error {
	immoRetriesTotal.WithLabelValues(string(errClass)).Inc()

	c.logger.Debug().
		Str("error_class", string(errClass)).
		Dur("backoff", delay).
		Msg("Retrying request after backoff")

	return sleepContext(ctx, delay)
}

// Store returns the cache store (for testing).
func (c *Client) Store() cache.Store {
	return c.store
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
