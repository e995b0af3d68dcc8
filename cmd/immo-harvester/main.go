package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rekoko/immo-harvester/pkg/cache"
	"github.com/Rekoko/immo-harvester/pkg/client"
	"github.com/Rekoko/immo-harvester/pkg/collector"
	"github.com/Rekoko/immo-harvester/pkg/logging"
	"github.com/Rekoko/immo-harvester/pkg/query"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Optional .env file for local runs.
	_ = godotenv.Load()

	logger := logging.Setup(logging.FromEnv())

	// Configuration from environment
	cfg := client.DefaultConfig()
	cfg.BaseURL = getEnv("BASE_URL", cfg.BaseURL)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.TTL = time.Duration(getEnvInt("CACHE_TTL_SECONDS", int(cfg.TTL/time.Second))) * time.Second
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", cfg.MaxRetries)

	cities, err := parseCities(getEnv("CITIES", "München:town:Bayern;Berlin:state:Berlin"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid CITIES value")
	}

	maxPages := getEnvInt("MAX_PAGES", 50)
	outPath := getEnv("OUT", "listings.json")

	base := query.Default()
	base.Size = getEnvInt("PAGE_SIZE", base.Size)
	base.Type = getEnv("LISTING_TYPE", base.Type)
	base.SortBy = getEnv("SORT_BY", base.SortBy)

	// Redis-backed cache is opt-in; the default is the in-memory store.
	if addr := os.Getenv("CACHE_REDIS_ADDR"); addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("CACHE_REDIS_PASSWORD"),
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", addr).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		cfg.Store = cache.NewRedisStore(redisClient)
		logger.Info().Str("addr", addr).Msg("Using Redis cache")
	}

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	immoClient, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create listings client")
	}

	runID := uuid.NewString()
	c := collector.New(immoClient, collector.WithHeaders(map[string]string{
		"rId": runID,
	}))

	logger.Info().
		Str("run_id", runID).
		Int("cities", len(cities)).
		Int("max_pages", maxPages).
		Msg("Starting harvest")

	dataset, err := c.CollectMany(context.Background(), base, cities, maxPages, true)
	if err != nil {
		// Finished cities are still in the dataset; persist them before exiting.
		logger.Error().Err(err).Msg("Harvest aborted, writing partial dataset")
		if werr := writeDataset(outPath, dataset); werr != nil {
			logger.Error().Err(werr).Msg("Failed to write partial dataset")
		}
		os.Exit(1)
	}

	if err := writeDataset(outPath, dataset); err != nil {
		logger.Fatal().Err(err).Str("path", outPath).Msg("Failed to write dataset")
	}

	logger.Info().
		Str("path", outPath).
		Int("total_items", dataset.TotalItems).
		Msg("Harvest complete")
}

// writeDataset persists a collection result as indented JSON.
func writeDataset(path string, dataset collector.Dataset) error {
	data, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// parseCities parses the CITIES environment value. Entries are separated by
// ";" and each is "Query[:kind[:Region]]", e.g. "München:town:Bayern".
// The kind defaults to town.
func parseCities(value string) ([]collector.CitySpec, error) {
	var cities []collector.CitySpec

	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		spec := collector.CitySpec{
			Query: strings.TrimSpace(parts[0]),
			Kind:  query.GeoTown,
		}
		if spec.Query == "" {
			return nil, fmt.Errorf("city entry %q has an empty query", entry)
		}

		if len(parts) > 1 && parts[1] != "" {
			switch kind := query.GeoType(strings.TrimSpace(parts[1])); kind {
			case query.GeoTown, query.GeoCity, query.GeoState:
				spec.Kind = kind
			default:
				return nil, fmt.Errorf("city entry %q has unknown kind %q", entry, parts[1])
			}
		}
		if len(parts) > 2 {
			spec.Region = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			return nil, fmt.Errorf("city entry %q has too many fields", entry)
		}

		cities = append(cities, spec)
	}

	if len(cities) == 0 {
		return nil, fmt.Errorf("no cities configured")
	}
	return cities, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
