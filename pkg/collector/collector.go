// Package collector walks the listings API across cities and pages and
// assembles a complete, duplicate-free dataset.
//
// Pages are fetched strictly in increasing offset order and deduplication
// state is built in that order, so the first occurrence of a listing always
// wins. Cities are independent: no deduplication happens across them, and a
// listing present in two cities appears in both results.
package collector

import (
	"context"
	"fmt"

	"github.com/Rekoko/immo-harvester/pkg/client"
	"github.com/Rekoko/immo-harvester/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for collection runs.
var (
	collectorPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_collector_pages_total",
		Help: "Total pages fetched by city",
	}, []string{"city"})

	collectorItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_collector_items_total",
		Help: "Total deduplicated listings collected by city",
	}, []string{"city"})

	collectorDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immo_collector_duplicates_total",
		Help: "Total duplicate listings dropped by city",
	}, []string{"city"})
)

// CitySpec identifies one geographic partition to collect.
type CitySpec struct {
	Query  string        // e.g. "München"
	Kind   query.GeoType // town, city, or state
	Region string        // Bundesland, e.g. "Bayern"
}

// CityResult is the collected, deduplicated listing set for one city.
// The JSON field names are the persisted dataset contract consumed by the
// downstream indexing backend.
type CityResult struct {
	City   string           `json:"city"`
	Region string           `json:"region"`
	Pages  int              `json:"pages"`
	Items  []map[string]any `json:"items"`
}

// Dataset is a complete multi-city collection result.
type Dataset struct {
	TotalItems int                   `json:"total_items"`
	ByCity     map[string]CityResult `json:"by_city"`
}

// Collector drives a listings client across cities and pages.
type Collector struct {
	client   *client.Client
	headers  map[string]string
	itemsKey string
	idKeys   []string
	logger   zerolog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithHeaders sets extra request headers sent on every fetch.
func WithHeaders(headers map[string]string) Option {
	return func(c *Collector) { c.headers = headers }
}

// WithItemsKey overrides the payload key the record list is expected under.
func WithItemsKey(key string) Option {
	return func(c *Collector) { c.itemsKey = key }
}

// WithIDKeys overrides the candidate identifier keys used for deduplication.
func WithIDKeys(keys ...string) Option {
	return func(c *Collector) { c.idKeys = keys }
}

// New creates a Collector on top of a listings client.
func New(cl *client.Client, opts ...Option) *Collector {
	c := &Collector{
		client:   cl,
		itemsKey: DefaultItemsKey,
		idKeys:   DefaultIDKeys,
		logger:   log.With().Str("component", "collector").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectCity collects one city's listings with pagination, up to maxPages
// pages. The base query supplies everything except the geographic target and
// the advancing offset; a fresh query value is derived per page.
//
// A page shorter than the requested size (or empty) terminates the walk.
// Pages is reported as 0 when nothing was collected, else the number of
// pages consumed.
func (c *Collector) CollectCity(ctx context.Context, base query.Query, city CitySpec, maxPages int, dedupe bool) (CityResult, error) {
	var items []map[string]any
	seen := make(map[string]struct{})

	pages := 0
	offset := base.Offset

	for fetched := 0; fetched < maxPages; fetched++ {
		q := base.WithGeo(city.Query, city.Kind, city.Region).WithPage(offset)

		payload, err := c.client.Fetch(ctx, q, c.headers)
		if err != nil {
			return CityResult{}, fmt.Errorf("fetch %s page %d: %w", city.Query, fetched, err)
		}

		pageItems, err := c.extractItems(payload)
		if err != nil {
			return CityResult{}, fmt.Errorf("city %s page %d: %w", city.Query, fetched, err)
		}
		collectorPagesTotal.WithLabelValues(city.Query).Inc()

		if len(pageItems) == 0 {
			break
		}
		pages++

		if dedupe {
			for _, item := range pageItems {
				id, ok := ExtractID(item, c.idKeys...)
				if !ok {
					// No identity to compare: always keep.
					items = append(items, item)
					continue
				}
				if _, dup := seen[id]; dup {
					collectorDuplicatesTotal.WithLabelValues(city.Query).Inc()
					continue
				}
				seen[id] = struct{}{}
				items = append(items, item)
			}
		} else {
			items = append(items, pageItems...)
		}

		// A short page is the last page.
		if len(pageItems) < base.Size {
			break
		}

		offset += base.Size
	}

	if len(items) == 0 {
		pages = 0
	}
	collectorItemsTotal.WithLabelValues(city.Query).Add(float64(len(items)))

	c.logger.Info().
		Str("city", city.Query).
		Int("pages", pages).
		Int("items", len(items)).
		Msg("City collected")

	return CityResult{
		City:   city.Query,
		Region: city.Region,
		Pages:  pages,
		Items:  items,
	}, nil
}

// CollectMany collects every city in order and merges the results.
//
// Cities are collected sequentially and independently; duplicate listings
// across two cities are both retained. The result map is keyed by city query,
// with later duplicates overwriting earlier entries.
//
// On error the dataset collected so far is returned alongside it, so a fatal
// payload-shape mismatch late in a long run does not discard finished cities.
func (c *Collector) CollectMany(ctx context.Context, base query.Query, cities []CitySpec, maxPagesPerCity int, dedupe bool) (Dataset, error) {
	dataset := Dataset{
		ByCity: make(map[string]CityResult, len(cities)),
	}

	for _, city := range cities {
		result, err := c.CollectCity(ctx, base, city, maxPagesPerCity, dedupe)
		if err != nil {
			return dataset, fmt.Errorf("collect %s: %w", city.Query, err)
		}

		dataset.ByCity[city.Query] = result
		dataset.TotalItems += len(result.Items)
	}

	c.logger.Info().
		Int("cities", len(dataset.ByCity)).
		Int("total_items", dataset.TotalItems).
		Msg("Collection complete")

	return dataset, nil
}
