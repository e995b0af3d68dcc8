// Package query defines the immutable search descriptor for the listings API
// and its deterministic expansion into transport parameters.
package query

import (
	"encoding/json"
	"strconv"
)

// GeoType is the kind of geographic search the upstream API understands.
type GeoType string

const (
	// GeoTown targets a single town.
	GeoTown GeoType = "town"

	// GeoCity targets a city.
	GeoCity GeoType = "city"

	// GeoState targets a whole federal state.
	GeoState GeoType = "state"
)

// Query describes one logical listings search. It is a plain value: derive a
// new Query for every page or city instead of mutating a shared one.
type Query struct {
	// Filter/sort intent.
	Active bool
	Type   string // e.g. APARTMENTBUY, HOUSEBUY
	SortBy string // e.g. "publishDate,desc"

	// Pagination window.
	Offset int
	Size   int

	// Flags passed through to the upstream API.
	GrossReturnAnd bool
	AllowUnknown   bool
	Favorite       bool
	ExcludedFields bool

	// Geographic target.
	GeoQuery string
	GeoType  GeoType
	Region   string

	// Free-form aggregation requests, passed through verbatim.
	AverageAggregation string
	TermsAggregation   string
}

// Default returns the query the upstream website issues for a plain search.
func Default() Query {
	return Query{
		Active:         true,
		Type:           "APARTMENTBUY",
		SortBy:         "publishDate,desc",
		Offset:         0,
		Size:           20,
		ExcludedFields: true,
		GeoType:        GeoTown,
		AverageAggregation: "buyingPrice;pricePerSqm;squareMeter;constructionYear;" +
			"rentPrice;rentPricePerSqm;runningTime",
		TermsAggregation: "platforms.name.keyword,60",
	}
}

// WithPage returns a copy of q targeting the given offset.
func (q Query) WithPage(offset int) Query {
	q.Offset = offset
	return q
}

// WithGeo returns a copy of q targeting the given geographic search.
func (q Query) WithGeo(geoQuery string, geoType GeoType, region string) Query {
	q.GeoQuery = geoQuery
	q.GeoType = geoType
	q.Region = region
	return q
}

// geoSearch is the element type of the JSON-array-valued geoSearches parameter.
// Field order matters: the encoded bytes feed the cache fingerprint.
type geoSearch struct {
	GeoSearchQuery string `json:"geoSearchQuery"`
	GeoSearchType  string `json:"geoSearchType"`
	Region         string `json:"region"`
}

// Params expands the query into the flat parameter map the upstream GET
// endpoint expects. The expansion is deterministic: equal queries always
// produce byte-identical values, including the nested geoSearches encoding.
func (q Query) Params() map[string]string {
	geo, _ := json.Marshal([]geoSearch{{
		GeoSearchQuery: q.GeoQuery,
		GeoSearchType:  string(q.GeoType),
		Region:         q.Region,
	}})

	return map[string]string{
		"active":             strconv.FormatBool(q.Active),
		"type":               q.Type,
		"sortBy":             q.SortBy,
		"from":               strconv.Itoa(q.Offset),
		"size":               strconv.Itoa(q.Size),
		"grossReturnAnd":     strconv.FormatBool(q.GrossReturnAnd),
		"allowUnknown":       strconv.FormatBool(q.AllowUnknown),
		"favorite":           strconv.FormatBool(q.Favorite),
		"excludedFields":     strconv.FormatBool(q.ExcludedFields),
		"geoSearches":        string(geo),
		"averageAggregation": q.AverageAggregation,
		"termsAggregation":   q.TermsAggregation,
	}
}
