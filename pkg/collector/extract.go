package collector

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultItemsKey is the payload key the listings API puts result pages under.
const DefaultItemsKey = "content"

// DefaultIDKeys are the candidate identifier fields probed for deduplication,
// in priority order.
var DefaultIDKeys = []string{"id", "_id", "objectId"}

// fallbackItemsKeys are probed when the configured items key is absent.
var fallbackItemsKeys = []string{"items", "results", "data", "listings"}

// ErrItemsNotFound indicates the payload shape is unrecognized: no item list
// was found under the configured key or any fallback. This is a configuration
// mismatch, not a transient condition, and is never retried.
var ErrItemsNotFound = errors.New("no item list found in payload")

// extractItems pulls the record list out of a payload.
func (c *Collector) extractItems(payload map[string]any) ([]map[string]any, error) {
	if items, ok := itemList(payload[c.itemsKey]); ok {
		return items, nil
	}

	for _, key := range fallbackItemsKeys {
		if items, ok := itemList(payload[key]); ok {
			return items, nil
		}
	}

	return nil, fmt.Errorf("%w: tried %q and common fallbacks", ErrItemsNotFound, c.itemsKey)
}

// itemList converts a decoded JSON value into a record list.
// Non-object elements are dropped.
func itemList(value any) ([]map[string]any, bool) {
	raw, ok := value.([]any)
	if !ok {
		return nil, false
	}

	items := make([]map[string]any, 0, len(raw))
	for _, element := range raw {
		if record, ok := element.(map[string]any); ok {
			items = append(items, record)
		}
	}
	return items, true
}

// ExtractID derives a stable identifier from a record by probing the
// candidate keys in order. The first present non-null value wins. Returns
// false if the record has no identity at all.
func ExtractID(record map[string]any, candidates ...string) (string, bool) {
	for _, key := range candidates {
		if value, ok := record[key]; ok && value != nil {
			return stringifyID(value), true
		}
	}
	return "", false
}

// stringifyID renders an identifier value without float formatting artifacts
// for the integral ids some platforms use.
func stringifyID(value any) string {
	switch id := value.(type) {
	case string:
		return id
	case float64:
		if id == math.Trunc(id) && math.Abs(id) < 1e15 {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}
