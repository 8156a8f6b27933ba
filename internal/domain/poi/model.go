// internal/domain/poi/model.go

package poi

import (
	"errors"
	"fmt"
	"time"
)

// UnnamedPOI is the display name used when the provider has no name for an
// entity.
const UnnamedPOI = "Unnamed"

// Domain error values surfaced by the query path. Handlers map them to HTTP
// statuses with errors.Is.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrProviderFailure = errors.New("provider fetch failed")
)

// Category identifies one of the configured POI categories. The mapping from
// category to provider tag selectors is static configuration, not user input.
type Category string

const (
	CategoryRestaurants Category = "restaurants"
	CategoryRecreation  Category = "recreation"
	CategoryShopping    Category = "shopping"
	CategoryCulture     Category = "culture"
)

// TagSelector matches provider entities carrying one of Values under Key,
// e.g. amenity=restaurant|cafe.
type TagSelector struct {
	Key    string
	Values []string
}

// categorySelectors maps each category to the OSM tag selectors the provider
// is queried with.
var categorySelectors = map[Category][]TagSelector{
	CategoryRestaurants: {
		{Key: "amenity", Values: []string{"restaurant", "fast_food", "cafe", "bar", "pub"}},
	},
	CategoryRecreation: {
		{Key: "leisure", Values: []string{"park", "playground", "pitch", "sports_centre", "fitness_centre"}},
	},
	CategoryShopping: {
		{Key: "shop", Values: []string{"supermarket", "convenience", "bakery", "mall"}},
	},
	CategoryCulture: {
		{Key: "tourism", Values: []string{"museum", "gallery"}},
		{Key: "amenity", Values: []string{"theatre", "cinema", "library"}},
	},
}

// ParseCategory validates a raw category string from a request.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if _, ok := categorySelectors[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
	return c, nil
}

// Selectors returns the provider tag selectors for the category.
func (c Category) Selectors() []TagSelector {
	return categorySelectors[c]
}

// Categories returns the configured category names.
func Categories() []Category {
	return []Category{
		CategoryRestaurants,
		CategoryRecreation,
		CategoryShopping,
		CategoryCulture,
	}
}

// POI is a cached point of interest. Records are immutable once inserted
// except for upsert-on-refresh keyed by ID.
type POI struct {
	// ID is the provider-qualified identity, e.g. "node/240109189".
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Category  Category          `json:"category"`
	Lat       float64           `json:"lat"`
	Lng       float64           `json:"lng"`
	Tags      map[string]string `json:"tags,omitempty"`
	Source    string            `json:"source"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
