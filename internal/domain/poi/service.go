// internal/domain/poi/service.go

package poi

import (
	"context"

	"walkabout/internal/domain/geom"
)

// QueryResult is the answer to a polygon+category query.
type QueryResult struct {
	Category Category `json:"category"`
	POIs     []POI    `json:"pois"`
	Count    int      `json:"count"`
	Cached   bool     `json:"cached"`
}

// Service answers POI queries through the cache orchestrator.
type Service interface {
	// Query returns the POIs of the category inside the polygon. Cached is
	// true when the response was served from the local store without a
	// provider round-trip.
	Query(ctx context.Context, polygon geom.Polygon, category Category) (*QueryResult, error)
}

// IsochroneService computes the walkable-area polygon around a point.
type IsochroneService interface {
	// WalkableArea returns the polygon reachable on foot from (lat, lng)
	// within the given number of minutes.
	WalkableArea(ctx context.Context, lat, lng float64, minutes int) (geom.Polygon, error)
}
