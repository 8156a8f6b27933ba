// internal/adapter/storage/coverage_store.go

package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// CoverageStore tracks which (polygon, category) regions have been fetched
// from the provider and when. Records accumulate and may overlap; they are
// unioned lazily at read time, never merged at write time.
type CoverageStore struct {
	db      *pgxpool.Pool
	spatial bool
	window  time.Duration
}

// NewCoverageStore creates a coverage store. spatial is the capability flag
// resolved once at startup by ProbeSpatial.
func NewCoverageStore(db *pgxpool.Pool, spatial bool, window time.Duration) *CoverageStore {
	return &CoverageStore{
		db:      db,
		spatial: spatial,
		window:  window,
	}
}

// IsCovered reports whether the union of all non-stale coverage for the
// category fully contains the polygon. Engine failures answer "not covered"
// rather than erroring, matching UncoveredRemainder's conservative fallback.
func (s *CoverageStore) IsCovered(ctx context.Context, polygon geom.Polygon, category poi.Category) (bool, error) {
	if !s.spatial {
		return false, nil
	}

	query := `
		SELECT COALESCE(ST_Covers(ST_Union(geom), ST_GeomFromText($1, 4326)), false)
		FROM coverage
		WHERE category = $2 AND cached_at > $3
	`

	cutoff := time.Now().Add(-s.window)
	var covered bool
	if err := s.db.QueryRow(ctx, query, polygon.WKT(), string(category), cutoff).Scan(&covered); err != nil {
		log.Printf("coverage check failed, treating polygon as uncovered: %v", err)
		return false, nil
	}

	return covered, nil
}

// UncoveredRemainder computes the part of the polygon not yet covered for
// the category. A nil region means fully covered. When the spatial engine is
// unavailable or errors, the whole polygon is treated as uncovered:
// re-fetching is always safe, silently missing data is not.
func (s *CoverageStore) UncoveredRemainder(ctx context.Context, polygon geom.Polygon, category poi.Category) (geom.Region, error) {
	if !s.spatial {
		return geom.Region{polygon}, nil
	}

	query := `
		SELECT ST_AsGeoJSON(
			CASE
				WHEN ST_Union(geom) IS NULL THEN ST_GeomFromText($1, 4326)
				ELSE ST_Difference(ST_GeomFromText($1, 4326), ST_Union(geom))
			END
		)
		FROM coverage
		WHERE category = $2 AND cached_at > $3
	`

	cutoff := time.Now().Add(-s.window)
	var geoJSON []byte
	if err := s.db.QueryRow(ctx, query, polygon.WKT(), string(category), cutoff).Scan(&geoJSON); err != nil {
		log.Printf("coverage difference failed, treating polygon as uncovered: %v", err)
		return geom.Region{polygon}, nil
	}

	remainder, err := geom.ParseGeoJSON(geoJSON)
	if err != nil {
		log.Printf("coverage difference returned unusable geometry, treating polygon as uncovered: %v", err)
		return geom.Region{polygon}, nil
	}

	if remainder.Empty() {
		return nil, nil
	}

	return remainder, nil
}

// RecordCoverage appends a coverage record outside any enclosing
// transaction.
func (s *CoverageStore) RecordCoverage(ctx context.Context, region geom.Region, category poi.Category, poiCount int) error {
	if !s.spatial {
		return nil
	}
	return recordCoverage(ctx, s.db, region, category, poiCount)
}

func recordCoverage(ctx context.Context, ex execer, region geom.Region, category poi.Category, poiCount int) error {
	query := `
		INSERT INTO coverage (id, category, geom, poi_count, cached_at)
		VALUES ($1, $2, ST_GeomFromText($3, 4326), $4, now())
	`

	if _, err := ex.Exec(
		ctx, query,
		uuid.New().String(), string(category), region.WKT(), poiCount,
	); err != nil {
		return fmt.Errorf("error recording coverage: %w", err)
	}

	return nil
}
