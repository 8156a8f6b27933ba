// internal/adapter/storage/poi_store.go

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// execer is satisfied by both the pool and a transaction, so upserts can run
// standalone or inside a FetchRecorder transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// POIStore is the durable record of cached POIs.
type POIStore struct {
	db      *pgxpool.Pool
	spatial bool
	window  time.Duration
}

// NewPOIStore creates a POI store. window is the freshness window shared
// with the coverage store; rows older than it are ignored, not deleted.
func NewPOIStore(db *pgxpool.Pool, spatial bool, window time.Duration) *POIStore {
	return &POIStore{
		db:      db,
		spatial: spatial,
		window:  window,
	}
}

// QueryCached returns all non-stale POIs of the category whose location lies
// within the polygon. Without spatial support it returns nothing, forcing the
// orchestrator down the full-fetch path: a cache miss is always safe, a wrong
// hit is not.
func (s *POIStore) QueryCached(ctx context.Context, polygon geom.Polygon, category poi.Category) ([]poi.POI, error) {
	if !s.spatial {
		return nil, nil
	}

	query := `
		SELECT id, name, category, lat, lng, tags, source, created_at, updated_at
		FROM pois
		WHERE category = $1
		AND updated_at > $2
		AND ST_Contains(ST_GeomFromText($3, 4326), ST_SetSRID(ST_MakePoint(lng, lat), 4326))
	`

	cutoff := time.Now().Add(-s.window)
	rows, err := s.db.Query(ctx, query, string(category), cutoff, polygon.WKT())
	if err != nil {
		return nil, fmt.Errorf("error querying cached pois: %w", err)
	}
	defer rows.Close()

	var pois []poi.POI
	for rows.Next() {
		var p poi.POI
		var category string
		var tagsJSON []byte

		if err := rows.Scan(
			&p.ID, &p.Name, &category, &p.Lat, &p.Lng,
			&tagsJSON, &p.Source, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning poi: %w", err)
		}

		if err := json.Unmarshal(tagsJSON, &p.Tags); err != nil {
			return nil, fmt.Errorf("error unmarshaling poi tags: %w", err)
		}

		p.Category = poi.Category(category)
		pois = append(pois, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pois: %w", err)
	}

	return pois, nil
}

// UpsertMany inserts or refreshes POIs outside any enclosing transaction.
func (s *POIStore) UpsertMany(ctx context.Context, pois []poi.POI) error {
	return upsertPOIs(ctx, s.db, pois)
}

// upsertPOIs is idempotent: re-inserting a POI with the same
// provider-qualified id replaces its fields and refreshes updated_at.
func upsertPOIs(ctx context.Context, ex execer, pois []poi.POI) error {
	query := `
		INSERT INTO pois (id, name, category, lat, lng, tags, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET
			name = $2,
			category = $3,
			lat = $4,
			lng = $5,
			tags = $6,
			source = $7,
			updated_at = now()
	`

	for _, p := range pois {
		tags := p.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("error marshaling poi tags: %w", err)
		}

		if _, err := ex.Exec(
			ctx, query,
			p.ID, p.Name, string(p.Category), p.Lat, p.Lng, tagsJSON, p.Source,
		); err != nil {
			return fmt.Errorf("error upserting poi %s: %w", p.ID, err)
		}
	}

	return nil
}
