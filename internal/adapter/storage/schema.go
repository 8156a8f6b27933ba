// internal/adapter/storage/schema.go

package storage

import (
	"context"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ProbeSpatial reports whether the database has a usable PostGIS install.
// It is resolved once at startup and injected into the stores; a database
// without spatial support degrades the cache to fetch-everything behavior
// instead of failing requests.
func ProbeSpatial(ctx context.Context, db *pgxpool.Pool) bool {
	// Extension creation needs privileges we may not have; a failure here
	// just means the probe below decides.
	if _, err := db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		log.Printf("postgis extension not created: %v", err)
	}

	var version string
	if err := db.QueryRow(ctx, "SELECT PostGIS_Lib_Version()").Scan(&version); err != nil {
		log.Printf("PostGIS unavailable, running without spatial coverage: %v", err)
		return false
	}

	log.Printf("PostGIS %s detected", version)
	return true
}

// Migrate creates the cache tables. The coverage table and the spatial
// index only exist when PostGIS is available; the pois table itself needs
// nothing beyond plain columns.
func Migrate(ctx context.Context, db *pgxpool.Pool, spatial bool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pois (
			id         text PRIMARY KEY,
			name       text NOT NULL,
			category   text NOT NULL,
			lat        double precision NOT NULL,
			lng        double precision NOT NULL,
			tags       jsonb NOT NULL DEFAULT '{}',
			source     text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS pois_category_updated_idx ON pois (category, updated_at)`,
	}

	if spatial {
		stmts = append(stmts,
			`CREATE TABLE IF NOT EXISTS coverage (
				id        uuid PRIMARY KEY,
				category  text NOT NULL,
				geom      geometry(Geometry, 4326) NOT NULL,
				poi_count integer NOT NULL,
				cached_at timestamptz NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS coverage_category_cached_idx ON coverage (category, cached_at)`,
			`CREATE INDEX IF NOT EXISTS coverage_geom_gix ON coverage USING GIST (geom)`,
			`CREATE INDEX IF NOT EXISTS pois_location_gix ON pois USING GIST (ST_SetSRID(ST_MakePoint(lng, lat), 4326))`,
		)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
