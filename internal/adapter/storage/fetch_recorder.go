// internal/adapter/storage/fetch_recorder.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// FetchRecorder commits the outcome of one provider fetch: all discovered
// POIs and the coverage record for the fetched region go into a single
// transaction. The coverage record is inserted after the POIs, so a region
// can never read as covered while its POIs are missing.
type FetchRecorder struct {
	db      *pgxpool.Pool
	spatial bool
}

// NewFetchRecorder creates a fetch recorder.
func NewFetchRecorder(db *pgxpool.Pool, spatial bool) *FetchRecorder {
	return &FetchRecorder{
		db:      db,
		spatial: spatial,
	}
}

// Record upserts the POIs and appends the coverage record atomically.
// Nothing is written for a failed fetch; callers only invoke Record with a
// complete provider response.
func (r *FetchRecorder) Record(ctx context.Context, region geom.Region, category poi.Category, pois []poi.POI) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertPOIs(ctx, tx, pois); err != nil {
		return err
	}

	// Coverage needs the spatial engine; without it every request re-fetches
	// anyway, so skipping the record loses nothing.
	if r.spatial {
		if err := recordCoverage(ctx, tx, region, category, len(pois)); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing fetch result: %w", err)
	}

	return nil
}
