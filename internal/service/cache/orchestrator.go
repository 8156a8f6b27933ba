// internal/service/cache/orchestrator.go

package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
	"walkabout/internal/service/provider"
)

// POIStore defines the cached-POI reads the orchestrator needs.
type POIStore interface {
	QueryCached(ctx context.Context, polygon geom.Polygon, category poi.Category) ([]poi.POI, error)
}

// CoverageStore defines the coverage-geometry reads the orchestrator needs.
type CoverageStore interface {
	UncoveredRemainder(ctx context.Context, polygon geom.Polygon, category poi.Category) (geom.Region, error)
}

// FetchRecorder commits one fetch outcome (POIs plus coverage) atomically.
type FetchRecorder interface {
	Record(ctx context.Context, region geom.Region, category poi.Category, pois []poi.POI) error
}

// Publisher pushes newly discovered POIs to live subscribers.
type Publisher interface {
	Publish(category poi.Category, pois []poi.POI, sourcePolygon geom.Polygon)
}

// OrchestratorConfig contains configuration for the cache orchestrator.
type OrchestratorConfig struct {
	// Workers is the number of goroutines draining the reconcile queue.
	Workers int

	// QueueSize bounds the reconcile backlog. A full queue drops the job
	// with a log line; the triggering request already got its answer.
	QueueSize int

	// FetchTimeout bounds each background provider fetch.
	FetchTimeout time.Duration
}

// reconcileJob asks the background path to fetch whatever part of the
// polygon is not covered yet.
type reconcileJob struct {
	polygon  geom.Polygon
	category poi.Category
}

// Orchestrator is the read-through/write-back cache controller. Cached
// results are returned immediately; the uncovered remainder is refilled by
// the worker pool and pushed to subscribers.
type Orchestrator struct {
	poiStore      POIStore
	coverageStore CoverageStore
	recorder      FetchRecorder
	gateway       provider.Gateway
	publisher     Publisher
	config        OrchestratorConfig

	jobs   chan reconcileJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates a cache orchestrator. Call Start before serving
// requests and Stop during shutdown.
func NewOrchestrator(
	poiStore POIStore,
	coverageStore CoverageStore,
	recorder FetchRecorder,
	gateway provider.Gateway,
	publisher Publisher,
	config OrchestratorConfig,
) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 60 * time.Second
	}

	return &Orchestrator{
		poiStore:      poiStore,
		coverageStore: coverageStore,
		recorder:      recorder,
		gateway:       gateway,
		publisher:     publisher,
		config:        config,
		jobs:          make(chan reconcileJob, config.QueueSize),
	}
}

// Start launches the reconcile workers.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)

	for i := 0; i < o.config.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

// Stop halts the workers, waiting at most until ctx expires. Jobs still
// buffered when the workers exit are dropped with a log line, not run; the
// requests that scheduled them already got their answers.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.dropQueued()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dropQueued empties the reconcile queue after the workers have exited.
func (o *Orchestrator) dropQueued() {
	for {
		select {
		case job := <-o.jobs:
			log.Printf("dropping queued reconcile job for category %s on shutdown", job.category)
		default:
			return
		}
	}
}

// Query resolves a polygon+category request against the cache.
//
// Any cached hit is answered immediately and a background reconciliation is
// scheduled for whatever part of the polygon is not covered yet. With no
// cached POIs at all, the entire polygon is fetched synchronously and the
// result cached before responding.
func (o *Orchestrator) Query(ctx context.Context, polygon geom.Polygon, category poi.Category) (*poi.QueryResult, error) {
	if err := polygon.Validate(); err != nil {
		return nil, err
	}

	cached, err := o.poiStore.QueryCached(ctx, polygon, category)
	if err != nil {
		// A broken cache read must not break the request; fall through to
		// the provider as if nothing were cached.
		log.Printf("cached poi query failed, falling back to provider: %v", err)
	}

	if len(cached) > 0 {
		o.scheduleReconcile(polygon, category)
		return &poi.QueryResult{
			Category: category,
			POIs:     cached,
			Count:    len(cached),
			Cached:   true,
		}, nil
	}

	fetched, err := o.gateway.FetchPOIs(ctx, geom.Region{polygon}, category)
	if err != nil {
		return nil, fmt.Errorf("fetching pois for %s: %w", category, err)
	}

	if err := o.recorder.Record(ctx, geom.Region{polygon}, category, fetched); err != nil {
		return nil, fmt.Errorf("caching fetch result: %w", err)
	}

	return &poi.QueryResult{
		Category: category,
		POIs:     fetched,
		Count:    len(fetched),
		Cached:   false,
	}, nil
}

// scheduleReconcile hands the polygon to the worker pool. One attempt per
// triggering request; a full queue means the job is simply dropped.
func (o *Orchestrator) scheduleReconcile(polygon geom.Polygon, category poi.Category) {
	select {
	case o.jobs <- reconcileJob{polygon: polygon, category: category}:
	default:
		log.Printf("reconcile queue full, skipping refill for category %s", category)
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case job := <-o.jobs:
			o.reconcile(job)
		}
	}
}

// reconcile fetches the uncovered remainder of an already-answered request.
// Failures here are logged and swallowed; the response that triggered the
// job has long been sent.
func (o *Orchestrator) reconcile(job reconcileJob) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.FetchTimeout)
	defer cancel()

	remainder, err := o.coverageStore.UncoveredRemainder(ctx, job.polygon, job.category)
	if err != nil {
		log.Printf("error computing uncovered remainder: %v", err)
		return
	}

	if remainder.Empty() {
		return
	}

	fetched, err := o.gateway.FetchPOIs(ctx, remainder, job.category)
	if err != nil {
		log.Printf("error fetching remainder for category %s: %v", job.category, err)
		return
	}

	// Coverage is recorded even for an empty result; knowing a region holds
	// nothing is exactly as cacheable as knowing what it holds.
	if err := o.recorder.Record(ctx, remainder, job.category, fetched); err != nil {
		log.Printf("error recording remainder fetch: %v", err)
		return
	}

	if len(fetched) > 0 {
		o.publisher.Publish(job.category, fetched, job.polygon)
	}
}
