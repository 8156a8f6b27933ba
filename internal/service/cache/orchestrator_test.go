package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

func square(d float64) geom.Polygon {
	return geom.Polygon{
		{Lng: 0, Lat: 0},
		{Lng: d, Lat: 0},
		{Lng: d, Lat: d},
		{Lng: 0, Lat: d},
		{Lng: 0, Lat: 0},
	}
}

func samplePOIs(n int) []poi.POI {
	pois := make([]poi.POI, 0, n)
	for i := 0; i < n; i++ {
		pois = append(pois, poi.POI{
			ID:       "node/" + string(rune('a'+i)),
			Name:     "Place",
			Category: poi.CategoryRestaurants,
			Lat:      0.5,
			Lng:      0.5,
		})
	}
	return pois
}

type stubPOIStore struct {
	pois    []poi.POI
	err     error
	queries int
}

func (s *stubPOIStore) QueryCached(ctx context.Context, polygon geom.Polygon, category poi.Category) ([]poi.POI, error) {
	s.queries++
	return s.pois, s.err
}

type stubCoverageStore struct {
	remainder geom.Region
	err       error

	mu    sync.Mutex
	calls int
}

func (s *stubCoverageStore) UncoveredRemainder(ctx context.Context, polygon geom.Polygon, category poi.Category) (geom.Region, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.remainder, s.err
}

func (s *stubCoverageStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordCall struct {
	region   geom.Region
	category poi.Category
	pois     []poi.POI
}

type stubRecorder struct {
	err   error
	calls []recordCall
}

func (s *stubRecorder) Record(ctx context.Context, region geom.Region, category poi.Category, pois []poi.POI) error {
	s.calls = append(s.calls, recordCall{region: region, category: category, pois: pois})
	return s.err
}

type stubGateway struct {
	pois  []poi.POI
	err   error
	calls []geom.Region
}

func (s *stubGateway) FetchPOIs(ctx context.Context, region geom.Region, category poi.Category) ([]poi.POI, error) {
	s.calls = append(s.calls, region)
	if s.err != nil {
		return nil, s.err
	}
	return s.pois, nil
}

type publishCall struct {
	category poi.Category
	pois     []poi.POI
	polygon  geom.Polygon
}

type stubPublisher struct {
	calls []publishCall
}

func (s *stubPublisher) Publish(category poi.Category, pois []poi.POI, sourcePolygon geom.Polygon) {
	s.calls = append(s.calls, publishCall{category: category, pois: pois, polygon: sourcePolygon})
}

func newTestOrchestrator(
	store *stubPOIStore,
	coverage *stubCoverageStore,
	recorder *stubRecorder,
	gateway *stubGateway,
	publisher *stubPublisher,
) *Orchestrator {
	return NewOrchestrator(store, coverage, recorder, gateway, publisher, OrchestratorConfig{
		Workers:      1,
		QueueSize:    4,
		FetchTimeout: 5 * time.Second,
	})
}

func TestQueryCacheMissFetchesEverything(t *testing.T) {
	store := &stubPOIStore{}
	gateway := &stubGateway{pois: samplePOIs(3)}
	recorder := &stubRecorder{}
	o := newTestOrchestrator(store, &stubCoverageStore{}, recorder, gateway, &stubPublisher{})

	result, err := o.Query(context.Background(), square(1), poi.CategoryRestaurants)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if result.Cached {
		t.Error("cache-miss response must have cached=false")
	}
	if result.Count != 3 {
		t.Errorf("expected count 3, got %d", result.Count)
	}

	if len(gateway.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(gateway.calls))
	}
	if len(gateway.calls[0]) != 1 || len(gateway.calls[0][0]) != len(square(1)) {
		t.Error("cache miss must fetch the entire input polygon")
	}

	if len(recorder.calls) != 1 {
		t.Fatalf("expected 1 record call, got %d", len(recorder.calls))
	}
	if len(recorder.calls[0].pois) != 3 {
		t.Errorf("expected 3 recorded pois, got %d", len(recorder.calls[0].pois))
	}
}

func TestQueryCachedHitSkipsProvider(t *testing.T) {
	store := &stubPOIStore{pois: samplePOIs(3)}
	gateway := &stubGateway{}
	o := newTestOrchestrator(store, &stubCoverageStore{}, &stubRecorder{}, gateway, &stubPublisher{})

	result, err := o.Query(context.Background(), square(1), poi.CategoryRestaurants)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if !result.Cached {
		t.Error("cached hit must have cached=true")
	}
	if result.Count != 3 {
		t.Errorf("expected count 3, got %d", result.Count)
	}

	if len(gateway.calls) != 0 {
		t.Errorf("cached hit must not call the provider synchronously, got %d calls", len(gateway.calls))
	}

	if len(o.jobs) != 1 {
		t.Errorf("cached hit must schedule one reconcile job, queue holds %d", len(o.jobs))
	}
}

func TestQueryInvalidPolygonRejectedBeforeStores(t *testing.T) {
	store := &stubPOIStore{}
	o := newTestOrchestrator(store, &stubCoverageStore{}, &stubRecorder{}, &stubGateway{}, &stubPublisher{})

	open := geom.Polygon{{Lng: 0, Lat: 0}, {Lng: 1, Lat: 0}, {Lng: 1, Lat: 1}, {Lng: 0, Lat: 1}}
	_, err := o.Query(context.Background(), open, poi.CategoryRestaurants)
	if !errors.Is(err, geom.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}

	if store.queries != 0 {
		t.Error("invalid polygon must be rejected before any store access")
	}
}

func TestQueryProviderFailureWritesNothing(t *testing.T) {
	recorder := &stubRecorder{}
	gateway := &stubGateway{err: poi.ErrProviderFailure}
	o := newTestOrchestrator(&stubPOIStore{}, &stubCoverageStore{}, recorder, gateway, &stubPublisher{})

	_, err := o.Query(context.Background(), square(1), poi.CategoryRestaurants)
	if !errors.Is(err, poi.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}

	if len(recorder.calls) != 0 {
		t.Error("a failed fetch must not record POIs or coverage")
	}
}

func TestQueryRecorderFailureSurfaces(t *testing.T) {
	recorder := &stubRecorder{err: errors.New("disk full")}
	o := newTestOrchestrator(&stubPOIStore{}, &stubCoverageStore{}, recorder, &stubGateway{pois: samplePOIs(1)}, &stubPublisher{})

	if _, err := o.Query(context.Background(), square(1), poi.CategoryRestaurants); err == nil {
		t.Fatal("expected error when caching the fetch result fails")
	}
}

func TestReconcileFetchesOnlyRemainder(t *testing.T) {
	remainder := geom.Region{square(0.5)}
	coverage := &stubCoverageStore{remainder: remainder}
	gateway := &stubGateway{pois: samplePOIs(2)}
	recorder := &stubRecorder{}
	publisher := &stubPublisher{}
	o := newTestOrchestrator(&stubPOIStore{}, coverage, recorder, gateway, publisher)

	source := square(1)
	o.reconcile(reconcileJob{polygon: source, category: poi.CategoryRecreation})

	if len(gateway.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(gateway.calls))
	}
	if gateway.calls[0].WKT() != remainder.WKT() {
		t.Error("provider must be asked for the remainder, not the full polygon")
	}

	if len(recorder.calls) != 1 {
		t.Fatalf("expected 1 record call, got %d", len(recorder.calls))
	}
	if recorder.calls[0].region.WKT() != remainder.WKT() {
		t.Error("coverage must be recorded over the remainder")
	}

	if len(publisher.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(publisher.calls))
	}
	if publisher.calls[0].polygon.WKT() != source.WKT() {
		t.Error("publish must carry the triggering polygon so fingerprints match the client view")
	}
}

func TestReconcileFullyCoveredDoesNothing(t *testing.T) {
	gateway := &stubGateway{}
	publisher := &stubPublisher{}
	o := newTestOrchestrator(&stubPOIStore{}, &stubCoverageStore{}, &stubRecorder{}, gateway, publisher)

	o.reconcile(reconcileJob{polygon: square(1), category: poi.CategoryRecreation})

	if len(gateway.calls) != 0 {
		t.Error("nil remainder must not trigger a provider call")
	}
	if len(publisher.calls) != 0 {
		t.Error("nil remainder must not publish an update")
	}
}

func TestReconcileEmptyFetchRecordsButDoesNotPublish(t *testing.T) {
	coverage := &stubCoverageStore{remainder: geom.Region{square(0.5)}}
	recorder := &stubRecorder{}
	publisher := &stubPublisher{}
	o := newTestOrchestrator(&stubPOIStore{}, coverage, recorder, &stubGateway{}, publisher)

	o.reconcile(reconcileJob{polygon: square(1), category: poi.CategoryRecreation})

	if len(recorder.calls) != 1 {
		t.Fatalf("an empty remainder fetch is still coverage, got %d record calls", len(recorder.calls))
	}
	if len(publisher.calls) != 0 {
		t.Error("zero new POIs must not publish an update")
	}
}

func TestStopDropsQueuedJobs(t *testing.T) {
	o := newTestOrchestrator(&stubPOIStore{}, &stubCoverageStore{}, &stubRecorder{}, &stubGateway{}, &stubPublisher{})
	o.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Workers are gone; a job queued now can only leave via Stop's cleanup.
	o.scheduleReconcile(square(1), poi.CategoryRestaurants)
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("Stop() repeat error = %v", err)
	}

	if len(o.jobs) != 0 {
		t.Errorf("queued jobs must be emptied on shutdown, %d left", len(o.jobs))
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	coverage := &stubCoverageStore{}
	o := newTestOrchestrator(&stubPOIStore{pois: samplePOIs(1)}, coverage, &stubRecorder{}, &stubGateway{}, &stubPublisher{})

	o.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		o.Stop(ctx)
	}()

	if _, err := o.Query(context.Background(), square(1), poi.CategoryRestaurants); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for coverage.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("reconcile job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
