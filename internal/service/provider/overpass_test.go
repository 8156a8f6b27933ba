package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

func testRegion() geom.Region {
	return geom.Region{{
		{Lng: 0, Lat: 0},
		{Lng: 1, Lat: 0},
		{Lng: 1, Lat: 1},
		{Lng: 0, Lat: 1},
		{Lng: 0, Lat: 0},
	}}
}

func newTestClient(serverURL string) *OverpassClient {
	// High rate so tests never wait on the limiter.
	return NewOverpassClient(serverURL, 5*time.Second, 1000)
}

func TestFetchPOIsParsesElements(t *testing.T) {
	var receivedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		receivedQuery = r.FormValue("data")
		w.Write([]byte(`{
			"elements": [
				{"type": "node", "id": 1, "lat": 0.5, "lon": 0.4, "tags": {"name": "Corner Cafe", "amenity": "cafe"}},
				{"type": "way", "id": 2, "center": {"lat": 0.6, "lon": 0.3}, "tags": {"amenity": "restaurant"}},
				{"type": "way", "id": 3, "tags": {"amenity": "bar"}}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	pois, err := client.FetchPOIs(context.Background(), testRegion(), poi.CategoryRestaurants)
	if err != nil {
		t.Fatalf("FetchPOIs() error = %v", err)
	}

	if len(pois) != 2 {
		t.Fatalf("expected 2 pois (element without coordinates skipped), got %d", len(pois))
	}

	first := pois[0]
	if first.ID != "node/1" {
		t.Errorf("expected id node/1, got %s", first.ID)
	}
	if first.Name != "Corner Cafe" {
		t.Errorf("expected name from tags, got %s", first.Name)
	}
	if first.Lat != 0.5 || first.Lng != 0.4 {
		t.Errorf("unexpected coordinates: %f, %f", first.Lat, first.Lng)
	}
	if first.Source != "overpass" {
		t.Errorf("expected source overpass, got %s", first.Source)
	}

	second := pois[1]
	if second.ID != "way/2" {
		t.Errorf("expected id way/2, got %s", second.ID)
	}
	if second.Name != poi.UnnamedPOI {
		t.Errorf("unnamed element must default to %q, got %q", poi.UnnamedPOI, second.Name)
	}
	if second.Lat != 0.6 || second.Lng != 0.3 {
		t.Errorf("way must use its center coordinates, got %f, %f", second.Lat, second.Lng)
	}

	if !strings.Contains(receivedQuery, `(poly:"0 0 0 1 1 1 1 0")`) {
		t.Errorf("query missing poly filter for region, got: %s", receivedQuery)
	}
	if !strings.Contains(receivedQuery, "out center;") {
		t.Errorf("query must request way centers, got: %s", receivedQuery)
	}
}

func TestFetchPOIsEmptyRegion(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	pois, err := client.FetchPOIs(context.Background(), nil, poi.CategoryRestaurants)
	if err != nil {
		t.Fatalf("FetchPOIs() error = %v", err)
	}
	if pois != nil {
		t.Errorf("empty region must return nothing without a request, got %v", pois)
	}
}

func TestFetchPOIsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too busy", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.FetchPOIs(context.Background(), testRegion(), poi.CategoryRestaurants); !errors.Is(err, poi.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestFetchPOIsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.FetchPOIs(context.Background(), testRegion(), poi.CategoryRestaurants); !errors.Is(err, poi.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestBuildOverpassQuerySelectors(t *testing.T) {
	query := buildOverpassQuery(testRegion(), []poi.TagSelector{
		{Key: "amenity", Values: []string{"restaurant", "cafe"}},
	})

	if !strings.HasPrefix(query, "[out:json][timeout:25];(") {
		t.Errorf("unexpected query prefix: %s", query)
	}
	if !strings.Contains(query, `node["amenity"~"^(restaurant|cafe)$"]`) {
		t.Errorf("query missing node clause: %s", query)
	}
	if !strings.Contains(query, `way["amenity"~"^(restaurant|cafe)$"]`) {
		t.Errorf("query missing way clause: %s", query)
	}
}
