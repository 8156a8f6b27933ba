package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// Gateway fetches POIs for a region and category from an external source.
// The source may be slow, rate-limited, or partially fail.
type Gateway interface {
	FetchPOIs(ctx context.Context, region geom.Region, category poi.Category) ([]poi.POI, error)
}

// OverpassClient queries an Overpass API instance for OSM points of
// interest.
type OverpassClient struct {
	HTTPClient *http.Client
	BaseURL    string
	UserAgent  string
	limiter    *rate.Limiter
}

// overpassResponse is the subset of the Overpass JSON output we consume.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewOverpassClient creates a new Overpass API client. requestsPerSecond
// gates outgoing calls; public Overpass instances ban aggressive clients.
func NewOverpassClient(baseURL string, timeout time.Duration, requestsPerSecond float64) *OverpassClient {
	return &OverpassClient{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL:   baseURL,
		UserAgent: "walkabout/1.0",
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// FetchPOIs queries the category's tag selectors inside every ring of the
// region. Elements without usable coordinates are skipped, not treated as
// errors; any transport or decode failure wraps poi.ErrProviderFailure.
func (c *OverpassClient) FetchPOIs(ctx context.Context, region geom.Region, category poi.Category) ([]poi.POI, error) {
	if region.Empty() {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}

	query := buildOverpassQuery(region, category.Selectors())

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: overpass returned status %d", poi.ErrProviderFailure, resp.StatusCode)
	}

	var overpassResp overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&overpassResp); err != nil {
		return nil, fmt.Errorf("%w: decoding overpass response: %v", poi.ErrProviderFailure, err)
	}

	var pois []poi.POI
	for _, el := range overpassResp.Elements {
		p, ok := elementToPOI(el, category)
		if !ok {
			continue
		}
		pois = append(pois, p)
	}

	return pois, nil
}

// buildOverpassQuery renders an Overpass QL union of node and way clauses,
// one pair per (ring, selector).
func buildOverpassQuery(region geom.Region, selectors []poi.TagSelector) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];(")

	for _, ring := range region {
		polyFilter := overpassPolyFilter(ring)
		for _, sel := range selectors {
			tagFilter := fmt.Sprintf("[%q~%q]", sel.Key, "^("+strings.Join(sel.Values, "|")+")$")
			b.WriteString("node" + tagFilter + polyFilter + ";")
			b.WriteString("way" + tagFilter + polyFilter + ";")
		}
	}

	b.WriteString(");out center;")
	return b.String()
}

// overpassPolyFilter renders a ring as Overpass's lat-lng poly filter. The
// closing point is dropped; Overpass closes the ring itself.
func overpassPolyFilter(ring geom.Polygon) string {
	pts := ring
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}

	coords := make([]string, 0, len(pts)*2)
	for _, pt := range pts {
		coords = append(coords,
			strconv.FormatFloat(pt.Lat, 'f', -1, 64),
			strconv.FormatFloat(pt.Lng, 'f', -1, 64),
		)
	}

	return `(poly:"` + strings.Join(coords, " ") + `")`
}

// elementToPOI maps one Overpass element onto the domain model. Ways carry
// their coordinates in the computed center.
func elementToPOI(el overpassElement, category poi.Category) (poi.POI, bool) {
	var lat, lng float64
	switch {
	case el.Lat != nil && el.Lon != nil:
		lat, lng = *el.Lat, *el.Lon
	case el.Center != nil:
		lat, lng = el.Center.Lat, el.Center.Lon
	default:
		return poi.POI{}, false
	}

	name := el.Tags["name"]
	if name == "" {
		name = poi.UnnamedPOI
	}

	return poi.POI{
		ID:       fmt.Sprintf("%s/%d", el.Type, el.ID),
		Name:     name,
		Category: category,
		Lat:      lat,
		Lng:      lng,
		Tags:     el.Tags,
		Source:   "overpass",
	}, true
}
