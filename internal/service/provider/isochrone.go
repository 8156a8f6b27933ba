package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// IsochroneClient computes walkable-area polygons through an
// openrouteservice-compatible isochrone endpoint.
type IsochroneClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
}

// NewIsochroneClient creates a new isochrone client.
func NewIsochroneClient(baseURL, apiKey string, timeout time.Duration) *IsochroneClient {
	return &IsochroneClient{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

type isochroneRequest struct {
	Locations [][]float64 `json:"locations"`
	Range     []int       `json:"range"`
}

type isochroneResponse struct {
	Features []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// WalkableArea returns the polygon reachable on foot within the given
// number of minutes from (lat, lng).
func (c *IsochroneClient) WalkableArea(ctx context.Context, lat, lng float64, minutes int) (geom.Polygon, error) {
	body, err := json.Marshal(isochroneRequest{
		Locations: [][]float64{{lng, lat}},
		Range:     []int{minutes * 60},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}

	url := c.BaseURL + "/v2/isochrones/foot-walking"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: isochrone provider returned status %d", poi.ErrProviderFailure, resp.StatusCode)
	}

	var isoResp isochroneResponse
	if err := json.NewDecoder(resp.Body).Decode(&isoResp); err != nil {
		return nil, fmt.Errorf("%w: decoding isochrone response: %v", poi.ErrProviderFailure, err)
	}

	if len(isoResp.Features) == 0 {
		return nil, fmt.Errorf("%w: isochrone response has no features", poi.ErrProviderFailure)
	}

	region, err := geom.ParseGeoJSON(isoResp.Features[0].Geometry)
	if err != nil || region.Empty() {
		return nil, fmt.Errorf("%w: isochrone response has no usable polygon", poi.ErrProviderFailure)
	}

	polygon := region[0]
	if err := polygon.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", poi.ErrProviderFailure, err)
	}

	return polygon, nil
}
