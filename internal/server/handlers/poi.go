// internal/server/handlers/poi.go

package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// POIHandler handles POI query HTTP requests
type POIHandler struct {
	service poi.Service
}

// NewPOIHandler creates a new POI handler
func NewPOIHandler(service poi.Service) *POIHandler {
	return &POIHandler{
		service: service,
	}
}

// queryRequest is the wire form of a polygon+category query. Coordinates
// arrive as [lng, lat] pairs forming one closed ring.
type queryRequest struct {
	Polygon  [][]float64 `json:"polygon"`
	Category string      `json:"category"`
}

// QueryPOIs returns the POIs of a category inside a polygon
func (h *POIHandler) QueryPOIs(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	category, err := poi.ParseCategory(req.Category)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Unknown category", err)
		return
	}

	polygon, err := polygonFromPairs(req.Polygon)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid polygon", err)
		return
	}

	result, err := h.service.Query(r.Context(), polygon, category)
	if err != nil {
		switch {
		case errors.Is(err, geom.ErrInvalidGeometry):
			respondWithError(w, http.StatusBadRequest, "Invalid polygon", err)
		case errors.Is(err, poi.ErrProviderFailure):
			respondWithError(w, http.StatusBadGateway, "could not retrieve points of interest", err)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to query POIs", err)
		}
		return
	}

	// An empty result is a valid success, not a failure.
	if result.POIs == nil {
		result.POIs = []poi.POI{}
	}

	respondWithJSON(w, http.StatusOK, result)
}

// ListCategories returns the configured category names
func (h *POIHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := poi.Categories()

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"categories": names,
	})
}

// polygonFromPairs converts wire [lng, lat] pairs into a domain polygon and
// validates the ring before any store is touched.
func polygonFromPairs(pairs [][]float64) (geom.Polygon, error) {
	polygon := make(geom.Polygon, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, geom.ErrInvalidGeometry
		}
		polygon = append(polygon, geom.Point{Lng: pair[0], Lat: pair[1]})
	}

	if err := polygon.Validate(); err != nil {
		return nil, err
	}

	return polygon, nil
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil && code >= 500 {
		log.Printf("HTTP %d %s: %v", code, message, err)
	}

	response := map[string]string{"error": message}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}
