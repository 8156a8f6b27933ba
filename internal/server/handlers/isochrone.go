// internal/server/handlers/isochrone.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"walkabout/internal/domain/poi"
)

// IsochroneHandler handles walkable-area HTTP requests
type IsochroneHandler struct {
	service poi.IsochroneService
}

// NewIsochroneHandler creates a new isochrone handler
func NewIsochroneHandler(service poi.IsochroneService) *IsochroneHandler {
	return &IsochroneHandler{
		service: service,
	}
}

type isochroneRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Minutes int     `json:"minutes"`
}

// ComputeIsochrone returns the polygon walkable from a point within the
// requested number of minutes
func (h *IsochroneHandler) ComputeIsochrone(w http.ResponseWriter, r *http.Request) {
	var req isochroneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Minutes <= 0 || req.Minutes > 60 {
		respondWithError(w, http.StatusBadRequest, "Minutes must be between 1 and 60", nil)
		return
	}

	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		respondWithError(w, http.StatusBadRequest, "Invalid coordinates", nil)
		return
	}

	polygon, err := h.service.WalkableArea(r.Context(), req.Lat, req.Lng, req.Minutes)
	if err != nil {
		if errors.Is(err, poi.ErrProviderFailure) {
			respondWithError(w, http.StatusBadGateway, "could not compute walkable area", err)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to compute isochrone", err)
		return
	}

	pairs := make([][]float64, 0, len(polygon))
	for _, pt := range polygon {
		pairs = append(pairs, []float64{pt.Lng, pt.Lat})
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"polygon": pairs,
	})
}
