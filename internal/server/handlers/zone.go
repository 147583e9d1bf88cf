// internal/server/handlers/zone.go

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/service/access"
)

// ZoneHandler handles zone-related HTTP requests
type ZoneHandler struct {
	provider zone.Provider
	gate     *access.ProximityGate
}

// NewZoneHandler creates a new zone handler
func NewZoneHandler(provider zone.Provider, gate *access.ProximityGate) *ZoneHandler {
	return &ZoneHandler{
		provider: provider,
		gate:     gate,
	}
}

type zoneResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	PostCount      int       `json:"post_count"`
	ComputedAt     time.Time `json:"computed_at"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
}

func toZoneResponse(z zone.Zone, userPos *geo.Position) zoneResponse {
	resp := zoneResponse{
		ID:         z.ID,
		Name:       z.Name,
		Latitude:   z.Centroid.Latitude,
		Longitude:  z.Centroid.Longitude,
		PostCount:  z.PostCount,
		ComputedAt: z.ComputedAt,
	}
	if userPos != nil {
		d := geo.DistanceMeters(*userPos, z.Centroid)
		resp.DistanceMeters = &d
	}
	return resp
}

// ListZones returns the current zone snapshot
func (h *ZoneHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, computedAt := h.provider.Snapshot()

	var userPos *geo.Position
	if fix := fixFromQuery(r); fix.OK() {
		userPos = &fix.Position
	}

	responses := make([]zoneResponse, 0, len(zones))
	for _, z := range zones {
		responses = append(responses, toZoneResponse(z, userPos))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"zones":       responses,
		"computed_at": computedAt,
	})
}

// GetZone returns a single zone by ID
func (h *ZoneHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	z, err := h.provider.GetZone(id)
	if err != nil {
		if errors.Is(err, zone.ErrZoneNotFound) {
			respondWithError(w, http.StatusNotFound, "Zone not found", err)
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "Zone snapshot unavailable", err)
		return
	}

	var userPos *geo.Position
	if fix := fixFromQuery(r); fix.OK() {
		userPos = &fix.Position
	}

	respondWithJSON(w, http.StatusOK, toZoneResponse(*z, userPos))
}

// CheckAccess evaluates whether the caller may interact with a zone
func (h *ZoneHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	z, err := h.provider.GetZone(id)
	if err != nil {
		if errors.Is(err, zone.ErrZoneNotFound) {
			respondWithError(w, http.StatusNotFound, "Zone not found", err)
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "Zone snapshot unavailable", err)
		return
	}

	fix := fixFromQuery(r)
	declaredCurrent := r.URL.Query().Get("current") == "true"

	decision := h.gate.Evaluate(fix, *z, declaredCurrent)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"zone_id":         z.ID,
		"can_view":        decision.CanView,
		"can_interact":    decision.CanInteract,
		"distance_meters": decision.DistanceMeters,
		"reason":          decision.Reason,
	})
}
