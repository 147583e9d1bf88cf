// internal/server/handlers/hotzone.go

package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"geowhisper/internal/domain/chat"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/service/rank"
)

// ActivitySource reports recent message activity for a zone.
type ActivitySource interface {
	ZoneActivity(ctx context.Context, zoneID string, since time.Time) (*chat.ActivityStats, error)
}

// HotZoneHandler handles hot zone ranking requests
type HotZoneHandler struct {
	provider zone.Provider
	ranker   *rank.HotZoneRanker
	activity ActivitySource

	defaultTopN    int
	defaultHorizon float64
	activityWindow time.Duration
}

// NewHotZoneHandler creates a new hot zone handler
func NewHotZoneHandler(provider zone.Provider, ranker *rank.HotZoneRanker, activity ActivitySource, defaultTopN int, defaultHorizon float64, activityWindow time.Duration) *HotZoneHandler {
	return &HotZoneHandler{
		provider:       provider,
		ranker:         ranker,
		activity:       activity,
		defaultTopN:    defaultTopN,
		defaultHorizon: defaultHorizon,
		activityWindow: activityWindow,
	}
}

type hotZoneResponse struct {
	zoneResponse
	Rank          int     `json:"rank"`
	Score         float64 `json:"score"`
	ActivityLevel string  `json:"activity_level,omitempty"`
	ActivityScore float64 `json:"activity_score,omitempty"`
}

// GetHotZones returns the hottest zones around the caller, ranked
func (h *HotZoneHandler) GetHotZones(w http.ResponseWriter, r *http.Request) {
	fix := fixFromQuery(r)
	if !fix.OK() {
		respondWithError(w, http.StatusBadRequest, "Valid lat and lng are required", nil)
		return
	}

	topN := h.defaultTopN
	if topNStr := r.URL.Query().Get("top_n"); topNStr != "" {
		if n, err := strconv.Atoi(topNStr); err == nil && n > 0 {
			topN = n
		}
	}

	horizon := h.defaultHorizon
	if horizonStr := r.URL.Query().Get("horizon"); horizonStr != "" {
		if hm, err := strconv.ParseFloat(horizonStr, 64); err == nil && hm > 0 {
			horizon = hm
		}
	}

	zones, _ := h.provider.Snapshot()

	ranked, err := h.ranker.Rank(fix.Position, zones, horizon, topN)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to rank zones", err)
		return
	}

	userPos := fix.Position
	responses := make([]hotZoneResponse, 0, len(ranked))
	for _, rz := range ranked {
		resp := hotZoneResponse{
			zoneResponse: toZoneResponse(rz.Zone, &userPos),
			Rank:         rz.Rank,
			Score:        rz.Zone.EngagementScore(),
		}
		h.enrichActivity(r.Context(), &resp)
		responses = append(responses, resp)
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"hot_zones": responses,
	})
}

// enrichActivity annotates a ranked zone with chat activity. Activity is
// presentation-only, so a stats failure degrades to a bare ranking.
func (h *HotZoneHandler) enrichActivity(ctx context.Context, resp *hotZoneResponse) {
	if h.activity == nil {
		return
	}

	stats, err := h.activity.ZoneActivity(ctx, resp.ID, time.Now().Add(-h.activityWindow))
	if err != nil {
		log.Printf("Failed to load activity for zone %s: %v", resp.ID, err)
		return
	}

	if stats.TotalMessages > 0 {
		resp.ActivityLevel = rank.ActivityLevel(stats.TotalMessages)
		resp.ActivityScore = rank.ActivityScore(stats.TotalMessages, stats.LastHour, stats.UniqueSenders)
	}
}
