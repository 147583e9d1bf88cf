// internal/server/handlers/zone_test.go

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/service/access"
)

// stubProvider serves a fixed zone snapshot.
type stubProvider struct {
	zones      []zone.Zone
	computedAt time.Time
	getZoneErr error
}

func (p *stubProvider) Snapshot() ([]zone.Zone, time.Time) {
	return p.zones, p.computedAt
}

func (p *stubProvider) GetZone(id string) (*zone.Zone, error) {
	if p.getZoneErr != nil {
		return nil, p.getZoneErr
	}
	for i := range p.zones {
		if p.zones[i].ID == id {
			z := p.zones[i]
			return &z, nil
		}
	}
	return nil, zone.ErrZoneNotFound
}

func testRouter(provider zone.Provider) *chi.Mux {
	gate := access.NewProximityGate(access.GateConfig{
		InteractionRadiusMeters: 500,
		CurrentZoneRadiusMeters: 500,
	})
	handler := NewZoneHandler(provider, gate)

	router := chi.NewRouter()
	router.Get("/zones", handler.ListZones)
	router.Get("/zones/{id}", handler.GetZone)
	router.Get("/zones/{id}/access", handler.CheckAccess)
	return router
}

func testProvider() *stubProvider {
	return &stubProvider{
		zones: []zone.Zone{
			{
				ID:        "tw_aaa111bbb222",
				Name:      "Tower AAA111",
				Centroid:  geo.Position{Latitude: 0, Longitude: 0},
				PostCount: 4,
			},
		},
		computedAt: time.Now(),
	}
}

func TestListZones(t *testing.T) {
	router := testRouter(testProvider())

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Zones []zoneResponse `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Zones, 1)
	assert.Equal(t, "tw_aaa111bbb222", body.Zones[0].ID)
	assert.Equal(t, "Tower AAA111", body.Zones[0].Name)
	assert.Nil(t, body.Zones[0].DistanceMeters, "distance absent without a caller position")
}

func TestListZonesWithPosition(t *testing.T) {
	router := testRouter(testProvider())

	req := httptest.NewRequest(http.MethodGet, "/zones?lat=0&lng=0.001", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Zones []zoneResponse `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Zones, 1)
	require.NotNil(t, body.Zones[0].DistanceMeters)
	assert.InDelta(t, 111.2, *body.Zones[0].DistanceMeters, 1.0)
}

func TestGetZoneNotFound(t *testing.T) {
	router := testRouter(testProvider())

	req := httptest.NewRequest(http.MethodGet, "/zones/tw_nope00000000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetZoneStaleSnapshotIsServiceUnavailable(t *testing.T) {
	provider := testProvider()
	provider.getZoneErr = fmt.Errorf("zone snapshot is 16m0s old: %w", zone.ErrSnapshotStale)
	router := testRouter(provider)

	req := httptest.NewRequest(http.MethodGet, "/zones/tw_aaa111bbb222", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/zones/tw_aaa111bbb222/access?lat=0&lng=0", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckAccess(t *testing.T) {
	router := testRouter(testProvider())

	tests := []struct {
		name        string
		query       string
		canInteract bool
		reason      string
	}{
		{
			name:        "within range",
			query:       "?lat=0&lng=0.001",
			canInteract: true,
			reason:      zone.ReasonWithinRange,
		},
		{
			name:        "too far",
			query:       "?lat=0&lng=0.01",
			canInteract: false,
			reason:      zone.ReasonTooFar,
		},
		{
			name:        "declared current zone",
			query:       "?current=true",
			canInteract: true,
			reason:      zone.ReasonCurrentZone,
		},
		{
			name:        "position denied",
			query:       "?position_status=denied",
			canInteract: false,
			reason:      zone.ReasonPositionDenied,
		},
		{
			name:        "no position",
			query:       "",
			canInteract: false,
			reason:      zone.ReasonPositionUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/zones/tw_aaa111bbb222/access"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				CanView     bool   `json:"can_view"`
				CanInteract bool   `json:"can_interact"`
				Reason      string `json:"reason"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.CanView)
			assert.Equal(t, tt.canInteract, body.CanInteract)
			assert.Equal(t, tt.reason, body.Reason)
		})
	}
}
