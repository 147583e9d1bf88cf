// internal/service/access/gate.go

package access

import (
	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/position"
	"geowhisper/internal/domain/zone"
)

// GateConfig contains configuration for the proximity gate
type GateConfig struct {
	// InteractionRadiusMeters is the maximum distance from a zone's
	// centroid at which a user may interact (send messages, like, post).
	// Distinct from the clustering radius used to form zones.
	InteractionRadiusMeters float64

	// CurrentZoneRadiusMeters is the threshold for the "current zone"
	// determination made by callers before they set the declared-current
	// flag on Evaluate.
	CurrentZoneRadiusMeters float64
}

// ProximityGate decides view-only vs interactive access to a zone from the
// user's live position. It is a stateless evaluator; decisions are computed
// fresh per request and never cached, because position changes
// continuously. It is the sole arbiter of interaction access.
type ProximityGate struct {
	config GateConfig
}

// NewProximityGate creates a new proximity gate
func NewProximityGate(config GateConfig) *ProximityGate {
	return &ProximityGate{config: config}
}

// Evaluate computes the access decision for a user against a zone. Viewing
// is never distance-restricted; only interaction is gated.
//
// When isDeclaredCurrentZone is set the caller has already determined,
// against CurrentZoneRadiusMeters, that the user is inside this zone;
// interaction is granted without a distance re-check. This keeps access
// from flapping when GPS jitter straddles the boundary.
//
// A fix without a usable position yields canInteract=false with a reason
// naming the position failure. Those reasons are error states shown as
// actionable; "too far" is a normal out-of-range state and is reported
// separately.
func (g *ProximityGate) Evaluate(fix position.Fix, z zone.Zone, isDeclaredCurrentZone bool) zone.AccessDecision {
	if isDeclaredCurrentZone {
		return zone.AccessDecision{
			CanView:     true,
			CanInteract: true,
			Reason:      zone.ReasonCurrentZone,
		}
	}

	if !fix.OK() {
		return zone.AccessDecision{
			CanView:     true,
			CanInteract: false,
			Reason:      positionReason(fix.Status),
		}
	}

	distance := geo.DistanceMeters(fix.Position, z.Centroid)

	decision := zone.AccessDecision{
		CanView:        true,
		DistanceMeters: distance,
	}

	if distance <= g.config.InteractionRadiusMeters {
		decision.CanInteract = true
		decision.Reason = zone.ReasonWithinRange
	} else {
		decision.CanInteract = false
		decision.Reason = zone.ReasonTooFar
	}

	return decision
}

// InteractionRadius returns the configured interaction radius in meters.
func (g *ProximityGate) InteractionRadius() float64 {
	return g.config.InteractionRadiusMeters
}

// CurrentZoneRadius returns the configured current-zone threshold in meters.
func (g *ProximityGate) CurrentZoneRadius() float64 {
	return g.config.CurrentZoneRadiusMeters
}

// IsCurrentZone reports whether a fix places the user inside the zone per
// the single configured current-zone threshold.
func (g *ProximityGate) IsCurrentZone(fix position.Fix, z zone.Zone) bool {
	if !fix.OK() {
		return false
	}
	return geo.DistanceMeters(fix.Position, z.Centroid) <= g.config.CurrentZoneRadiusMeters
}

func positionReason(status position.Status) string {
	switch status {
	case position.StatusPermissionDenied:
		return zone.ReasonPositionDenied
	case position.StatusTimeout:
		return zone.ReasonPositionTimeout
	default:
		return zone.ReasonPositionUnavailable
	}
}
