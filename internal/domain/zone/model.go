// internal/domain/zone/model.go

package zone

import (
	"errors"
	"time"

	"geowhisper/internal/domain/geo"
)

// Configuration errors. These are caller bugs, reported synchronously and
// never retried.
var (
	ErrInvalidRadius  = errors.New("cluster radius must be greater than zero")
	ErrInvalidHorizon = errors.New("horizon must be greater than zero")
	ErrInvalidTopN    = errors.New("topN must be greater than zero")
	ErrZoneNotFound   = errors.New("zone not found")
)

// ErrSnapshotStale is a dependency degradation state, distinct from
// ErrZoneNotFound: the zone may well exist, but the snapshot is too old to
// answer for it.
var ErrSnapshotStale = errors.New("zone snapshot is stale")

// Zone represents a geographic cluster of posts treated as one chat room
// (a "tower"). Zones are derived from the current post set on each
// clustering pass, never stored authoritatively.
type Zone struct {
	ID            string
	Name          string
	Centroid      geo.Position
	PostCount     int
	MemberPostIDs []string // sorted ascending for deterministic output
	ComputedAt    time.Time
}

// EngagementScore returns the zone's current engagement score used for hot
// zone ranking. Today this is the post count; message volume folds in at
// the ranking layer where chat activity stats are available.
func (z Zone) EngagementScore() float64 {
	return float64(z.PostCount)
}

// RankedZone is a zone annotated with the caller's distance and hot-zone
// rank. Rank 0 is a sentinel meaning "not a hot zone", not an ordinal.
type RankedZone struct {
	Zone
	DistanceFromUser float64
	Rank             int
}

// Access decision reasons. TooFar is a normal out-of-range state, not an
// error; the position reasons are error states requiring user action
// (grant permission, retry) and must never be collapsed into TooFar.
const (
	ReasonCurrentZone         = "current zone"
	ReasonWithinRange         = "within range"
	ReasonTooFar              = "too far"
	ReasonPositionDenied      = "position denied"
	ReasonPositionUnavailable = "position unavailable"
	ReasonPositionTimeout     = "position timeout"
)

// AccessDecision is the result of a proximity gate evaluation. Computed
// fresh per request; never cached, because position changes continuously.
type AccessDecision struct {
	CanView        bool
	CanInteract    bool
	DistanceMeters float64
	Reason         string
}

// Provider exposes the current zone snapshot to readers. Readers see either
// the previous or the next snapshot, never a half-built one.
type Provider interface {
	// Snapshot returns the current zone set and when it was computed.
	Snapshot() ([]Zone, time.Time)

	// GetZone returns a zone from the current snapshot by ID.
	GetZone(id string) (*Zone, error)
}
