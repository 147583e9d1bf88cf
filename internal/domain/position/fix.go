// internal/domain/position/fix.go

package position

import (
	"time"

	"geowhisper/internal/domain/geo"
)

// Status describes the outcome of a position fix attempt. The three error
// states map to the platform geolocation error taxonomy and must be kept
// distinct; callers render them differently.
type Status string

const (
	StatusOK               Status = "ok"
	StatusPermissionDenied Status = "permission_denied"
	StatusUnavailable      Status = "unavailable"
	StatusTimeout          Status = "timeout"
)

// Fix is a single position sample from the platform position source. When
// Status is not StatusOK the Position field is meaningless.
type Fix struct {
	Position geo.Position
	Status   Status
	At       time.Time
}

// OK reports whether the fix carries a usable position.
func (f Fix) OK() bool {
	return f.Status == StatusOK
}
