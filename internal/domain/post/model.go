// internal/domain/post/model.go

package post

import (
	"context"
	"time"

	"geowhisper/internal/domain/geo"
)

// Post is a geotagged post fetched from the external post store. The engine
// treats posts as read-only input to clustering; it never creates, mutates,
// or deletes them.
type Post struct {
	ID           string
	AuthorID     string
	Content      string
	Position     geo.Position
	CreatedAt    time.Time
	LikeCount    int
	CommentCount int
}

// Filter narrows a post listing to a geographic horizon. A nil Center means
// no geographic restriction.
type Filter struct {
	Center       *geo.Position
	WithinMeters float64
	Limit        int
}

// Store is the contract the engine consumes from the external post service.
type Store interface {
	// ListRecentPosts returns posts matching the filter, oldest first.
	ListRecentPosts(ctx context.Context, filter Filter) ([]Post, error)
}
