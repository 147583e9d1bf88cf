// internal/adapter/storage/post_store.go

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/post"
)

// PostStore provides read access to posts. Posts are authored elsewhere;
// the zone engine only consumes them as clustering input.
type PostStore struct {
	db *pgxpool.Pool
}

// NewPostStore creates a new post store
func NewPostStore(db *pgxpool.Pool) *PostStore {
	return &PostStore{
		db: db,
	}
}

// ListRecentPosts returns recent posts, newest bounded by filter.Limit.
// Geographic filtering happens in Go against the same distance function
// the clusterer uses, so a post the database considers in range is never
// re-judged out of range by the zone engine.
func (s *PostStore) ListRecentPosts(ctx context.Context, filter post.Filter) ([]post.Post, error) {
	query := `
		SELECT id, author_id, content, latitude, longitude, created_at,
		       like_count, comment_count
		FROM posts
		ORDER BY created_at DESC
		LIMIT $1
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()

	var posts []post.Post
	for rows.Next() {
		var p post.Post
		if err := rows.Scan(
			&p.ID,
			&p.AuthorID,
			&p.Content,
			&p.Position.Latitude,
			&p.Position.Longitude,
			&p.CreatedAt,
			&p.LikeCount,
			&p.CommentCount,
		); err != nil {
			return nil, fmt.Errorf("error scanning post: %w", err)
		}

		if filter.Center != nil && filter.WithinMeters > 0 {
			if geo.DistanceMeters(*filter.Center, p.Position) > filter.WithinMeters {
				continue
			}
		}

		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}
