// internal/service/cluster/clusterer.go

package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/post"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/metrics"
)

// TowerClustererConfig contains configuration for the tower clusterer
type TowerClustererConfig struct {
	RadiusMeters    float64
	RefreshInterval time.Duration
	MaxSnapshotAge  time.Duration

	// PostHorizonMeters bounds the fetch to posts within that distance of
	// PostHorizonCenter. Both must be set for the horizon to apply; the
	// default is the full post set.
	PostHorizonMeters float64
	PostHorizonCenter *geo.Position

	PostLimit int
}

// TowerClusterer groups posts into zones by proximity and publishes the
// result as an atomic snapshot. Clustering is a periodic batch recompute,
// not a per-request computation; readers always see a complete zone set.
type TowerClusterer struct {
	posts  post.Store
	config TowerClustererConfig

	mu         sync.RWMutex
	zones      []zone.Zone
	computedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTowerClusterer creates a new tower clusterer
func NewTowerClusterer(posts post.Store, config TowerClustererConfig) *TowerClusterer {
	ctx, cancel := context.WithCancel(context.Background())

	return &TowerClusterer{
		posts:  posts,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Cluster groups posts into zones using single-linkage agglomerative
// clustering: a post joins the nearest existing zone whose current centroid
// is within radiusMeters, otherwise it seeds a new zone. Posts are
// processed in ascending createdAt order (ties broken by post ID) so the
// output is deterministic for a fixed input set and radius. After
// assignment each zone's centroid is the arithmetic mean of its member
// positions.
func Cluster(posts []post.Post, radiusMeters float64) ([]zone.Zone, error) {
	if radiusMeters <= 0 {
		return nil, zone.ErrInvalidRadius
	}

	if len(posts) == 0 {
		return []zone.Zone{}, nil
	}

	// Fix processing order: oldest posts seed zones first.
	ordered := make([]post.Post, len(posts))
	copy(ordered, posts)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	type building struct {
		seedPostID string
		centroid   geo.Position
		members    []post.Post
	}

	var clusters []*building

	for i := range ordered {
		p := ordered[i]

		// Join the nearest zone within the radius, if any.
		var nearest *building
		minDistance := radiusMeters
		for _, c := range clusters {
			d := geo.DistanceMeters(p.Position, c.centroid)
			if d <= minDistance {
				nearest = c
				minDistance = d
			}
		}

		if nearest == nil {
			clusters = append(clusters, &building{
				seedPostID: p.ID,
				centroid:   p.Position,
				members:    []post.Post{p},
			})
			continue
		}

		nearest.members = append(nearest.members, p)

		// Centroid moves as posts join; keep it the running mean so later
		// assignments see the current center.
		positions := make([]geo.Position, len(nearest.members))
		for j, m := range nearest.members {
			positions[j] = m.Position
		}
		nearest.centroid = geo.Centroid(positions)
	}

	now := time.Now()
	zones := make([]zone.Zone, 0, len(clusters))
	for _, c := range clusters {
		memberIDs := make([]string, len(c.members))
		for j, m := range c.members {
			memberIDs[j] = m.ID
		}
		sort.Strings(memberIDs)

		id := deriveZoneID(c.seedPostID)
		zones = append(zones, zone.Zone{
			ID:            id,
			Name:          zoneName(id),
			Centroid:      c.centroid,
			PostCount:     len(c.members),
			MemberPostIDs: memberIDs,
			ComputedAt:    now,
		})
	}

	// Stable output order for a stable input set.
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })

	return zones, nil
}

// deriveZoneID derives a stable zone ID from the earliest member's post ID.
// Because posts are processed oldest-first, the seed post is the earliest
// member, so an unchanged membership set always yields the same ID. The
// result contains only hex characters, safe for use as a routing key.
func deriveZoneID(seedPostID string) string {
	sum := sha256.Sum256([]byte(seedPostID))
	return "tw_" + hex.EncodeToString(sum[:])[:12]
}

// zoneName derives the human label shown for a zone.
func zoneName(zoneID string) string {
	short := strings.TrimPrefix(zoneID, "tw_")
	if len(short) > 6 {
		short = short[:6]
	}
	return "Tower " + strings.ToUpper(short)
}

// Refresh fetches the current post set and recomputes the zone snapshot.
// On a fetch failure the previous snapshot keeps serving and its age keeps
// growing; staleness is surfaced through Snapshot and bounded by
// MaxSnapshotAge in GetZone.
func (tc *TowerClusterer) Refresh(ctx context.Context) error {
	filter := post.Filter{Limit: tc.config.PostLimit}
	if tc.config.PostHorizonMeters > 0 && tc.config.PostHorizonCenter != nil {
		filter.Center = tc.config.PostHorizonCenter
		filter.WithinMeters = tc.config.PostHorizonMeters
	}

	posts, err := tc.posts.ListRecentPosts(ctx, filter)
	if err != nil {
		metrics.ClusteringFailuresTotal.Inc()
		return fmt.Errorf("error listing posts for clustering: %w", err)
	}

	zones, err := Cluster(posts, tc.config.RadiusMeters)
	if err != nil {
		metrics.ClusteringFailuresTotal.Inc()
		return fmt.Errorf("error clustering posts: %w", err)
	}

	tc.mu.Lock()
	tc.zones = zones
	tc.computedAt = time.Now()
	tc.mu.Unlock()

	metrics.ClusteringRunsTotal.Inc()
	metrics.ZonesCurrent.Set(float64(len(zones)))

	return nil
}

// Start begins the periodic recompute loop. The first refresh runs
// immediately so readers do not wait a full interval for zones.
func (tc *TowerClusterer) Start(ctx context.Context) error {
	if err := tc.Refresh(ctx); err != nil {
		return fmt.Errorf("initial clustering refresh failed: %w", err)
	}

	tc.wg.Add(1)
	go tc.run()

	return nil
}

func (tc *TowerClusterer) run() {
	defer tc.wg.Done()

	ticker := time.NewTicker(tc.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tc.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(tc.ctx, tc.config.RefreshInterval)
			if err := tc.Refresh(ctx); err != nil {
				log.Printf("Zone refresh failed, serving stale snapshot: %v", err)
			}
			cancel()
		}
	}
}

// Stop gracefully stops the clusterer
func (tc *TowerClusterer) Stop(ctx context.Context) error {
	tc.cancel()

	c := make(chan struct{})
	go func() {
		tc.wg.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current zone set and when it was computed. The
// returned slice is shared and must be treated as read-only.
func (tc *TowerClusterer) Snapshot() ([]zone.Zone, time.Time) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	return tc.zones, tc.computedAt
}

// GetZone returns a zone from the current snapshot by ID. A zone is
// reported missing both when it never existed and when it dropped out of
// the snapshot because its member set emptied. A snapshot older than
// MaxSnapshotAge is refused; stale serving is bounded, not indefinite.
func (tc *TowerClusterer) GetZone(id string) (*zone.Zone, error) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if tc.config.MaxSnapshotAge > 0 && !tc.computedAt.IsZero() &&
		time.Since(tc.computedAt) > tc.config.MaxSnapshotAge {
		return nil, fmt.Errorf("zone snapshot is %v old: %w", time.Since(tc.computedAt).Round(time.Second), zone.ErrSnapshotStale)
	}

	for i := range tc.zones {
		if tc.zones[i].ID == id {
			z := tc.zones[i]
			return &z, nil
		}
	}

	return nil, zone.ErrZoneNotFound
}
