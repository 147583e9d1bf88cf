// internal/service/cluster/clusterer_test.go

package cluster

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/post"
	"geowhisper/internal/domain/zone"
)

func makePost(id string, lat, lng float64, createdAt time.Time) post.Post {
	return post.Post{
		ID:        id,
		Position:  geo.Position{Latitude: lat, Longitude: lng},
		CreatedAt: createdAt,
	}
}

func TestClusterSeparatesDistantPosts(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Two posts ~11m apart, a third ~1.1km away.
	posts := []post.Post{
		makePost("p1", 0, 0, base),
		makePost("p2", 0, 0.0001, base.Add(time.Minute)),
		makePost("p3", 0, 0.01, base.Add(2*time.Minute)),
	}

	zones, err := Cluster(posts, 50)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	if len(zones) != 2 {
		t.Fatalf("Cluster() produced %d zones, want 2", len(zones))
	}

	var near, far *zone.Zone
	for i := range zones {
		switch zones[i].PostCount {
		case 2:
			near = &zones[i]
		case 1:
			far = &zones[i]
		}
	}

	if near == nil || far == nil {
		t.Fatalf("expected one zone of 2 posts and one of 1, got %+v", zones)
	}

	if near.MemberPostIDs[0] != "p1" || near.MemberPostIDs[1] != "p2" {
		t.Errorf("near zone members = %v, want [p1 p2]", near.MemberPostIDs)
	}
	if far.MemberPostIDs[0] != "p3" {
		t.Errorf("far zone members = %v, want [p3]", far.MemberPostIDs)
	}
}

func TestClusterIDStability(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	posts := []post.Post{
		makePost("p1", 0, 0, base),
		makePost("p2", 0, 0.0001, base.Add(time.Minute)),
	}

	first, err := Cluster(posts, 50)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	// Same membership in reversed input order must yield the same ID.
	reversed := []post.Post{posts[1], posts[0]}
	second, err := Cluster(reversed, 50)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected single zone, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("zone ID changed across runs: %s vs %s", first[0].ID, second[0].ID)
	}
}

func TestClusterZoneIDFormat(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	zones, err := Cluster([]post.Post{makePost("p1", 0, 0, base)}, 50)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	id := zones[0].ID
	if !strings.HasPrefix(id, "tw_") {
		t.Errorf("zone ID %q missing tw_ prefix", id)
	}
	if len(id) != len("tw_")+12 {
		t.Errorf("zone ID %q has wrong length", id)
	}
	for _, r := range strings.TrimPrefix(id, "tw_") {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("zone ID %q contains non-hex character %q", id, r)
		}
	}

	if !strings.HasPrefix(zones[0].Name, "Tower ") {
		t.Errorf("zone name %q missing Tower prefix", zones[0].Name)
	}
}

func TestClusterCentroidIsMean(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	posts := []post.Post{
		makePost("p1", 0, 0, base),
		makePost("p2", 0, 0.0002, base.Add(time.Minute)),
	}

	zones, err := Cluster(posts, 50)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("expected single zone, got %d", len(zones))
	}

	if got := zones[0].Centroid.Longitude; got < 0.00009 || got > 0.00011 {
		t.Errorf("centroid longitude = %v, want ~0.0001", got)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	zones, err := Cluster(nil, 50)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(zones) != 0 {
		t.Errorf("Cluster(nil) = %v, want empty", zones)
	}
}

func TestClusterInvalidRadius(t *testing.T) {
	if _, err := Cluster(nil, 0); !errors.Is(err, zone.ErrInvalidRadius) {
		t.Errorf("Cluster(radius=0) error = %v, want ErrInvalidRadius", err)
	}
	if _, err := Cluster(nil, -5); !errors.Is(err, zone.ErrInvalidRadius) {
		t.Errorf("Cluster(radius=-5) error = %v, want ErrInvalidRadius", err)
	}
}

type stubPostStore struct {
	posts      []post.Post
	err        error
	lastFilter post.Filter
}

func (s *stubPostStore) ListRecentPosts(ctx context.Context, filter post.Filter) ([]post.Post, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.posts, nil
}

func TestTowerClustererRefresh(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stubPostStore{posts: []post.Post{
		makePost("p1", 0, 0, base),
		makePost("p2", 0, 0.01, base.Add(time.Minute)),
	}}

	tc := NewTowerClusterer(store, TowerClustererConfig{
		RadiusMeters:   50,
		MaxSnapshotAge: time.Hour,
	})

	if err := tc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	zones, computedAt := tc.Snapshot()
	if len(zones) != 2 {
		t.Fatalf("snapshot has %d zones, want 2", len(zones))
	}
	if computedAt.IsZero() {
		t.Error("snapshot computedAt is zero")
	}

	z, err := tc.GetZone(zones[0].ID)
	if err != nil {
		t.Fatalf("GetZone() error = %v", err)
	}
	if z.ID != zones[0].ID {
		t.Errorf("GetZone() returned %s, want %s", z.ID, zones[0].ID)
	}

	if _, err := tc.GetZone("tw_missing00000"); !errors.Is(err, zone.ErrZoneNotFound) {
		t.Errorf("GetZone(missing) error = %v, want ErrZoneNotFound", err)
	}
}

func TestTowerClustererRefreshAppliesPostHorizon(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stubPostStore{posts: []post.Post{makePost("p1", 51.5, -0.1, base)}}

	center := geo.Position{Latitude: 51.5, Longitude: -0.1}
	tc := NewTowerClusterer(store, TowerClustererConfig{
		RadiusMeters:      50,
		MaxSnapshotAge:    time.Hour,
		PostHorizonMeters: 10000,
		PostHorizonCenter: &center,
		PostLimit:         500,
	})

	if err := tc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if store.lastFilter.Center == nil {
		t.Fatal("Refresh() did not set a filter center for the post horizon")
	}
	if *store.lastFilter.Center != center {
		t.Errorf("filter center = %+v, want %+v", *store.lastFilter.Center, center)
	}
	if store.lastFilter.WithinMeters != 10000 {
		t.Errorf("filter withinMeters = %v, want 10000", store.lastFilter.WithinMeters)
	}
	if store.lastFilter.Limit != 500 {
		t.Errorf("filter limit = %d, want 500", store.lastFilter.Limit)
	}
}

func TestTowerClustererRefreshWithoutHorizonFetchesAll(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stubPostStore{posts: []post.Post{makePost("p1", 0, 0, base)}}

	tc := NewTowerClusterer(store, TowerClustererConfig{
		RadiusMeters:   50,
		MaxSnapshotAge: time.Hour,
	})

	if err := tc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if store.lastFilter.Center != nil {
		t.Errorf("filter center = %+v, want nil without a horizon", *store.lastFilter.Center)
	}
	if store.lastFilter.WithinMeters != 0 {
		t.Errorf("filter withinMeters = %v, want 0", store.lastFilter.WithinMeters)
	}
}

func TestTowerClustererStaleSnapshotIsNotZoneNotFound(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stubPostStore{posts: []post.Post{makePost("p1", 0, 0, base)}}

	tc := NewTowerClusterer(store, TowerClustererConfig{
		RadiusMeters:   50,
		MaxSnapshotAge: 10 * time.Millisecond,
	})

	if err := tc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	zones, _ := tc.Snapshot()
	time.Sleep(20 * time.Millisecond)

	_, err := tc.GetZone(zones[0].ID)
	if !errors.Is(err, zone.ErrSnapshotStale) {
		t.Errorf("GetZone() on stale snapshot error = %v, want ErrSnapshotStale", err)
	}
	if errors.Is(err, zone.ErrZoneNotFound) {
		t.Errorf("GetZone() on stale snapshot reported the zone as missing: %v", err)
	}
}

func TestTowerClustererRefreshFailureKeepsSnapshot(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stubPostStore{posts: []post.Post{makePost("p1", 0, 0, base)}}

	tc := NewTowerClusterer(store, TowerClustererConfig{
		RadiusMeters:   50,
		MaxSnapshotAge: time.Hour,
	})

	if err := tc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	store.err = errors.New("db down")
	if err := tc.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() with failing store returned nil error")
	}

	zones, _ := tc.Snapshot()
	if len(zones) != 1 {
		t.Errorf("failed refresh dropped the previous snapshot, have %d zones", len(zones))
	}
}
