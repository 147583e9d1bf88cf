// internal/config/config_test.go

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Zone.ClusterRadiusMeters != 50.0 {
		t.Errorf("cluster radius = %v, want 50", cfg.Zone.ClusterRadiusMeters)
	}
	if cfg.Access.InteractionRadiusMeters != 500.0 {
		t.Errorf("interaction radius = %v, want 500", cfg.Access.InteractionRadiusMeters)
	}
	if cfg.Rank.DefaultTopN != 5 {
		t.Errorf("default topN = %d, want 5", cfg.Rank.DefaultTopN)
	}
	if cfg.Chat.MaxMessageLength != 1000 {
		t.Errorf("max message length = %d, want 1000", cfg.Chat.MaxMessageLength)
	}
	if cfg.Chat.MessageRetention != 30*24*time.Hour {
		t.Errorf("message retention = %v, want 720h", cfg.Chat.MessageRetention)
	}
	if cfg.Moderation.ClassifyTimeout != 3*time.Second {
		t.Errorf("classify timeout = %v, want 3s", cfg.Moderation.ClassifyTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ZONE_CLUSTER_RADIUS_METERS", "75")
	t.Setenv("ACCESS_INTERACTION_RADIUS_METERS", "250")
	t.Setenv("RANK_DEFAULT_TOP_N", "10")
	t.Setenv("MODERATION_MODERATORS", "mod-1,mod-2")
	t.Setenv("CHAT_MESSAGE_RETENTION", "168h")
	t.Setenv("ZONE_POST_HORIZON_METERS", "10000")
	t.Setenv("ZONE_REGION_CENTER_LAT", "51.5074")
	t.Setenv("ZONE_REGION_CENTER_LNG", "-0.1278")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Zone.ClusterRadiusMeters != 75.0 {
		t.Errorf("cluster radius = %v, want 75", cfg.Zone.ClusterRadiusMeters)
	}
	if cfg.Access.InteractionRadiusMeters != 250.0 {
		t.Errorf("interaction radius = %v, want 250", cfg.Access.InteractionRadiusMeters)
	}
	if cfg.Rank.DefaultTopN != 10 {
		t.Errorf("default topN = %d, want 10", cfg.Rank.DefaultTopN)
	}
	if len(cfg.Moderation.Moderators) != 2 {
		t.Errorf("moderators = %v, want two entries", cfg.Moderation.Moderators)
	}
	if cfg.Chat.MessageRetention != 168*time.Hour {
		t.Errorf("message retention = %v, want 168h", cfg.Chat.MessageRetention)
	}
	if cfg.Zone.PostHorizonMeters != 10000 {
		t.Errorf("post horizon = %v, want 10000", cfg.Zone.PostHorizonMeters)
	}
	if cfg.Zone.RegionCenterLatitude != 51.5074 || cfg.Zone.RegionCenterLongitude != -0.1278 {
		t.Errorf("region center = (%v, %v), want (51.5074, -0.1278)",
			cfg.Zone.RegionCenterLatitude, cfg.Zone.RegionCenterLongitude)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero cluster radius", "ZONE_CLUSTER_RADIUS_METERS", "-1"},
		{"zero interaction radius", "ACCESS_INTERACTION_RADIUS_METERS", "-1"},
		{"zero topN", "RANK_DEFAULT_TOP_N", "-1"},
		{"zero horizon", "RANK_DEFAULT_HORIZON_METERS", "-1"},
		{"zero message length", "CHAT_MAX_MESSAGE_LENGTH", "-1"},
		{"post horizon without region center", "ZONE_POST_HORIZON_METERS", "10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s should fail validation", tt.key, tt.value)
			}
		})
	}
}
