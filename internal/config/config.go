// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Redis       RedisConfig
	Zone        ZoneConfig
	Access      AccessConfig
	Rank        RankConfig
	Chat        ChatConfig
	Moderation  ModerationConfig
	Position    PositionConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// RedisConfig holds redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ZoneConfig holds clustering configuration. PostHorizonMeters bounds the
// clustering input to posts near the deployment's region center; it
// requires RegionCenterLatitude/Longitude to be set.
type ZoneConfig struct {
	ClusterRadiusMeters   float64
	RefreshInterval       time.Duration
	MaxSnapshotAge        time.Duration
	PostHorizonMeters     float64
	RegionCenterLatitude  float64
	RegionCenterLongitude float64
	PostLimit             int
}

// AccessConfig holds proximity gate configuration.
// CurrentZoneRadiusMeters is the single named threshold for the "current
// zone" determination; no other threshold is consulted for that purpose
// anywhere in the engine.
type AccessConfig struct {
	InteractionRadiusMeters float64
	CurrentZoneRadiusMeters float64
}

// RankConfig holds hot zone ranking configuration
type RankConfig struct {
	DefaultHorizonMeters float64
	DefaultTopN          int
	ActivityWindow       time.Duration
}

// ChatConfig holds chat channel configuration
type ChatConfig struct {
	MaxMessageLength       int
	HistoryLimit           int
	SubscriberBuffer       int
	MessageLimit           int
	RateLimitWindow        time.Duration
	MessageRetention       time.Duration
	RetentionSweepInterval time.Duration
}

// ModerationConfig holds moderation pipeline configuration
type ModerationConfig struct {
	ClassifierURL    string
	ClassifierAPIKey string
	ClassifyTimeout  time.Duration
	PreCheckCacheTTL time.Duration
	ProfanityList    []string
	Moderators       []string
}

// PositionConfig holds position watch debounce configuration
type PositionConfig struct {
	MinDistanceMeters float64
	MaxInterval       time.Duration
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "geowhisper"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Zone: ZoneConfig{
			ClusterRadiusMeters:   getEnvAsFloat("ZONE_CLUSTER_RADIUS_METERS", 50.0),
			RefreshInterval:       getEnvAsDuration("ZONE_REFRESH_INTERVAL", 1*time.Minute),
			MaxSnapshotAge:        getEnvAsDuration("ZONE_MAX_SNAPSHOT_AGE", 15*time.Minute),
			PostHorizonMeters:     getEnvAsFloat("ZONE_POST_HORIZON_METERS", 0),
			RegionCenterLatitude:  getEnvAsFloat("ZONE_REGION_CENTER_LAT", 0),
			RegionCenterLongitude: getEnvAsFloat("ZONE_REGION_CENTER_LNG", 0),
			PostLimit:             getEnvAsInt("ZONE_POST_LIMIT", 5000),
		},
		Access: AccessConfig{
			InteractionRadiusMeters: getEnvAsFloat("ACCESS_INTERACTION_RADIUS_METERS", 500.0),
			CurrentZoneRadiusMeters: getEnvAsFloat("ACCESS_CURRENT_ZONE_RADIUS_METERS", 500.0),
		},
		Rank: RankConfig{
			DefaultHorizonMeters: getEnvAsFloat("RANK_DEFAULT_HORIZON_METERS", 5000.0),
			DefaultTopN:          getEnvAsInt("RANK_DEFAULT_TOP_N", 5),
			ActivityWindow:       getEnvAsDuration("RANK_ACTIVITY_WINDOW", 24*time.Hour),
		},
		Chat: ChatConfig{
			MaxMessageLength:       getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 1000),
			HistoryLimit:           getEnvAsInt("CHAT_HISTORY_LIMIT", 100),
			SubscriberBuffer:       getEnvAsInt("CHAT_SUBSCRIBER_BUFFER", 256),
			MessageLimit:           getEnvAsInt("CHAT_MESSAGE_LIMIT", 100),
			RateLimitWindow:        getEnvAsDuration("CHAT_RATE_LIMIT_WINDOW", 1*time.Minute),
			MessageRetention:       getEnvAsDuration("CHAT_MESSAGE_RETENTION", 30*24*time.Hour),
			RetentionSweepInterval: getEnvAsDuration("CHAT_RETENTION_SWEEP_INTERVAL", 1*time.Hour),
		},
		Moderation: ModerationConfig{
			ClassifierURL:    getEnv("MODERATION_CLASSIFIER_URL", ""),
			ClassifierAPIKey: getEnv("MODERATION_CLASSIFIER_API_KEY", ""),
			ClassifyTimeout:  getEnvAsDuration("MODERATION_CLASSIFY_TIMEOUT", 3*time.Second),
			PreCheckCacheTTL: getEnvAsDuration("MODERATION_PRECHECK_CACHE_TTL", 10*time.Minute),
			ProfanityList:    getEnvAsSlice("MODERATION_PROFANITY_LIST", []string{}),
			Moderators:       getEnvAsSlice("MODERATION_MODERATORS", []string{}),
		},
		Position: PositionConfig{
			MinDistanceMeters: getEnvAsFloat("POSITION_MIN_DISTANCE_METERS", 25.0),
			MaxInterval:       getEnvAsDuration("POSITION_MAX_INTERVAL", 30*time.Second),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Zone.ClusterRadiusMeters <= 0 {
		return fmt.Errorf("zone cluster radius must be greater than zero, got %v", config.Zone.ClusterRadiusMeters)
	}

	if config.Zone.PostHorizonMeters > 0 &&
		config.Zone.RegionCenterLatitude == 0 && config.Zone.RegionCenterLongitude == 0 {
		return fmt.Errorf("post horizon requires a region center")
	}

	if config.Access.InteractionRadiusMeters <= 0 {
		return fmt.Errorf("interaction radius must be greater than zero, got %v", config.Access.InteractionRadiusMeters)
	}

	if config.Access.CurrentZoneRadiusMeters <= 0 {
		return fmt.Errorf("current zone radius must be greater than zero, got %v", config.Access.CurrentZoneRadiusMeters)
	}

	if config.Rank.DefaultTopN <= 0 {
		return fmt.Errorf("default topN must be greater than zero, got %d", config.Rank.DefaultTopN)
	}

	if config.Rank.DefaultHorizonMeters <= 0 {
		return fmt.Errorf("default horizon must be greater than zero, got %v", config.Rank.DefaultHorizonMeters)
	}

	if config.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be greater than zero, got %d", config.Chat.MaxMessageLength)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
