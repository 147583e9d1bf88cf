// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"geowhisper/internal/adapter/cache"
	"geowhisper/internal/adapter/classifier"
	"geowhisper/internal/adapter/ratelimit"
	"geowhisper/internal/adapter/storage"
	"geowhisper/internal/config"
	"geowhisper/internal/domain/chat"
	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/identity"
	"geowhisper/internal/server"
	"geowhisper/internal/service/access"
	chatService "geowhisper/internal/service/chat"
	"geowhisper/internal/service/cluster"
	"geowhisper/internal/service/rank"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Initialize storage adapters
	postStore := storage.NewPostStore(db)
	messageStore := storage.NewMessageStore(db)

	// Initialize zone clustering
	clustererConfig := cluster.TowerClustererConfig{
		RadiusMeters:      cfg.Zone.ClusterRadiusMeters,
		RefreshInterval:   cfg.Zone.RefreshInterval,
		MaxSnapshotAge:    cfg.Zone.MaxSnapshotAge,
		PostHorizonMeters: cfg.Zone.PostHorizonMeters,
		PostLimit:         cfg.Zone.PostLimit,
	}
	if cfg.Zone.PostHorizonMeters > 0 {
		clustererConfig.PostHorizonCenter = &geo.Position{
			Latitude:  cfg.Zone.RegionCenterLatitude,
			Longitude: cfg.Zone.RegionCenterLongitude,
		}
	}
	clusterer := cluster.NewTowerClusterer(postStore, clustererConfig)

	// Initialize proximity gate and ranking
	gate := access.NewProximityGate(access.GateConfig{
		InteractionRadiusMeters: cfg.Access.InteractionRadiusMeters,
		CurrentZoneRadiusMeters: cfg.Access.CurrentZoneRadiusMeters,
	})
	ranker := rank.NewHotZoneRanker()

	// Initialize chat channel
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.Chat.MessageLimit, cfg.Chat.RateLimitWindow)
	channel := chatService.NewChannel(messageStore, natsConn, limiter, chatService.ChannelConfig{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		SubscriberBuffer: cfg.Chat.SubscriberBuffer,
	})

	// Initialize moderation pipeline
	moderators := identity.NewModeratorList(cfg.Moderation.Moderators)

	var contentClassifier chat.Classifier
	if cfg.Moderation.ClassifierURL != "" {
		contentClassifier = classifier.NewHTTPClassifier(cfg.Moderation.ClassifierURL, cfg.Moderation.ClassifierAPIKey)
	}

	preCheckCache := cache.NewPreCheckCache(redisClient, cfg.Moderation.PreCheckCacheTTL)
	pipeline := chatService.NewPipeline(contentClassifier, channel, moderators, preCheckCache, chatService.PipelineConfig{
		ClassifyTimeout: cfg.Moderation.ClassifyTimeout,
		ProfanityList:   cfg.Moderation.ProfanityList,
	})

	// Start background workers
	if err := clusterer.Start(ctx); err != nil {
		log.Fatalf("Failed to start zone clusterer: %v", err)
	}

	sweeper := chatService.NewRetentionSweeper(messageStore, cfg.Chat.MessageRetention, cfg.Chat.RetentionSweepInterval)
	sweeper.Start(ctx)

	// Initialize HTTP server
	httpServer := server.NewServer(cfg, server.Deps{
		NATS:       natsConn,
		Provider:   clusterer,
		Gate:       gate,
		Ranker:     ranker,
		Activity:   messageStore,
		Channel:    channel,
		Pipeline:   pipeline,
		Moderators: moderators,
	})

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	log.Println("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	log.Println("Shutting down services...")

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop background workers
	sweeper.Stop()
	if err := clusterer.Stop(shutdownCtx); err != nil {
		log.Printf("Zone clusterer shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
