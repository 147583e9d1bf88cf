// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geowhisper/internal/config"
	"geowhisper/internal/domain/identity"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/server/handlers"
	"geowhisper/internal/service/access"
	chatsvc "geowhisper/internal/service/chat"
	possvc "geowhisper/internal/service/position"
	"geowhisper/internal/service/rank"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// Deps bundles the services the HTTP layer exposes.
type Deps struct {
	NATS       *nats.Conn
	Provider   zone.Provider
	Gate       *access.ProximityGate
	Ranker     *rank.HotZoneRanker
	Activity   handlers.ActivitySource
	Channel    *chatsvc.Channel
	Pipeline   *chatsvc.Pipeline
	Moderators *identity.ModeratorList
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Name"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	zoneHandler := handlers.NewZoneHandler(deps.Provider, deps.Gate)
	hotZoneHandler := handlers.NewHotZoneHandler(
		deps.Provider,
		deps.Ranker,
		deps.Activity,
		cfg.Rank.DefaultTopN,
		cfg.Rank.DefaultHorizonMeters,
		cfg.Rank.ActivityWindow,
	)
	chatHandler := handlers.NewChatHandler(deps.Channel, deps.Pipeline, deps.Provider, deps.Gate, deps.Moderators)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Zones API
			r.Route("/zones", func(r chi.Router) {
				r.Get("/", zoneHandler.ListZones)
				r.Get("/hot", hotZoneHandler.GetHotZones)
				r.Get("/{id}", zoneHandler.GetZone)
				r.Get("/{id}/access", zoneHandler.CheckAccess)

				// Zone chat
				r.Route("/{id}/messages", func(r chi.Router) {
					r.Get("/", chatHandler.GetMessages)
					r.Post("/", chatHandler.SendMessage)
					r.Post("/{messageID}/moderate", chatHandler.ModerateMessage)
				})
			})
		})
	})

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint for live zone chat
	router.Get("/ws/zones/{id}", handlers.ZoneWebSocketHandler(handlers.ZoneWebSocketDeps{
		NATS:       deps.NATS,
		Channel:    deps.Channel,
		Pipeline:   deps.Pipeline,
		Provider:   deps.Provider,
		Gate:       deps.Gate,
		Moderators: deps.Moderators,
		Debounce: possvc.DebounceConfig{
			MinDistanceMeters: cfg.Position.MinDistanceMeters,
			MaxInterval:       cfg.Position.MaxInterval,
		},
	}))

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
