// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"metromap/internal/config"
	"metromap/internal/domain/layer"
	"metromap/internal/logger"
	"metromap/internal/metrics"
	"metromap/internal/server/handlers"
)

// Deps are the services the HTTP layer serves from. Analyst, Narrator and
// Subscriber are optional.
type Deps struct {
	Layers        handlers.LayerCache
	Analyst       layer.Analyst
	Narrator      layer.Narrator
	Subscriber    handlers.Subscriber
	SubjectPrefix string
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Deps, l *slog.Logger) *Server {
	l = logger.OrDiscard(l)
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler dependencies
	layerHandler := handlers.NewLayerHandler(deps.Layers, l)
	assistHandler := handlers.NewAssistHandler(deps.Analyst, deps.Narrator, l)
	stream := handlers.NewLayerStream(deps.Layers, deps.Subscriber, deps.SubjectPrefix, cfg.CorsOrigins, l)

	// Routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api", func(r chi.Router) {
			// Health check
			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"status":"ok","layers":%d}`, len(deps.Layers.Keys()))
			})

			// API version
			r.Route("/v1", func(r chi.Router) {
				r.Route("/layers", func(r chi.Router) {
					r.Get("/", layerHandler.Catalog)
					r.Get("/all", layerHandler.GetAll)
					r.Post("/analyze", assistHandler.Analyze)
					r.Get("/{key}", layerHandler.GetLayer)
				})
				r.Post("/narrate", assistHandler.Narrate)
			})
		})

		r.Handle("/metrics", metrics.Handler())
	})

	// WebSocket endpoint for live layer updates
	router.Get("/ws/layers/{key}", stream.ServeHTTP)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
