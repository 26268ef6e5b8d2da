// cmd/api/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"metromap/internal/adapter/assist"
	"metromap/internal/adapter/source"
	"metromap/internal/adapter/storage"
	"metromap/internal/config"
	"metromap/internal/domain/layer"
	"metromap/internal/logger"
	"metromap/internal/server"
	"metromap/internal/server/handlers"
	"metromap/internal/service/cache"
	"metromap/internal/service/live"
)

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Optional development registry in Postgres
	var projects layer.ProjectStore
	if cfg.Database.Enabled {
		db, err := initDatabase(ctx, cfg.Database)
		if err != nil {
			log.Error("database_init_failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store := storage.NewProjectStore(db)
		if err := store.Migrate(ctx); err != nil {
			log.Error("database_migrate_failed", "error", err)
			os.Exit(1)
		}
		if cfg.Database.SeedOnStart {
			n, err := store.SeedProjects(ctx, source.EmbeddedProjects())
			if err != nil {
				log.Warn("project_seed_failed", "error", err)
			} else if n > 0 {
				log.Info("project_registry_seeded", "projects", n)
			}
		}
		projects = store
	}

	// Optional NATS connection for live streaming
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = initNATS(cfg.NATS, log)
		if err != nil {
			log.Error("nats_connect_failed", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()
	}

	// Register every source with the cache
	manager := cache.NewManager(cache.Config{Logger: log})
	client := source.NewClient(cfg.Sources.UserAgent)
	sources := source.All(client, source.Options{
		VehiclePositionsURL: cfg.Sources.VehiclePositionsURL,
		GTFSStaticURL:       cfg.Sources.GTFSStaticURL,
		SocrataBaseURL:      cfg.Sources.SocrataBaseURL,
		NWSAlertsURL:        cfg.Sources.NWSAlertsURL,
		OpenSkyURL:          cfg.Sources.OpenSkyURL,
		OCGISBaseURL:        cfg.Sources.OCGISBaseURL,
		OverpassURL:         cfg.Sources.OverpassURL,
		EnableOverpass:      cfg.Sources.EnableOverpass,
		NRELURL:             cfg.Sources.NRELURL,
		NRELAPIKey:          cfg.Sources.NRELAPIKey,
		AirNowURL:           cfg.Sources.AirNowURL,
		AirNowAPIKey:        cfg.Sources.AirNowAPIKey,
		OpenMeteoURL:        cfg.Sources.OpenMeteoURL,
		RainViewerURL:       cfg.Sources.RainViewerURL,
		Projects:            projects,
	})
	for _, src := range sources {
		if err := manager.Register(src, cfg.Sources.TTL(src.Key())); err != nil {
			log.Error("source_register_failed", "layer", src.Key(), "error", err)
			os.Exit(1)
		}
	}
	log.Info("sources_registered", "count", len(sources))

	// Optional collaborators
	deps := server.Deps{
		Layers:        manager,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
	}
	if a := assist.NewAnalyst(assist.AnalystConfig{
		Endpoint: cfg.Assist.AnalysisURL,
		APIKey:   cfg.Assist.AnalysisAPIKey,
		Model:    cfg.Assist.AnalysisModel,
		Timeout:  cfg.Assist.AnalysisTimeout,
	}, nil, log); a != nil {
		deps.Analyst = a
	}
	if n := assist.NewNarrator(assist.NarratorConfig{
		Endpoint: cfg.Assist.NarrationURL,
		APIKey:   cfg.Assist.NarrationAPIKey,
		VoiceID:  cfg.Assist.NarrationVoiceID,
		Timeout:  cfg.Assist.NarrationTimeout,
	}, nil, log); n != nil {
		deps.Narrator = n
	}

	// Start the live poller
	var poller *live.Poller
	if natsConn != nil {
		deps.Subscriber = handlers.NATSSubscriber{Conn: natsConn}
		if cfg.Live.Enabled {
			poller = live.NewPoller(manager, natsConn, live.Config{
				Layers:        cfg.Live.Layers,
				SubjectPrefix: cfg.NATS.SubjectPrefix,
			}, log)
			if err := poller.Start(ctx); err != nil {
				log.Error("live_poller_start_failed", "error", err)
				os.Exit(1)
			}
		}
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, deps, log)

	// Start HTTP server
	go func() {
		log.Info("http_server_starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	log.Info("shutdown_signal_received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_server_shutdown_error", "error", err)
	}

	// Stop the poller before NATS closes
	if poller != nil {
		poller.Stop()
	}
	cancel()

	log.Info("shutdown_complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, log *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("metromap"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("nats_closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
