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

	"walkabout/internal/adapter/storage"
	"walkabout/internal/config"
	"walkabout/internal/server"
	"walkabout/internal/service/cache"
	"walkabout/internal/service/provider"
	"walkabout/internal/service/update"
)

func main() {
	// Load .env in development; ignore absence
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

	// Resolve spatial capability once; the stores degrade to conservative
	// fetch-everything behavior without it.
	spatial := storage.ProbeSpatial(ctx, db)

	if err := storage.Migrate(ctx, db, spatial); err != nil {
		log.Fatalf("Failed to run schema migration: %v", err)
	}

	natsConn, err := initNATS(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	// Initialize storage adapters
	poiStore := storage.NewPOIStore(db, spatial, cfg.Cache.FreshnessWindow)
	coverageStore := storage.NewCoverageStore(db, spatial, cfg.Cache.FreshnessWindow)
	recorder := storage.NewFetchRecorder(db, spatial)

	// Initialize provider gateways
	overpass := provider.NewOverpassClient(
		cfg.Provider.OverpassURL,
		cfg.Provider.Timeout,
		cfg.Provider.RequestsPerSecond,
	)
	isochrones := provider.NewIsochroneClient(
		cfg.Provider.IsochroneURL,
		cfg.Provider.IsochroneAPIKey,
		cfg.Provider.Timeout,
	)

	// Initialize the update fan-out channel
	registry := update.NewRegistry()
	updates := update.NewChannel(registry, natsConn, cfg.Cache.UpdatesTopic)

	// Initialize the cache orchestrator
	orchestrator := cache.NewOrchestrator(
		poiStore,
		coverageStore,
		recorder,
		overpass,
		updates,
		cache.OrchestratorConfig{
			Workers:      cfg.Cache.ReconcileWorkers,
			QueueSize:    cfg.Cache.ReconcileQueueSize,
			FetchTimeout: cfg.Cache.FetchTimeout,
		},
	)
	orchestrator.Start(ctx)

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		orchestrator,
		isochrones,
		updates,
	)

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

	// Drain the reconcile workers
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		log.Printf("Cache orchestrator shutdown error: %v", err)
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
