package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/dailymenu/internal/api"
	"example.com/dailymenu/internal/auth"
	"example.com/dailymenu/internal/config"
	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/outbox"
	"example.com/dailymenu/internal/seed"
	"example.com/dailymenu/internal/store/memory"
	"example.com/dailymenu/internal/store/postgres"
	"example.com/dailymenu/internal/suggest"
	"example.com/dailymenu/internal/syncmerge"
	httptransport "example.com/dailymenu/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store      domain.RecordStore
		dispatcher *outbox.Dispatcher
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Printf("using in-memory record store")
		store = memory.New()
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
		store = postgres.New(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	default:
		log.Fatalf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if len(cfg.SeedPaths) > 0 {
		inserted, err := seed.NewLoader(store, nil).LoadFiles(ctx, cfg.SeedPaths...)
		if err != nil {
			log.Fatalf("failed to load seed catalog: %v", err)
		}
		log.Printf("seed catalog loaded (%d new activities)", inserted)
	}

	service := domain.NewService(store)
	suggestions := suggest.NewRegistry(store,
		suggest.WithCooldown(cfg.DismissCooldown),
		suggest.WithIdleTTL(cfg.SessionIdleTTL),
	)
	resolver := syncmerge.NewResolver(store)

	handler := api.NewHandler(service, suggestions, resolver, api.WithDefaultCount(cfg.DefaultCount))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths)
	requestLogger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(requestLogger),
		httptransport.CORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("daily menu api listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
