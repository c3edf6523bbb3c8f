package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dailymenu/internal/config"
	"example.com/dailymenu/internal/observability"
	"example.com/dailymenu/internal/outbox"
)

func main() {
	logger := log.New(os.Stdout, "[dlqmanager] ", log.LstdFlags|log.LUTC)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics := observability.NewMetricsServer(cfg.MetricsAddress, logger)
	metrics.Start()
	defer metrics.Shutdown(10 * time.Second)

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, outbox.WithDLQLogger(logger))
	logger.Printf("replaying every %s, quarantine after %d attempts", cfg.DLQPollInterval, cfg.DLQMaxRetries)
	manager.Start(ctx, cfg.DLQPollInterval)
	logger.Println("stopped")
	return nil
}
