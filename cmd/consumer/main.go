package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/dailymenu/internal/config"
	"example.com/dailymenu/internal/consumer"
	"example.com/dailymenu/internal/observability"
	"example.com/dailymenu/internal/store/postgres"
	"example.com/dailymenu/internal/syncmerge"
)

func main() {
	logger := log.New(os.Stdout, "[consumer] ", log.LstdFlags|log.LUTC)
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

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	metrics := observability.NewMetricsServer(cfg.MetricsAddress, logger)
	metrics.Start()
	defer metrics.Shutdown(10 * time.Second)

	resolver := syncmerge.NewResolver(postgres.New(pool))
	handler := consumer.NewAuditHandler(pool, consumer.NewSyncHandler(resolver), logger)

	var wg sync.WaitGroup
	for _, topic := range cfg.SyncTopics {
		reader := newSyncReader(cfg, topic)
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			logger.Printf("reading %s as %s", topic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("%s: reader stopped: %v", topic, err)
			}
		}()
	}

	<-ctx.Done()
	logger.Println("draining readers")
	wg.Wait()
	return nil
}

func newSyncReader(cfg config.Config, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           topic,
		MinBytes:        1,
		MaxBytes:        4 << 20,
		MaxWait:         500 * time.Millisecond,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})
}
