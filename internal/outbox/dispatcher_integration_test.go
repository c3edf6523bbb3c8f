//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/events"
	"example.com/dailymenu/internal/store/postgres"
)

const favoriteTopic = "menu_favorite_events"

func TestDispatcherPublishesStoreEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	store := postgres.New(pool)
	activity := domain.Activity{
		ID:               uuid.New(),
		Title:            "Water the plants",
		ExpectedMinutes:  5,
		Energy:           domain.EnergyLow,
		Context:          domain.ContextSolo,
		Category:         domain.CategoryStarter,
		Repeatable:       true,
		Source:           domain.SourceSeed,
		ModerationStatus: domain.ModerationApproved,
	}
	favorite := domain.Favorite{ID: uuid.New(), UserID: "user-1", ActivityID: activity.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, domain.ChangeSet{
		CreatedActivities: []domain.Activity{activity},
		CreatedFavorites:  []domain.Favorite{favorite},
	}))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(dispatchedEvents.WithLabelValues(favoriteTopic, resultDelivered))
	beforeHistogram := histogramSampleCount(t)

	handled, err := dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, handled)

	require.Len(t, producer.writes, 1)
	require.Equal(t, favoriteTopic, producer.writes[0].topic)
	record := producer.writes[0].messages[0]
	require.Equal(t, "user-1", string(record.Key))

	schemaID, payload, err := DecodeWireFormat(record.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	var changed events.FavoriteChanged
	require.NoError(t, json.Unmarshal(payload, &changed))
	require.Equal(t, favorite.ID, changed.FavoriteID)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(dispatchedEvents.WithLabelValues(favoriteTopic, resultDelivered)), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	handled, err = dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, handled)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	require.NotZero(t, seedOutbox(t, ctx, pool, "user-2", events.TypeFavoriteCreated))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(dispatchedEvents.WithLabelValues(favoriteTopic, resultFailed))
	beforeDLQ := testutil.ToFloat64(dispatchedEvents.WithLabelValues(favoriteTopic, resultDeadLettered))

	_, err := dispatcher.RunOnce(ctx)
	require.NoError(t, err)

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(dispatchedEvents.WithLabelValues(favoriteTopic, resultFailed)), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dispatchedEvents.WithLabelValues(favoriteTopic, resultDeadLettered)), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE user_id = $1`, "user-2").Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	eventID := seedOutbox(t, ctx, pool, "user-3", "favorite.unknown")
	require.NotZero(t, eventID)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	_, err := dispatcher.RunOnce(ctx)
	require.NoError(t, err)

	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=favorite.unknown")
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	require.NotZero(t, seedOutbox(t, ctx, pool, "user-4", events.TypeFavoriteCreated))
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 3}, 10*time.Millisecond, 5)
	_, err := failing.RunOnce(ctx)
	require.NoError(t, err)

	beforeRequeued := testutil.ToFloat64(dlqEntries.WithLabelValues(events.TypeFavoriteCreated, outcomeRequeued))
	manager := NewDLQManager(pool, 2, time.Second)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.InDelta(t, beforeRequeued+1, testutil.ToFloat64(dlqEntries.WithLabelValues(events.TypeFavoriteCreated, outcomeRequeued)), 0.0001)
	require.Zero(t, testutil.ToFloat64(dlqBacklog))

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND user_id = $1`, "user-4").Scan(&pending))
	require.Equal(t, 1, pending)

	producer := &stubProducer{}
	_, err = NewDispatcher(pool, producer, &stubRegistry{id: 3}, 10*time.Millisecond, 5).RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, producer.writes, 1)

	_, err = pool.Exec(ctx,
		`INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES ('user-5', 1, $1, $2, '{}', 'broker down', 'favorite', 'x', 'menu_favorite_events-value', 'user-5', 2, NOW())`,
		events.TypeFavoriteCreated, favoriteTopic)
	require.NoError(t, err)

	processed, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var quarantined string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM outbox_dlq WHERE user_id = 'user-5'`).Scan(&quarantined))
	require.Equal(t, quarantineReason, quarantined)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("menu"),
		postgrescontainer.WithUsername("menu"),
		postgrescontainer.WithPassword("menu"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID, eventType string) int64 {
	t.Helper()

	favoriteID := uuid.New()
	payload, err := json.Marshal(events.FavoriteChanged{
		FavoriteID: favoriteID,
		UserID:     userID,
		ActivityID: uuid.New(),
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	var eventID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         RETURNING event_id`,
		userID, "favorite", favoriteID.String(), eventType, favoriteTopic, favoriteTopic+"-value", userID, payload,
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}
