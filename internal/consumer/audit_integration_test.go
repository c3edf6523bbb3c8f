//go:build integration

package consumer

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/events"
	"example.com/dailymenu/internal/store/postgres"
	"example.com/dailymenu/internal/syncmerge"
)

func TestAuditHandlerRecordsAppliedBatch(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	store := postgres.New(pool)
	tea := knownActivity("Make tea")
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea}}))

	resolver := syncmerge.NewResolver(store, syncmerge.WithLogger(log.New(io.Discard, "", 0)))
	handler := NewAuditHandler(pool, NewSyncHandler(resolver), log.New(io.Discard, "", 0))

	msg := syncMessage(t, events.TypeSyncFavorites, "user-1", []syncmerge.RemoteFavorite{{
		ID:         uuid.New(),
		ActivityID: tea.ID,
		CreatedAt:  time.Now().UTC(),
	}})
	msg.Offset = 5
	msg.SchemaID = 42
	require.NoError(t, handler.Handle(ctx, msg))

	var created, updated, conflicts int
	var userID string
	require.NoError(t, pool.QueryRow(ctx, `SELECT user_id, created, updated, conflicts FROM sync_batch_log WHERE record_offset = 5`).
		Scan(&userID, &created, &updated, &conflicts))
	require.Equal(t, "user-1", userID)
	require.Equal(t, 1, created)
	require.Zero(t, updated+conflicts)

	favorites, err := store.ListFavorites(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, favorites, 1)
}

func TestAuditHandlerSkipsFailedMerges(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	handler := NewAuditHandler(pool, failingApplier{}, log.New(io.Discard, "", 0))
	require.Error(t, handler.Handle(ctx, Message{EventType: events.TypeSyncHidden, UserID: "user-2"}))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_batch_log`).Scan(&count))
	require.Zero(t, count)
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, Message) (syncmerge.MergeResult, error) {
	return syncmerge.MergeResult{}, errors.New("store offline")
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
