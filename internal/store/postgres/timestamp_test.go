package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/syncmerge"
)

// roundTrip passes ts through the binary timestamptz codec the store uses.
func roundTrip(t *testing.T, ts domain.Timestamp) domain.Timestamp {
	t.Helper()
	types := pgtype.NewMap()
	buf, err := types.Encode(pgtype.TimestamptzOID, pgtype.BinaryFormatCode, ts.Ptr(), nil)
	require.NoError(t, err)

	var scanned *time.Time
	require.NoError(t, types.Scan(pgtype.TimestamptzOID, pgtype.BinaryFormatCode, buf, &scanned))
	return domain.FromPtr(scanned)
}

func TestTimestampSurvivesTimestamptzCodec(t *testing.T) {
	precise := time.Date(2026, time.January, 1, 0, 5, 0, 123456789, time.UTC)

	stored := roundTrip(t, domain.Present(precise))
	require.True(t, stored.Equal(domain.Present(precise)))
	require.False(t, roundTrip(t, domain.Absent()).IsPresent())
}

func TestReappliedRemoteFavoriteIsAConflictAfterStorage(t *testing.T) {
	ctx := context.Background()
	precise := time.Date(2026, time.January, 1, 0, 5, 0, 123456789, time.UTC)
	remote := []syncmerge.RemoteFavorite{{
		ID:         uuid.New(),
		ActivityID: uuid.New(),
		CreatedAt:  precise,
		UpdatedAt:  domain.Present(precise),
	}}
	resolve := syncmerge.Lookups{Activity: func(context.Context, uuid.UUID) (bool, error) { return true, nil }}

	first, err := syncmerge.PlanFavorites(ctx, "u1", nil, remote, resolve)
	require.NoError(t, err)
	require.Equal(t, syncmerge.MergeResult{Created: 1}, first.Result)

	local := first.Changes.CreatedFavorites[0]
	local.UpdatedAt = roundTrip(t, local.UpdatedAt)

	second, err := syncmerge.PlanFavorites(ctx, "u1", []domain.Favorite{local}, remote, resolve)
	require.NoError(t, err)
	require.Equal(t, syncmerge.MergeResult{Conflicts: 1}, second.Result)
	require.True(t, second.Changes.Empty())
}
