package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/dailymenu/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "menu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleActivity(title string, minutes int) domain.Activity {
	return domain.Activity{
		ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(title)),
		Title:            title,
		Description:      "desc",
		ExpectedMinutes:  minutes,
		Energy:           domain.EnergyLow,
		Context:          domain.ContextSolo,
		Category:         domain.CategoryStarter,
		Tags:             []string{"calm", "indoor"},
		Repeatable:       true,
		Source:           domain.SourceSeed,
		ModerationStatus: domain.ModerationApproved,
	}
}

func TestActivitiesQueryAndLookup(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tea := sampleActivity("Make tea", 5)
	walk := sampleActivity("Short walk", 10)
	long := sampleActivity("Long read", 45)
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea, walk, long}}))
	// Re-inserting an existing activity is ignored.
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea}}))

	found, err := store.FindActivities(ctx, domain.ActivityQuery{MinMinutes: 5, MaxMinutes: 10, Energy: domain.EnergyLow, Context: domain.ContextSolo})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, tea, found[0])

	found, err = store.FindActivities(ctx, domain.ActivityQuery{MinMinutes: 5, MaxMinutes: 10, Energy: domain.EnergyLow, Context: domain.ContextSolo, Exclude: domain.NewIDSet(tea.ID)})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, walk.ID, found[0].ID)

	got, err := store.GetActivity(ctx, long.ID)
	require.NoError(t, err)
	require.Equal(t, long, *got)

	missing, err := store.GetActivity(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	byTitle, err := store.FindActivityByTitle(ctx, "MAKE TEA")
	require.NoError(t, err)
	require.NotNil(t, byTitle)
	require.Equal(t, tea.ID, byTitle.ID)
}

func TestFavoritesLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tea := sampleActivity("Make tea", 5)
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea}}))

	created := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	fav := domain.Favorite{ID: uuid.New(), UserID: "u1", ActivityID: tea.ID, CreatedAt: created, UpdatedAt: domain.Absent()}
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedFavorites: []domain.Favorite{fav}}))

	favorites, err := store.ListFavorites(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.Favorite{fav}, favorites)

	fav.UpdatedAt = domain.Present(created.Add(5 * time.Minute))
	require.NoError(t, store.Save(ctx, domain.ChangeSet{UpdatedFavorites: []domain.Favorite{fav}}))
	favorites, err = store.ListFavorites(ctx, "u1")
	require.NoError(t, err)
	require.True(t, favorites[0].UpdatedAt.Equal(fav.UpdatedAt))

	require.NoError(t, store.Save(ctx, domain.ChangeSet{DeletedFavorites: []domain.Favorite{fav}}))
	favorites, err = store.ListFavorites(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, favorites)
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tea := sampleActivity("Make tea", 5)
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea}}))

	base := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	entries := make([]domain.HistoryEntry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, domain.HistoryEntry{
			ID:          uuid.New(),
			UserID:      "u1",
			ActivityID:  tea.ID,
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:   domain.Present(base),
		})
	}
	entries[0].ContextSnapshot = json.RawMessage(`{"energy":"low"}`)
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedHistory: entries}))

	page, next, err := store.ListHistory(ctx, "u1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	require.Equal(t, entries[4].ID, page[0].ID)
	require.Equal(t, entries[3].ID, page[1].ID)

	page, next, err = store.ListHistory(ctx, "u1", next, 2)
	require.NoError(t, err)
	require.Equal(t, entries[2].ID, page[0].ID)
	require.Equal(t, entries[1].ID, page[1].ID)

	page, next, err = store.ListHistory(ctx, "u1", next, 2)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, page, 1)
	require.JSONEq(t, `{"energy":"low"}`, string(page[0].ContextSnapshot))

	all, next, err := store.ListHistory(ctx, "u1", nil, 0)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, all, 5)
}

func TestPrefsUpsertKeepsSingleRecord(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := domain.FetchOrCreatePrefs(ctx, store, "u1", time.Now())
	require.NoError(t, err)
	require.Empty(t, first.Hidden)

	hidden := uuid.New()
	require.NoError(t, store.Save(ctx, domain.ChangeSet{Prefs: &domain.UserPrefs{
		ID:                uuid.New(),
		UserID:            "u1",
		Hidden:            domain.NewIDSet(hidden),
		PreferredContexts: []domain.SocialContext{domain.ContextWithSomeone},
		FeatureFlags:      domain.FeatureFlags{EnableSync: true},
		UpdatedAt:         domain.Present(time.Now()),
	}}))

	stored, err := store.GetPrefs(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, first.ID, stored.ID)
	require.True(t, stored.Hidden.Contains(hidden))
	require.Equal(t, []domain.SocialContext{domain.ContextWithSomeone}, stored.PreferredContexts)
	require.True(t, stored.FeatureFlags.EnableSync)

	none, err := store.GetPrefs(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestDeleteHistoryAndPrefs(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tea := sampleActivity("Make tea", 5)
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea}}))

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	entry := domain.HistoryEntry{ID: uuid.New(), UserID: "u1", ActivityID: tea.ID, CompletedAt: now, UpdatedAt: domain.Present(now)}
	other := domain.HistoryEntry{ID: uuid.New(), UserID: "u2", ActivityID: tea.ID, CompletedAt: now, UpdatedAt: domain.Present(now)}
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedHistory: []domain.HistoryEntry{entry, other}}))
	prefs, err := domain.FetchOrCreatePrefs(ctx, store, "u1", now)
	require.NoError(t, err)
	_, err = domain.FetchOrCreatePrefs(ctx, store, "u2", now)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, domain.ChangeSet{DeletedHistory: []domain.HistoryEntry{entry}, DeletedPrefs: prefs}))

	got, err := store.GetHistoryEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	got, err = store.GetHistoryEntry(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, "u2", got.UserID)

	stored, err := store.GetPrefs(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, stored)
	stored, err = store.GetPrefs(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestSaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tea := sampleActivity("Make tea", 5)
	require.NoError(t, store.Save(ctx, domain.ChangeSet{CreatedActivities: []domain.Activity{tea}}))

	dup := domain.Favorite{ID: uuid.New(), UserID: "u1", ActivityID: tea.ID, CreatedAt: time.Now()}
	err := store.Save(ctx, domain.ChangeSet{CreatedFavorites: []domain.Favorite{dup, dup}})
	require.Error(t, err)

	favorites, err := store.ListFavorites(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, favorites)
}
