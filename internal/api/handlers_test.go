package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/dailymenu/internal/auth"
	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/store/memory"
	"example.com/dailymenu/internal/suggest"
	"example.com/dailymenu/internal/syncmerge"
)

var testAuth = auth.Config{Secret: "test-secret", Issuer: "dailymenu.test"}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *memory.Store
}

func newTestAPI(t *testing.T, activities ...domain.Activity) *testAPI {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	store := memory.New(activities...)
	h := NewHandler(
		domain.NewService(store),
		suggest.NewRegistry(store, suggest.WithLogger(quiet)),
		syncmerge.NewResolver(store, syncmerge.WithLogger(quiet)),
		WithDefaultCount(2),
		WithLogger(quiet),
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testAPI{t: t, handler: auth.NewMiddleware(testAuth, auth.PublicPaths).Wrap(mux), store: store}
}

func (a *testAPI) do(method, path, user string, scopes []string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		token, err := auth.Issue(testAuth, user, scopes, time.Hour, time.Now())
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

var (
	readWrite = []string{auth.ScopeMenuRead, auth.ScopeMenuWrite}
	syncOnly  = []string{auth.ScopeSyncWrite}
)

func menuItem(title string, minutes int) domain.Activity {
	return domain.Activity{
		ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(title)),
		Title:            title,
		Description:      "desc",
		ExpectedMinutes:  minutes,
		Energy:           domain.EnergyLow,
		Context:          domain.ContextSolo,
		Category:         domain.CategoryStarter,
		Repeatable:       true,
		Source:           domain.SourceSeed,
		ModerationStatus: domain.ModerationApproved,
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthAndScopes(t *testing.T) {
	api := newTestAPI(t, menuItem("Make tea", 5))

	rr := api.do(http.MethodGet, "/v1/favorites", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodPost, "/v1/favorites", "user-1", []string{auth.ScopeMenuRead}, ActivityRefRequest{ActivityID: uuid.New()})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decode[map[string]string](t, rr)["type"])

	rr = api.do(http.MethodPost, "/v1/sync/favorites", "user-1", readWrite, SyncBatchRequest[syncmerge.RemoteFavorite]{})
	require.Equal(t, http.StatusForbidden, rr.Code)

	readOnly := []string{auth.ScopeMenuRead}
	rr = api.do(http.MethodPost, "/v1/suggestions/"+uuid.NewString()+"/dismiss", "user-1", readOnly, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = api.do(http.MethodDelete, "/v1/me/data", "user-1", readOnly, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSuggestionsHonourFiltersAndHidden(t *testing.T) {
	tea, walk, stretch := menuItem("Make tea", 5), menuItem("Short walk", 10), menuItem("Stretch", 8)
	long := menuItem("Long bath", 60)
	api := newTestAPI(t, tea, walk, stretch, long)

	rr := api.do(http.MethodGet, "/v1/suggestions?window=short&energy=low&context=solo", "user-1", readWrite, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[ListActivitiesResponse](t, rr)
	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		require.NotEqual(t, long.ID, item.ID)
	}

	rr = api.do(http.MethodPost, "/v1/hidden", "user-1", readWrite, ActivityRefRequest{ActivityID: tea.ID})
	require.Equal(t, http.StatusOK, rr.Code)
	prefs := decode[PrefsView](t, rr)
	require.True(t, prefs.HiddenActivityIDs.Contains(tea.ID))

	for i := 0; i < 5; i++ {
		rr = api.do(http.MethodGet, "/v1/suggestions?min=5&max=10&energy=low&context=solo&count=3", "user-1", readWrite, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		for _, item := range decode[ListActivitiesResponse](t, rr).Items {
			require.NotEqual(t, tea.ID, item.ID)
		}
	}
}

func TestSuggestionValidation(t *testing.T) {
	api := newTestAPI(t, menuItem("Make tea", 5))

	for _, query := range []string{
		"window=forever&energy=low&context=solo",
		"min=10&max=5&energy=low&context=solo",
		"window=short&energy=low&context=solo&count=0",
		"window=short&energy=sleepy&context=solo",
		"window=short&energy=low&context=crowd",
		"min=abc&max=5&energy=low&context=solo",
		"energy=low&context=solo",
	} {
		rr := api.do(http.MethodGet, "/v1/suggestions?"+query, "user-1", readWrite, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
		require.Equal(t, "validation_failed", decode[map[string]string](t, rr)["type"], query)
	}
}

func TestDismissAndEndSession(t *testing.T) {
	tea := menuItem("Make tea", 5)
	api := newTestAPI(t, tea)

	rr := api.do(http.MethodPost, "/v1/suggestions/"+tea.ID.String()+"/dismiss", "user-1", readWrite, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(http.MethodGet, "/v1/suggestions?window=short&energy=low&context=solo", "user-1", readWrite, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decode[ListActivitiesResponse](t, rr).Items)

	// Another user's session is unaffected.
	rr = api.do(http.MethodGet, "/v1/suggestions?window=short&energy=low&context=solo", "user-2", readWrite, nil)
	require.Len(t, decode[ListActivitiesResponse](t, rr).Items, 1)

	rr = api.do(http.MethodDelete, "/v1/suggestions", "user-1", readWrite, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do(http.MethodGet, "/v1/suggestions?window=short&energy=low&context=solo", "user-1", readWrite, nil)
	require.Len(t, decode[ListActivitiesResponse](t, rr).Items, 1)

	rr = api.do(http.MethodPost, "/v1/suggestions/not-a-uuid/dismiss", "user-1", readWrite, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = api.do(http.MethodPost, "/v1/suggestions/"+tea.ID.String()+"/snooze", "user-1", readWrite, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFavoritesLifecycle(t *testing.T) {
	tea := menuItem("Make tea", 5)
	api := newTestAPI(t, tea)

	rr := api.do(http.MethodPost, "/v1/favorites", "user-1", readWrite, ActivityRefRequest{ActivityID: tea.ID})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[FavoriteView](t, rr)
	require.Equal(t, tea.ID, created.ActivityID)

	rr = api.do(http.MethodPost, "/v1/favorites", "user-1", readWrite, ActivityRefRequest{ActivityID: tea.ID})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, created.ID, decode[FavoriteView](t, rr).ID)

	rr = api.do(http.MethodGet, "/v1/favorites", "user-1", readWrite, nil)
	require.Len(t, decode[ListFavoritesResponse](t, rr).Items, 1)

	rr = api.do(http.MethodGet, "/v1/favorites", "user-2", readWrite, nil)
	require.Empty(t, decode[ListFavoritesResponse](t, rr).Items)

	rr = api.do(http.MethodDelete, "/v1/favorites/"+created.ID.String(), "user-1", readWrite, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do(http.MethodDelete, "/v1/favorites/"+created.ID.String(), "user-1", readWrite, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodPost, "/v1/favorites", "user-1", readWrite, ActivityRefRequest{ActivityID: uuid.New()})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodPost, "/v1/favorites", "user-1", readWrite, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryPagination(t *testing.T) {
	tea := menuItem("Make tea", 5)
	api := newTestAPI(t, tea)

	snapshot := &domain.FilterSnapshot{MinMinutes: 5, MaxMinutes: 10, Energy: domain.EnergyLow, Context: domain.ContextSolo}
	for i := 0; i < 3; i++ {
		rr := api.do(http.MethodPost, "/v1/history", "user-1", readWrite, RecordCompletionRequest{ActivityID: tea.ID, Snapshot: snapshot})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := api.do(http.MethodGet, "/v1/history?limit=2", "user-1", readWrite, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListHistoryResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	require.JSONEq(t, `{"min_minutes":5,"max_minutes":10,"energy":"low","context":"solo"}`, string(page.Items[0].ContextSnapshot))

	rr = api.do(http.MethodGet, "/v1/history?limit=2&cursor="+page.NextCursor, "user-1", readWrite, nil)
	page = decode[ListHistoryResponse](t, rr)
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextCursor)

	rr = api.do(http.MethodGet, "/v1/history?cursor=%25%25%25", "user-1", readWrite, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResetAndRestoreUserData(t *testing.T) {
	tea := menuItem("Make tea", 5)
	api := newTestAPI(t, tea)

	rr := api.do(http.MethodPost, "/v1/favorites", "user-1", readWrite, ActivityRefRequest{ActivityID: tea.ID})
	require.Equal(t, http.StatusCreated, rr.Code)
	favorite := decode[FavoriteView](t, rr)
	rr = api.do(http.MethodPost, "/v1/history", "user-1", readWrite, RecordCompletionRequest{ActivityID: tea.ID})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = api.do(http.MethodPost, "/v1/hidden", "user-1", readWrite, ActivityRefRequest{ActivityID: tea.ID})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(http.MethodDelete, "/v1/me/data", "user-1", readWrite, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	snapshot := decode[UserDataSnapshot](t, rr)
	require.Len(t, snapshot.Favorites, 1)
	require.Equal(t, favorite.ID, snapshot.Favorites[0].ID)
	require.Len(t, snapshot.History, 1)
	require.NotNil(t, snapshot.Prefs)
	require.True(t, snapshot.Prefs.HiddenActivityIDs.Contains(tea.ID))

	rr = api.do(http.MethodGet, "/v1/favorites", "user-1", readWrite, nil)
	require.Empty(t, decode[ListFavoritesResponse](t, rr).Items)
	rr = api.do(http.MethodGet, "/v1/history", "user-1", readWrite, nil)
	require.Empty(t, decode[ListHistoryResponse](t, rr).Items)

	rr = api.do(http.MethodPost, "/v1/me/data/restore", "user-1", readWrite, snapshot)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, RestoreResultView{Favorites: 1, History: 1, Prefs: true}, decode[RestoreResultView](t, rr))

	rr = api.do(http.MethodGet, "/v1/favorites", "user-1", readWrite, nil)
	items := decode[ListFavoritesResponse](t, rr).Items
	require.Len(t, items, 1)
	require.Equal(t, favorite.ID, items[0].ID)
	rr = api.do(http.MethodGet, "/v1/prefs", "user-1", readWrite, nil)
	require.True(t, decode[PrefsView](t, rr).HiddenActivityIDs.Contains(tea.ID))

	rr = api.do(http.MethodPost, "/v1/me/data/restore", "user-2", readWrite, snapshot)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, RestoreResultView{Prefs: true, Skipped: 2}, decode[RestoreResultView](t, rr))

	rr = api.do(http.MethodGet, "/v1/me/data", "user-1", readWrite, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPrefsAreCreatedOnFirstRead(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(http.MethodGet, "/v1/prefs", "user-1", readWrite, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode[PrefsView](t, rr)
	require.Empty(t, first.HiddenActivityIDs)
	require.False(t, first.FeatureFlags.EnableSync)

	rr = api.do(http.MethodGet, "/v1/prefs", "user-1", readWrite, nil)
	require.Equal(t, first.ID, decode[PrefsView](t, rr).ID)
}

func TestSyncFavoritesReportsMergeResult(t *testing.T) {
	tea := menuItem("Make tea", 5)
	api := newTestAPI(t, tea)

	batch := SyncBatchRequest[syncmerge.RemoteFavorite]{Items: []syncmerge.RemoteFavorite{
		{ID: uuid.New(), ActivityID: tea.ID, CreatedAt: time.Now().UTC(), UpdatedAt: domain.Present(time.Now().UTC())},
		{ID: uuid.New(), ActivityID: uuid.New(), CreatedAt: time.Now().UTC()},
	}}

	rr := api.do(http.MethodPost, "/v1/sync/favorites", "user-1", syncOnly, batch)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, MergeResultView{Created: 1, Total: 1, Summary: "1 created"}, decode[MergeResultView](t, rr))

	rr = api.do(http.MethodPost, "/v1/sync/favorites", "user-1", syncOnly, batch)
	view := decode[MergeResultView](t, rr)
	require.True(t, view.HasConflicts)
	require.Zero(t, view.Total)

	favorites, err := api.store.ListFavorites(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, favorites, 1)
}

func TestSyncHiddenAndUnknownKind(t *testing.T) {
	tea := menuItem("Make tea", 5)
	api := newTestAPI(t, tea)

	rr := api.do(http.MethodPost, "/v1/sync/hidden", "user-1", syncOnly, SyncBatchRequest[uuid.UUID]{Items: []uuid.UUID{tea.ID}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, decode[MergeResultView](t, rr).Updated)

	rr = api.do(http.MethodPost, "/v1/sync/ratings", "user-1", syncOnly, SyncBatchRequest[uuid.UUID]{})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodGet, "/v1/sync/hidden", "user-1", syncOnly, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "method_not_allowed"))
}
