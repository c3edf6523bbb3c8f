package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/syncmerge"
)

// ActivityRefRequest names an activity, as in POST /v1/favorites and /v1/hidden.
type ActivityRefRequest struct {
	ActivityID uuid.UUID `json:"activity_id"`
}

// RecordCompletionRequest is the payload for POST /v1/history.
type RecordCompletionRequest struct {
	ActivityID uuid.UUID              `json:"activity_id"`
	Snapshot   *domain.FilterSnapshot `json:"context_snapshot,omitempty"`
}

// ActivityView exposes a menu item.
type ActivityView struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	ExpectedMinutes int                  `json:"expected_minutes"`
	Energy          domain.Energy        `json:"energy"`
	Context         domain.SocialContext `json:"context"`
	Category        domain.Category      `json:"category"`
	Repeatable      bool                 `json:"repeatable"`
	Tags            []string             `json:"tags"`
	Source          domain.Source        `json:"source"`
}

// ListActivitiesResponse packages suggestion results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// FavoriteView exposes a favorite.
type FavoriteView struct {
	ID         uuid.UUID        `json:"id"`
	ActivityID uuid.UUID        `json:"activity_id"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  domain.Timestamp `json:"updated_at"`
}

// ListFavoritesResponse packages favorites.
type ListFavoritesResponse struct {
	Items []FavoriteView `json:"items"`
}

// HistoryView exposes a completion.
type HistoryView struct {
	ID              uuid.UUID        `json:"id"`
	ActivityID      uuid.UUID        `json:"activity_id"`
	CompletedAt     time.Time        `json:"completed_at"`
	UpdatedAt       domain.Timestamp `json:"updated_at"`
	ContextSnapshot json.RawMessage  `json:"context_snapshot,omitempty"`
}

// ListHistoryResponse packages a history page.
type ListHistoryResponse struct {
	Items      []HistoryView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// PrefsView exposes the user's preferences.
type PrefsView struct {
	ID                uuid.UUID              `json:"id"`
	HiddenActivityIDs domain.IDSet           `json:"hidden_activity_ids"`
	PreferredContexts []domain.SocialContext `json:"preferred_contexts"`
	FeatureFlags      domain.FeatureFlags    `json:"feature_flags"`
	UpdatedAt         domain.Timestamp       `json:"updated_at"`
}

// MergeResultView reports what a sync merge did.
type MergeResultView struct {
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	Conflicts    int    `json:"conflicts"`
	Total        int    `json:"total"`
	HasConflicts bool   `json:"has_conflicts"`
	Summary      string `json:"summary"`
}

// UserDataSnapshot is returned by DELETE /v1/me/data and accepted by
// POST /v1/me/data/restore.
type UserDataSnapshot struct {
	Favorites []FavoriteView `json:"favorites"`
	History   []HistoryView  `json:"history"`
	Prefs     *PrefsView     `json:"prefs,omitempty"`
	TakenAt   time.Time      `json:"taken_at"`
}

// RestoreResultView reports what a restore put back.
type RestoreResultView struct {
	Favorites int  `json:"favorites"`
	History   int  `json:"history"`
	Prefs     bool `json:"prefs"`
	Skipped   int  `json:"skipped"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return ActivityView{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		ExpectedMinutes: a.ExpectedMinutes,
		Energy:          a.Energy,
		Context:         a.Context,
		Category:        a.Category,
		Repeatable:      a.Repeatable,
		Tags:            tags,
		Source:          a.Source,
	}
}

func toFavoriteView(f domain.Favorite) FavoriteView {
	return FavoriteView{ID: f.ID, ActivityID: f.ActivityID, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt}
}

func toHistoryView(e domain.HistoryEntry) HistoryView {
	return HistoryView{
		ID:              e.ID,
		ActivityID:      e.ActivityID,
		CompletedAt:     e.CompletedAt,
		UpdatedAt:       e.UpdatedAt,
		ContextSnapshot: e.ContextSnapshot,
	}
}

func toPrefsView(p domain.UserPrefs) PrefsView {
	hidden := p.Hidden
	if hidden == nil {
		hidden = domain.NewIDSet()
	}
	contexts := p.PreferredContexts
	if contexts == nil {
		contexts = []domain.SocialContext{}
	}
	return PrefsView{
		ID:                p.ID,
		HiddenActivityIDs: hidden,
		PreferredContexts: contexts,
		FeatureFlags:      p.FeatureFlags,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toUserDataSnapshot(s domain.ResetSnapshot) UserDataSnapshot {
	view := UserDataSnapshot{
		Favorites: make([]FavoriteView, 0, len(s.Favorites)),
		History:   make([]HistoryView, 0, len(s.History)),
		TakenAt:   s.TakenAt,
	}
	for _, f := range s.Favorites {
		view.Favorites = append(view.Favorites, toFavoriteView(f))
	}
	for _, e := range s.History {
		view.History = append(view.History, toHistoryView(e))
	}
	if s.Prefs != nil {
		prefs := toPrefsView(*s.Prefs)
		view.Prefs = &prefs
	}
	return view
}

// resetSnapshot converts a client-held snapshot back into records owned by userID.
func (v UserDataSnapshot) resetSnapshot(userID string) domain.ResetSnapshot {
	snapshot := domain.ResetSnapshot{TakenAt: v.TakenAt}
	for _, f := range v.Favorites {
		snapshot.Favorites = append(snapshot.Favorites, domain.Favorite{
			ID:         f.ID,
			UserID:     userID,
			ActivityID: f.ActivityID,
			CreatedAt:  domain.Instant(f.CreatedAt),
			UpdatedAt:  f.UpdatedAt,
		})
	}
	for _, e := range v.History {
		snapshot.History = append(snapshot.History, domain.HistoryEntry{
			ID:              e.ID,
			UserID:          userID,
			ActivityID:      e.ActivityID,
			CompletedAt:     domain.Instant(e.CompletedAt),
			UpdatedAt:       e.UpdatedAt,
			ContextSnapshot: e.ContextSnapshot,
		})
	}
	if v.Prefs != nil {
		snapshot.Prefs = &domain.UserPrefs{
			ID:                v.Prefs.ID,
			UserID:            userID,
			Hidden:            v.Prefs.HiddenActivityIDs,
			PreferredContexts: v.Prefs.PreferredContexts,
			FeatureFlags:      v.Prefs.FeatureFlags,
			UpdatedAt:         v.Prefs.UpdatedAt,
		}
	}
	return snapshot
}

func toMergeResultView(m syncmerge.MergeResult) MergeResultView {
	return MergeResultView{
		Created:      m.Created,
		Updated:      m.Updated,
		Conflicts:    m.Conflicts,
		Total:        m.Total(),
		HasConflicts: m.HasConflicts(),
		Summary:      m.Summary(),
	}
}
