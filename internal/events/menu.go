// Package events defines the payloads the menu service publishes and consumes.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types written to the outbox.
const (
	TypeFavoriteCreated = "favorite.created"
	TypeFavoriteUpdated = "favorite.updated"
	TypeFavoriteDeleted = "favorite.deleted"
	TypeHistoryRecorded = "history.recorded"
	TypeHistoryUpdated  = "history.updated"
	TypeHistoryDeleted  = "history.deleted"
	TypePrefsUpdated    = "prefs.updated"
	TypePrefsDeleted    = "prefs.deleted"
)

// Event types accepted on the sync topic.
const (
	TypeSyncFavorites = "sync.favorites"
	TypeSyncHistory   = "sync.history"
	TypeSyncHidden    = "sync.hidden"
)

// FavoriteChanged is emitted whenever a favorite is created, updated or deleted.
type FavoriteChanged struct {
	FavoriteID uuid.UUID  `json:"favorite_id"`
	UserID     string     `json:"user_id"`
	ActivityID uuid.UUID  `json:"activity_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// HistoryChanged is emitted when a completion is recorded, updated by a merge
// or deleted by a data reset.
type HistoryChanged struct {
	EntryID     uuid.UUID  `json:"entry_id"`
	UserID      string     `json:"user_id"`
	ActivityID  uuid.UUID  `json:"activity_id"`
	CompletedAt time.Time  `json:"completed_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// PrefsUpdated is emitted when a user's preferences record is written. A
// prefs.deleted event carries only the ids.
type PrefsUpdated struct {
	PrefsID        uuid.UUID   `json:"prefs_id"`
	UserID         string      `json:"user_id"`
	HiddenActivity []uuid.UUID `json:"hidden_activity_ids"`
	UpdatedAt      *time.Time  `json:"updated_at"`
}
