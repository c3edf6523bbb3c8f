package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Favorite marks an activity the user wants to keep close.
type Favorite struct {
	ID         uuid.UUID
	UserID     string
	ActivityID uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  Timestamp
}

// HistoryEntry records that the user completed an activity.
type HistoryEntry struct {
	ID              uuid.UUID
	UserID          string
	ActivityID      uuid.UUID
	CompletedAt     time.Time
	UpdatedAt       Timestamp
	ContextSnapshot json.RawMessage
}

// FilterSnapshot is the filter state captured alongside a completion.
type FilterSnapshot struct {
	MinMinutes int           `json:"min_minutes"`
	MaxMinutes int           `json:"max_minutes"`
	Energy     Energy        `json:"energy"`
	Context    SocialContext `json:"context"`
}

// FeatureFlags holds the per-user flag snapshot. Every flag defaults to off.
type FeatureFlags struct {
	UseCloudLLM                bool `json:"use_cloud_llm"`
	EnableSync                 bool `json:"enable_sync"`
	EnablePublicSubmissions    bool `json:"enable_public_submissions"`
	EnableContentPacks         bool `json:"enable_content_packs"`
	EnableSecondReminderWindow bool `json:"enable_second_reminder_window"`
	EnableGrowthHistory        bool `json:"enable_growth_history"`
}

// UserPrefs is the single preferences record of a user.
type UserPrefs struct {
	ID                uuid.UUID
	UserID            string
	Hidden            IDSet
	PreferredContexts []SocialContext
	FeatureFlags      FeatureFlags
	UpdatedAt         Timestamp
}

// HistoryCursor models the history pagination token.
type HistoryCursor struct {
	CompletedAt time.Time
	ID          uuid.UUID
}

// ChangeSet is a unit of work handed to RecordStore.Save. Records in it are
// pending until Save returns without error.
type ChangeSet struct {
	CreatedActivities []Activity
	CreatedFavorites  []Favorite
	UpdatedFavorites  []Favorite
	DeletedFavorites  []Favorite
	CreatedHistory    []HistoryEntry
	UpdatedHistory    []HistoryEntry
	DeletedHistory    []HistoryEntry
	Prefs             *UserPrefs
	// DeletedPrefs removes the preferences record of DeletedPrefs.UserID.
	// Prefs and DeletedPrefs are not meant to be combined.
	DeletedPrefs *UserPrefs
}

// Empty reports whether the change set holds nothing to write.
func (c ChangeSet) Empty() bool {
	return len(c.CreatedActivities) == 0 &&
		len(c.CreatedFavorites) == 0 &&
		len(c.UpdatedFavorites) == 0 &&
		len(c.DeletedFavorites) == 0 &&
		len(c.CreatedHistory) == 0 &&
		len(c.UpdatedHistory) == 0 &&
		len(c.DeletedHistory) == 0 &&
		c.Prefs == nil &&
		c.DeletedPrefs == nil
}
