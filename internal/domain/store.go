package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordStore captures persistence operations shared by every backend.
type RecordStore interface {
	FindActivities(ctx context.Context, query ActivityQuery) ([]Activity, error)
	// GetActivity returns nil, nil when the activity does not exist.
	GetActivity(ctx context.Context, id uuid.UUID) (*Activity, error)
	FindActivityByTitle(ctx context.Context, title string) (*Activity, error)
	ListFavorites(ctx context.Context, userID string) ([]Favorite, error)
	// GetFavorite looks a favorite up by id across every user. It returns
	// nil, nil when the id is unused.
	GetFavorite(ctx context.Context, id uuid.UUID) (*Favorite, error)
	// ListHistory returns entries newest first. A limit <= 0 returns every entry.
	ListHistory(ctx context.Context, userID string, cursor *HistoryCursor, limit int) ([]HistoryEntry, *HistoryCursor, error)
	// GetHistoryEntry is GetFavorite for history entries.
	GetHistoryEntry(ctx context.Context, id uuid.UUID) (*HistoryEntry, error)
	// GetPrefs returns nil, nil when the user has no preferences yet.
	GetPrefs(ctx context.Context, userID string) (*UserPrefs, error)
	Save(ctx context.Context, changes ChangeSet) error
}

// FetchOrCreatePrefs returns the user's preferences, creating and persisting an
// empty record when none exists.
func FetchOrCreatePrefs(ctx context.Context, store RecordStore, userID string, now time.Time) (*UserPrefs, error) {
	prefs, err := store.GetPrefs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs != nil {
		return prefs, nil
	}

	prefs = &UserPrefs{
		ID:        uuid.New(),
		UserID:    userID,
		Hidden:    NewIDSet(),
		UpdatedAt: Present(now),
	}
	if err := store.Save(ctx, ChangeSet{Prefs: prefs}); err != nil {
		return nil, err
	}
	// A concurrent creator may have won the upsert; read back the stored row.
	stored, err := store.GetPrefs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return prefs, nil
	}
	return stored, nil
}
