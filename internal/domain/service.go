// Package domain defines the menu records and the business rules around them.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates favorites, history and preference workflows.
type Service struct {
	store RecordStore
	now   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(store RecordStore, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFavorite favorites an activity. Favoriting twice returns the existing record.
func (s *Service) AddFavorite(ctx context.Context, userID string, activityID uuid.UUID) (*Favorite, bool, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, false, err
	}

	favorites, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	for _, fav := range favorites {
		if fav.ActivityID == activityID {
			existing := fav
			return &existing, true, nil
		}
	}

	now := Instant(s.now())
	favorite := Favorite{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: activityID,
		CreatedAt:  now,
		UpdatedAt:  Present(now),
	}
	if err := s.store.Save(ctx, ChangeSet{CreatedFavorites: []Favorite{favorite}}); err != nil {
		return nil, false, err
	}
	return &favorite, false, nil
}

// RemoveFavorite deletes a favorite owned by the user.
func (s *Service) RemoveFavorite(ctx context.Context, userID string, favoriteID uuid.UUID) error {
	favorites, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return err
	}
	for _, fav := range favorites {
		if fav.ID == favoriteID {
			return s.store.Save(ctx, ChangeSet{DeletedFavorites: []Favorite{fav}})
		}
	}
	return ErrFavoriteNotFound
}

// ListFavorites returns the user's favorites.
func (s *Service) ListFavorites(ctx context.Context, userID string) ([]Favorite, error) {
	return s.store.ListFavorites(ctx, userID)
}

// RecordCompletion appends a history entry for the activity.
func (s *Service) RecordCompletion(ctx context.Context, userID string, activityID uuid.UUID, snapshot *FilterSnapshot) (*HistoryEntry, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	now := Instant(s.now())
	entry := HistoryEntry{
		ID:          uuid.New(),
		UserID:      userID,
		ActivityID:  activityID,
		CompletedAt: now,
		UpdatedAt:   Present(now),
	}
	if snapshot != nil {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("encode context snapshot: %w", err)
		}
		entry.ContextSnapshot = raw
	}

	if err := s.store.Save(ctx, ChangeSet{CreatedHistory: []HistoryEntry{entry}}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListHistory fetches history entries with cursor pagination.
func (s *Service) ListHistory(ctx context.Context, userID string, cursor *HistoryCursor, limit int) ([]HistoryEntry, *HistoryCursor, error) {
	return s.store.ListHistory(ctx, userID, cursor, limit)
}

// Prefs returns the user's preferences, creating them on first access.
func (s *Service) Prefs(ctx context.Context, userID string) (*UserPrefs, error) {
	return FetchOrCreatePrefs(ctx, s.store, userID, s.now())
}

// HideActivity adds the activity to the user's hidden set.
func (s *Service) HideActivity(ctx context.Context, userID string, activityID uuid.UUID) (*UserPrefs, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	prefs, err := s.Prefs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs.Hidden.Contains(activityID) {
		return prefs, nil
	}

	updated := *prefs
	updated.Hidden = prefs.Hidden.Clone()
	updated.Hidden.Add(activityID)
	updated.UpdatedAt = Present(s.now())
	if err := s.store.Save(ctx, ChangeSet{Prefs: &updated}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// HiddenActivities returns the user's hidden set without creating preferences.
func (s *Service) HiddenActivities(ctx context.Context, userID string) (IDSet, error) {
	prefs, err := s.store.GetPrefs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return NewIDSet(), nil
	}
	return prefs.Hidden, nil
}

func (s *Service) requireActivity(ctx context.Context, activityID uuid.UUID) error {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if activity == nil {
		return ErrActivityNotFound
	}
	return nil
}
