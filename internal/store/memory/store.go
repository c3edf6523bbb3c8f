// Package memory provides an in-process RecordStore for local development and tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
)

// Store keeps every record in maps guarded by a single lock.
type Store struct {
	mu         sync.RWMutex
	activities map[uuid.UUID]domain.Activity
	favorites  map[uuid.UUID]domain.Favorite
	history    map[uuid.UUID]domain.HistoryEntry
	prefs      map[string]domain.UserPrefs

	// SaveErr, when set, is returned by Save without applying anything.
	SaveErr error
	saves   int
}

// New constructs an empty store, optionally seeded with activities.
func New(activities ...domain.Activity) *Store {
	s := &Store{
		activities: make(map[uuid.UUID]domain.Activity),
		favorites:  make(map[uuid.UUID]domain.Favorite),
		history:    make(map[uuid.UUID]domain.HistoryEntry),
		prefs:      make(map[string]domain.UserPrefs),
	}
	for _, a := range activities {
		s.activities[a.ID] = a
	}
	return s
}

// Saves returns how many successful Save calls wrote data.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// FindActivities implements domain.RecordStore.
func (s *Store) FindActivities(ctx context.Context, query domain.ActivityQuery) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if query.Matches(a) {
			results = append(results, a)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Title < results[j].Title })
	return results, nil
}

// GetActivity implements domain.RecordStore.
func (s *Store) GetActivity(ctx context.Context, id uuid.UUID) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.activities[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// FindActivityByTitle implements domain.RecordStore.
func (s *Store) FindActivityByTitle(ctx context.Context, title string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.activities {
		if strings.EqualFold(a.Title, title) {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

// ListFavorites implements domain.RecordStore.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Favorite, 0)
	for _, f := range s.favorites {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetFavorite implements domain.RecordStore.
func (s *Store) GetFavorite(ctx context.Context, id uuid.UUID) (*domain.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.favorites[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// GetHistoryEntry implements domain.RecordStore.
func (s *Store) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.history[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// ListHistory implements domain.RecordStore.
func (s *Store) ListHistory(ctx context.Context, userID string, cursor *domain.HistoryCursor, limit int) ([]domain.HistoryEntry, *domain.HistoryCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.HistoryEntry, 0)
	for _, e := range s.history {
		if e.UserID != userID {
			continue
		}
		if cursor != nil && !before(e, *cursor) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return before(entries[j], domain.HistoryCursor{CompletedAt: entries[i].CompletedAt, ID: entries[i].ID})
	})

	if limit <= 0 || len(entries) < limit {
		return entries, nil, nil
	}
	entries = entries[:limit]
	last := entries[len(entries)-1]
	return entries, &domain.HistoryCursor{CompletedAt: last.CompletedAt, ID: last.ID}, nil
}

// before reports whether e sorts after the cursor position in newest-first order.
func before(e domain.HistoryEntry, c domain.HistoryCursor) bool {
	if !e.CompletedAt.Equal(c.CompletedAt) {
		return e.CompletedAt.Before(c.CompletedAt)
	}
	return bytes.Compare(e.ID[:], c.ID[:]) < 0
}

// GetPrefs implements domain.RecordStore.
func (s *Store) GetPrefs(ctx context.Context, userID string) (*domain.UserPrefs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	p.Hidden = p.Hidden.Clone()
	return &p, nil
}

// Save implements domain.RecordStore.
func (s *Store) Save(ctx context.Context, changes domain.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	if changes.Empty() {
		return nil
	}

	for _, a := range changes.CreatedActivities {
		s.activities[a.ID] = a
	}
	for _, f := range changes.CreatedFavorites {
		s.favorites[f.ID] = f
	}
	for _, f := range changes.UpdatedFavorites {
		s.favorites[f.ID] = f
	}
	for _, f := range changes.DeletedFavorites {
		delete(s.favorites, f.ID)
	}
	for _, e := range changes.CreatedHistory {
		s.history[e.ID] = e
	}
	for _, e := range changes.UpdatedHistory {
		s.history[e.ID] = e
	}
	for _, e := range changes.DeletedHistory {
		delete(s.history, e.ID)
	}
	if changes.DeletedPrefs != nil {
		delete(s.prefs, changes.DeletedPrefs.UserID)
	}
	if changes.Prefs != nil {
		p := *changes.Prefs
		if existing, ok := s.prefs[p.UserID]; ok {
			p.ID = existing.ID
		}
		p.Hidden = p.Hidden.Clone()
		s.prefs[p.UserID] = p
	}
	s.saves++
	return nil
}
