package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ResetSnapshot is everything ResetUserData removed. Handing it back to
// RestoreUserData undoes the reset.
type ResetSnapshot struct {
	Favorites []Favorite
	History   []HistoryEntry
	Prefs     *UserPrefs
	TakenAt   time.Time
}

// Empty reports whether the reset found nothing to remove.
func (s ResetSnapshot) Empty() bool {
	return len(s.Favorites) == 0 && len(s.History) == 0 && s.Prefs == nil
}

// RestoreResult counts what RestoreUserData put back.
type RestoreResult struct {
	Favorites int
	History   int
	Prefs     bool
	Skipped   int
}

// ResetUserData deletes the user's favorites, history and preferences in one
// change set and returns what was removed. The activity catalog is untouched.
func (s *Service) ResetUserData(ctx context.Context, userID string) (*ResetSnapshot, error) {
	favorites, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, _, err := s.store.ListHistory(ctx, userID, nil, 0)
	if err != nil {
		return nil, err
	}
	prefs, err := s.store.GetPrefs(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &ResetSnapshot{
		Favorites: favorites,
		History:   history,
		Prefs:     prefs,
		TakenAt:   Instant(s.now()),
	}
	if snapshot.Empty() {
		return snapshot, nil
	}

	changes := ChangeSet{DeletedFavorites: favorites, DeletedHistory: history, DeletedPrefs: prefs}
	if err := s.store.Save(ctx, changes); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RestoreUserData writes a snapshot back for userID in one change set. Every
// record is reassigned to userID. Records whose activity no longer exists,
// whose id is taken, or whose activity the user has favorited again since
// the reset are skipped. Snapshot preferences replace the current ones.
func (s *Service) RestoreUserData(ctx context.Context, userID string, snapshot ResetSnapshot) (RestoreResult, error) {
	var (
		result  RestoreResult
		changes ChangeSet
	)

	current, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return RestoreResult{}, err
	}
	favorited := NewIDSet()
	for _, f := range current {
		favorited.Add(f.ActivityID)
	}

	for _, f := range snapshot.Favorites {
		ok, err := s.restorable(ctx, f.ActivityID, func() (bool, error) {
			existing, err := s.store.GetFavorite(ctx, f.ID)
			return existing != nil, err
		})
		if err != nil {
			return RestoreResult{}, err
		}
		if !ok || favorited.Contains(f.ActivityID) {
			result.Skipped++
			continue
		}
		f.UserID = userID
		favorited.Add(f.ActivityID)
		changes.CreatedFavorites = append(changes.CreatedFavorites, f)
		result.Favorites++
	}

	for _, e := range snapshot.History {
		ok, err := s.restorable(ctx, e.ActivityID, func() (bool, error) {
			existing, err := s.store.GetHistoryEntry(ctx, e.ID)
			return existing != nil, err
		})
		if err != nil {
			return RestoreResult{}, err
		}
		if !ok {
			result.Skipped++
			continue
		}
		e.UserID = userID
		changes.CreatedHistory = append(changes.CreatedHistory, e)
		result.History++
	}

	if snapshot.Prefs != nil {
		prefs := *snapshot.Prefs
		prefs.UserID = userID
		prefs.Hidden = prefs.Hidden.Clone()
		if existing, err := s.store.GetPrefs(ctx, userID); err != nil {
			return RestoreResult{}, err
		} else if existing != nil {
			prefs.ID = existing.ID
		}
		changes.Prefs = &prefs
		result.Prefs = true
	}

	if changes.Empty() {
		return result, nil
	}
	if err := s.store.Save(ctx, changes); err != nil {
		return RestoreResult{}, err
	}
	return result, nil
}

// restorable reports whether activityID still exists and taken reports false.
func (s *Service) restorable(ctx context.Context, activityID uuid.UUID, taken func() (bool, error)) (bool, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil || activity == nil {
		return false, err
	}
	used, err := taken()
	if err != nil {
		return false, err
	}
	return !used, nil
}
