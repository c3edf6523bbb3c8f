package syncmerge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/observability"
)

// Record kinds used in logs and metric labels.
const (
	KindFavorites = "favorites"
	KindHistory   = "history"
	KindHidden    = "hidden"
)

// Option configures optional behaviour for the Resolver.
type Option func(*Resolver)

// WithLogger overrides the logger used to report merge decisions.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithClock overrides the time source used to stamp preference updates.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// Resolver fetches local records, plans a merge and persists it in one Save.
// It assumes no other writer touches the user's records during a merge.
type Resolver struct {
	store  domain.RecordStore
	now    func() time.Time
	logger *log.Logger
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store domain.RecordStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		now:    time.Now,
		logger: log.New(log.Writer(), "[syncmerge] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MergeFavorites reconciles a remote favorites batch for the user.
func (r *Resolver) MergeFavorites(ctx context.Context, userID string, remote []RemoteFavorite) (MergeResult, error) {
	local, err := r.store.ListFavorites(ctx, userID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("list local favorites: %w", err)
	}

	plan, err := PlanFavorites(ctx, userID, local, remote, Lookups{Activity: r.resolveActivity, Owner: r.favoriteOwner})
	if err != nil {
		return MergeResult{}, err
	}
	return r.commit(ctx, KindFavorites, userID, plan)
}

// MergeHistoryEntries reconciles a remote history batch for the user.
func (r *Resolver) MergeHistoryEntries(ctx context.Context, userID string, remote []RemoteHistoryEntry) (MergeResult, error) {
	local, _, err := r.store.ListHistory(ctx, userID, nil, 0)
	if err != nil {
		return MergeResult{}, fmt.Errorf("list local history: %w", err)
	}

	plan, err := PlanHistory(ctx, userID, local, remote, Lookups{Activity: r.resolveActivity, Owner: r.historyOwner})
	if err != nil {
		return MergeResult{}, err
	}
	return r.commit(ctx, KindHistory, userID, plan)
}

// MergeHiddenActivities unions the remote hidden ids into the user's
// preferences. Nothing is written unless the set grows.
func (r *Resolver) MergeHiddenActivities(ctx context.Context, userID string, remote []uuid.UUID) (MergeResult, error) {
	prefs, err := r.store.GetPrefs(ctx, userID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("get preferences: %w", err)
	}
	if prefs == nil {
		prefs = &domain.UserPrefs{ID: uuid.New(), UserID: userID, Hidden: domain.NewIDSet()}
	}

	merged, grew := UnionHidden(prefs.Hidden, remote)
	if !grew {
		r.logger.Printf("hidden activities unchanged (user=%s, local=%d)", userID, len(prefs.Hidden))
		observability.RecordMerge(KindHidden, 0, 0, 0, r.now())
		return MergeResult{}, nil
	}

	updated := *prefs
	updated.Hidden = merged
	updated.UpdatedAt = domain.Present(r.now())
	if err := r.store.Save(ctx, domain.ChangeSet{Prefs: &updated}); err != nil {
		return MergeResult{}, fmt.Errorf("save merged hidden activities: %w", err)
	}

	r.logger.Printf("merged hidden activities (user=%s, added %d from server)", userID, len(merged)-len(prefs.Hidden))
	result := MergeResult{Updated: 1}
	observability.RecordMerge(KindHidden, result.Created, result.Updated, result.Conflicts, r.now())
	return result, nil
}

func (r *Resolver) commit(ctx context.Context, kind, userID string, plan Plan) (MergeResult, error) {
	if !plan.Changes.Empty() {
		if err := r.store.Save(ctx, plan.Changes); err != nil {
			return MergeResult{}, fmt.Errorf("save merged %s: %w", kind, err)
		}
	}

	for _, d := range plan.Decisions {
		switch d.Outcome {
		case OutcomeCreated:
			r.logger.Printf("created %s record %s from server", kind, d.ID)
		case OutcomeUpdated:
			r.logger.Printf("updated %s record %s from server (newer timestamp)", kind, d.ID)
		case OutcomeConflict:
			r.logger.Printf("kept local %s record %s (local wins)", kind, d.ID)
		case OutcomeSkipped:
			r.logger.Printf("skipped %s record %s: activity not found locally", kind, d.ID)
		case OutcomeForeign:
			r.logger.Printf("skipped %s record %s: id belongs to another user", kind, d.ID)
		}
	}
	r.logger.Printf("%s merge for user=%s: %s", kind, userID, plan.Result.Summary())

	observability.RecordMerge(kind, plan.Result.Created, plan.Result.Updated, plan.Result.Conflicts, r.now())
	return plan.Result, nil
}

func (r *Resolver) resolveActivity(ctx context.Context, activityID uuid.UUID) (bool, error) {
	activity, err := r.store.GetActivity(ctx, activityID)
	if err != nil {
		return false, err
	}
	return activity != nil, nil
}

func (r *Resolver) favoriteOwner(ctx context.Context, id uuid.UUID) (string, error) {
	fav, err := r.store.GetFavorite(ctx, id)
	if err != nil || fav == nil {
		return "", err
	}
	return fav.UserID, nil
}

func (r *Resolver) historyOwner(ctx context.Context, id uuid.UUID) (string, error) {
	entry, err := r.store.GetHistoryEntry(ctx, id)
	if err != nil || entry == nil {
		return "", err
	}
	return entry.UserID, nil
}
