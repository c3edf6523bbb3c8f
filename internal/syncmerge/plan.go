// Package syncmerge reconciles remote sync batches with local records using a
// local-wins-unless-newer-server policy.
package syncmerge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
)

// ActivityResolver reports whether an activity exists locally. A false result
// with a nil error is a resolution miss, not a failure.
type ActivityResolver func(ctx context.Context, activityID uuid.UUID) (bool, error)

// OwnerResolver returns the user that owns a record id in any account, or ""
// when the id is unused.
type OwnerResolver func(ctx context.Context, id uuid.UUID) (string, error)

// Lookups resolves what a plan needs beyond the user's own records. A nil
// Owner treats every id missing from the local records as unused.
type Lookups struct {
	Activity ActivityResolver
	Owner    OwnerResolver
}

// Plan is the outcome of reconciling one batch, ready to be saved.
type Plan struct {
	Changes   domain.ChangeSet
	Result    MergeResult
	Decisions []Decision
}

// recordOps adapts a local/remote record pair to the shared merge loop.
type recordOps[L, R any] struct {
	localID       func(L) uuid.UUID
	localUpdated  func(L) domain.Timestamp
	remoteID      func(R) uuid.UUID
	remoteActID   func(R) uuid.UUID
	remoteUpdated func(R) domain.Timestamp
	fromRemote    func(R) L
	applyRemote   func(L, R) L
}

type slot struct {
	created bool
	idx     int
}

func planRecords[L, R any](ctx context.Context, userID string, ops recordOps[L, R], local []L, remote []R, lookups Lookups) (created, updated []L, result MergeResult, decisions []Decision, err error) {
	current := make(map[uuid.UUID]L, len(local))
	for _, l := range local {
		current[ops.localID(l)] = l
	}
	pending := make(map[uuid.UUID]slot)
	decisions = make([]Decision, 0, len(remote))

	for _, r := range remote {
		id := ops.remoteID(r)
		l, known := current[id]
		if !known {
			if lookups.Owner != nil {
				owner, ownerErr := lookups.Owner(ctx, id)
				if ownerErr != nil {
					return nil, nil, MergeResult{}, nil, fmt.Errorf("look up owner of %s: %w", id, ownerErr)
				}
				if owner != "" && owner != userID {
					decisions = append(decisions, Decision{ID: id, Outcome: OutcomeForeign})
					continue
				}
			}
			found, resolveErr := lookups.Activity(ctx, ops.remoteActID(r))
			if resolveErr != nil {
				return nil, nil, MergeResult{}, nil, fmt.Errorf("resolve activity %s: %w", ops.remoteActID(r), resolveErr)
			}
			if !found {
				decisions = append(decisions, Decision{ID: id, Outcome: OutcomeSkipped})
				continue
			}
			rec := ops.fromRemote(r)
			created = append(created, rec)
			current[id] = rec
			pending[id] = slot{created: true, idx: len(created) - 1}
			result.Created++
			decisions = append(decisions, Decision{ID: id, Outcome: OutcomeCreated})
			continue
		}

		if !ops.remoteUpdated(r).StrictlyAfter(ops.localUpdated(l)) {
			result.Conflicts++
			decisions = append(decisions, Decision{ID: id, Outcome: OutcomeConflict})
			continue
		}

		rec := ops.applyRemote(l, r)
		current[id] = rec
		if s, ok := pending[id]; ok {
			if s.created {
				created[s.idx] = rec
			} else {
				updated[s.idx] = rec
			}
		} else {
			updated = append(updated, rec)
			pending[id] = slot{idx: len(updated) - 1}
		}
		result.Updated++
		decisions = append(decisions, Decision{ID: id, Outcome: OutcomeUpdated})
	}
	return created, updated, result, decisions, nil
}

func favoriteOps(userID string) recordOps[domain.Favorite, RemoteFavorite] {
	return recordOps[domain.Favorite, RemoteFavorite]{
		localID:       func(f domain.Favorite) uuid.UUID { return f.ID },
		localUpdated:  func(f domain.Favorite) domain.Timestamp { return f.UpdatedAt },
		remoteID:      func(r RemoteFavorite) uuid.UUID { return r.ID },
		remoteActID:   func(r RemoteFavorite) uuid.UUID { return r.ActivityID },
		remoteUpdated: func(r RemoteFavorite) domain.Timestamp { return r.UpdatedAt },
		fromRemote: func(r RemoteFavorite) domain.Favorite {
			return domain.Favorite{
				ID:         r.ID,
				UserID:     userID,
				ActivityID: r.ActivityID,
				CreatedAt:  domain.Instant(r.CreatedAt),
				UpdatedAt:  r.UpdatedAt,
			}
		},
		applyRemote: func(f domain.Favorite, r RemoteFavorite) domain.Favorite {
			f.UpdatedAt = r.UpdatedAt
			return f
		},
	}
}

func historyOps(userID string) recordOps[domain.HistoryEntry, RemoteHistoryEntry] {
	return recordOps[domain.HistoryEntry, RemoteHistoryEntry]{
		localID:       func(e domain.HistoryEntry) uuid.UUID { return e.ID },
		localUpdated:  func(e domain.HistoryEntry) domain.Timestamp { return e.UpdatedAt },
		remoteID:      func(r RemoteHistoryEntry) uuid.UUID { return r.ID },
		remoteActID:   func(r RemoteHistoryEntry) uuid.UUID { return r.ActivityID },
		remoteUpdated: func(r RemoteHistoryEntry) domain.Timestamp { return r.UpdatedAt },
		fromRemote: func(r RemoteHistoryEntry) domain.HistoryEntry {
			return domain.HistoryEntry{
				ID:          r.ID,
				UserID:      userID,
				ActivityID:  r.ActivityID,
				CompletedAt: domain.Instant(r.CompletedAt),
				UpdatedAt:   r.UpdatedAt,
			}
		},
		applyRemote: func(e domain.HistoryEntry, r RemoteHistoryEntry) domain.HistoryEntry {
			e.UpdatedAt = r.UpdatedAt
			return e
		},
	}
}

// PlanFavorites reconciles remote favorites against the user's local ones.
// Unknown ids are created when their activity resolves and dropped otherwise.
// Ids already owned by another user are dropped without touching that record.
// Known ids are updated only when the remote timestamp is strictly newer;
// every other case, including equal or missing timestamps, keeps the local
// record and counts a conflict.
func PlanFavorites(ctx context.Context, userID string, local []domain.Favorite, remote []RemoteFavorite, lookups Lookups) (Plan, error) {
	created, updated, result, decisions, err := planRecords(ctx, userID, favoriteOps(userID), local, remote, lookups)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Changes:   domain.ChangeSet{CreatedFavorites: created, UpdatedFavorites: updated},
		Result:    result,
		Decisions: decisions,
	}, nil
}

// PlanHistory applies the PlanFavorites rules to history entries.
func PlanHistory(ctx context.Context, userID string, local []domain.HistoryEntry, remote []RemoteHistoryEntry, lookups Lookups) (Plan, error) {
	created, updated, result, decisions, err := planRecords(ctx, userID, historyOps(userID), local, remote, lookups)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Changes:   domain.ChangeSet{CreatedHistory: created, UpdatedHistory: updated},
		Result:    result,
		Decisions: decisions,
	}, nil
}

// UnionHidden merges remote hidden ids into the local set. The returned flag is
// true only when the union is larger than local.
func UnionHidden(local domain.IDSet, remote []uuid.UUID) (domain.IDSet, bool) {
	merged := local.Union(domain.NewIDSet(remote...))
	return merged, len(merged) > len(local)
}
