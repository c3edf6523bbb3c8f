package syncmerge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
)

// RemoteFavorite is a favorite as reported by the sync server.
type RemoteFavorite struct {
	ID         uuid.UUID        `json:"id"`
	ActivityID uuid.UUID        `json:"activity_id"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  domain.Timestamp `json:"updated_at"`
	ETag       string           `json:"etag,omitempty"`
}

// RemoteHistoryEntry is a history entry as reported by the sync server.
type RemoteHistoryEntry struct {
	ID          uuid.UUID        `json:"id"`
	ActivityID  uuid.UUID        `json:"activity_id"`
	CompletedAt time.Time        `json:"completed_at"`
	UpdatedAt   domain.Timestamp `json:"updated_at"`
	ETag        string           `json:"etag,omitempty"`
}

// MergeResult counts what a merge did.
type MergeResult struct {
	Created   int
	Updated   int
	Conflicts int
}

// Total is the number of records written.
func (m MergeResult) Total() int {
	return m.Created + m.Updated
}

// HasConflicts reports whether any local record was kept over a remote one.
func (m MergeResult) HasConflicts() bool {
	return m.Conflicts > 0
}

// Summary renders the result for people, e.g. "2 created, 1 conflicts (local kept)".
func (m MergeResult) Summary() string {
	parts := make([]string, 0, 3)
	if m.Created > 0 {
		parts = append(parts, fmt.Sprintf("%d created", m.Created))
	}
	if m.Updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", m.Updated))
	}
	if m.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicts (local kept)", m.Conflicts))
	}
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, ", ")
}

func (m MergeResult) String() string {
	return m.Summary()
}

// Outcome is the fate of a single remote record.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeConflict Outcome = "conflict"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeForeign  Outcome = "foreign"
)

// Decision records the outcome for one remote record.
type Decision struct {
	ID      uuid.UUID
	Outcome Outcome
}
