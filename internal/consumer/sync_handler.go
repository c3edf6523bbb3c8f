package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/events"
	"example.com/dailymenu/internal/syncmerge"
)

// ErrUnknownEventType is returned for records whose event_type header names
// no sync batch kind.
var ErrUnknownEventType = errors.New("consumer: unknown sync event type")

// Merger is the subset of the merge resolver the sync handler drives.
type Merger interface {
	MergeFavorites(ctx context.Context, userID string, remote []syncmerge.RemoteFavorite) (syncmerge.MergeResult, error)
	MergeHistoryEntries(ctx context.Context, userID string, remote []syncmerge.RemoteHistoryEntry) (syncmerge.MergeResult, error)
	MergeHiddenActivities(ctx context.Context, userID string, remote []uuid.UUID) (syncmerge.MergeResult, error)
}

// Applier applies a decoded message and reports what the merge did.
type Applier interface {
	Apply(context.Context, Message) (syncmerge.MergeResult, error)
}

type batch[T any] struct {
	Items []T `json:"items"`
}

// SyncHandler decodes sync batches and merges them into the local store.
type SyncHandler struct {
	merger Merger
}

// NewSyncHandler constructs a handler around the given merger.
func NewSyncHandler(merger Merger) *SyncHandler {
	return &SyncHandler{merger: merger}
}

// Handle implements Handler.
func (h *SyncHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.Apply(ctx, msg)
	return err
}

// Apply dispatches on the event type and runs the matching merge for the
// record's user.
func (h *SyncHandler) Apply(ctx context.Context, msg Message) (syncmerge.MergeResult, error) {
	switch msg.EventType {
	case events.TypeSyncFavorites:
		items, err := decodeItems[syncmerge.RemoteFavorite](msg)
		if err != nil {
			return syncmerge.MergeResult{}, err
		}
		return h.merger.MergeFavorites(ctx, msg.UserID, items)
	case events.TypeSyncHistory:
		items, err := decodeItems[syncmerge.RemoteHistoryEntry](msg)
		if err != nil {
			return syncmerge.MergeResult{}, err
		}
		return h.merger.MergeHistoryEntries(ctx, msg.UserID, items)
	case events.TypeSyncHidden:
		items, err := decodeItems[uuid.UUID](msg)
		if err != nil {
			return syncmerge.MergeResult{}, err
		}
		return h.merger.MergeHiddenActivities(ctx, msg.UserID, items)
	default:
		return syncmerge.MergeResult{}, fmt.Errorf("%w: %q", ErrUnknownEventType, msg.EventType)
	}
}

func decodeItems[T any](msg Message) ([]T, error) {
	var b batch[T]
	if err := json.Unmarshal(msg.Payload, &b); err != nil {
		return nil, fmt.Errorf("decode %s batch: %w", msg.EventType, err)
	}
	return b.Items, nil
}
