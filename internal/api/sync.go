package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/auth"
	"example.com/dailymenu/internal/syncmerge"
)

// SyncBatchRequest is the body of every /v1/sync endpoint.
type SyncBatchRequest[T any] struct {
	Items []T `json:"items"`
}

// sync handles POST /v1/sync/{favorites|history|hidden}.
func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSyncWrite)
	if !ok {
		return
	}

	var (
		result syncmerge.MergeResult
		err    error
	)
	kind := strings.TrimPrefix(r.URL.Path, "/v1/sync/")
	switch kind {
	case syncmerge.KindFavorites:
		var req SyncBatchRequest[syncmerge.RemoteFavorite]
		if !decodeBody(w, r, &req) {
			return
		}
		result, err = h.merger.MergeFavorites(r.Context(), claims.Subject, req.Items)
	case syncmerge.KindHistory:
		var req SyncBatchRequest[syncmerge.RemoteHistoryEntry]
		if !decodeBody(w, r, &req) {
			return
		}
		result, err = h.merger.MergeHistoryEntries(r.Context(), claims.Subject, req.Items)
	case syncmerge.KindHidden:
		var req SyncBatchRequest[uuid.UUID]
		if !decodeBody(w, r, &req) {
			return
		}
		result, err = h.merger.MergeHiddenActivities(r.Context(), claims.Subject, req.Items)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown sync kind")
		return
	}
	if err != nil {
		h.logger.Printf("sync %s failed (user=%s): %v", kind, claims.Subject, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMergeResultView(result))
}
