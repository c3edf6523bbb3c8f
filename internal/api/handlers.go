// Package api exposes HTTP handlers for the menu service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/auth"
	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/persistence"
	"example.com/dailymenu/internal/suggest"
	"example.com/dailymenu/internal/syncmerge"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Handler coordinates HTTP requests with the menu service, the per-user
// suggestion selectors and the sync resolver.
type Handler struct {
	service      *domain.Service
	suggestions  *suggest.Registry
	merger       *syncmerge.Resolver
	defaultCount int
	logger       *log.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithDefaultCount sets the suggestion count used when the request omits one.
func WithDefaultCount(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.defaultCount = n
		}
	}
}

// WithLogger overrides the handler logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, suggestions *suggest.Registry, merger *syncmerge.Resolver, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		suggestions:  suggestions,
		merger:       merger,
		defaultCount: 3,
		logger:       log.New(log.Writer(), "[api] ", log.LstdFlags|log.LUTC),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/suggestions", h.suggestionsRoot)
	mux.HandleFunc("/v1/suggestions/", h.suggestionByID)
	mux.HandleFunc("/v1/favorites", h.favorites)
	mux.HandleFunc("/v1/favorites/", h.favoriteByID)
	mux.HandleFunc("/v1/history", h.history)
	mux.HandleFunc("/v1/hidden", h.hidden)
	mux.HandleFunc("/v1/prefs", h.prefs)
	mux.HandleFunc("/v1/sync/", h.sync)
	mux.HandleFunc("/v1/me/data", h.resetUserData)
	mux.HandleFunc("/v1/me/data/restore", h.restoreUserData)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) suggestionsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSuggestions(w, r)
	case http.MethodDelete:
		h.endSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getSuggestions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMenuRead, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	criteria, err := h.parseCriteria(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	hidden, err := h.service.HiddenActivities(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	criteria.Hidden = hidden

	activities, err := h.suggestions.For(claims.Subject).Select(r.Context(), criteria)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) parseCriteria(r *http.Request) (suggest.Criteria, error) {
	q := r.URL.Query()
	criteria := suggest.Criteria{
		Energy:  domain.Energy(q.Get("energy")),
		Context: domain.SocialContext(q.Get("context")),
		Count:   h.defaultCount,
	}

	if name := q.Get("window"); name != "" {
		window, err := suggest.ParseWindow(name)
		if err != nil {
			return suggest.Criteria{}, err
		}
		criteria.Window = window
	} else {
		lo, err := intParam(q.Get("min"), "min")
		if err != nil {
			return suggest.Criteria{}, err
		}
		hi, err := intParam(q.Get("max"), "max")
		if err != nil {
			return suggest.Criteria{}, err
		}
		criteria.Window = suggest.TimeWindow{Min: lo, Max: hi}
	}

	if raw := q.Get("count"); raw != "" {
		n, err := intParam(raw, "count")
		if err != nil {
			return suggest.Criteria{}, err
		}
		criteria.Count = n
	}
	return criteria, nil
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMenuRead, auth.ScopeMenuWrite)
	if !ok {
		return
	}
	h.suggestions.End(claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}

// suggestionByID handles POST /v1/suggestions/{id}/dismiss.
func (h *Handler) suggestionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/suggestions/")
	rawID, action, found := strings.Cut(rest, "/")
	if !found || action != "dismiss" {
		writeError(w, http.StatusNotFound, "not_found", "unknown suggestion action")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid activity id")
		return
	}

	h.suggestions.For(claims.Subject).Dismiss(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) favorites(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listFavorites(w, r)
	case http.MethodPost:
		h.addFavorite(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMenuRead, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	favorites, err := h.service.ListFavorites(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]FavoriteView, 0, len(favorites))
	for _, f := range favorites {
		items = append(items, toFavoriteView(f))
	}
	writeJSON(w, http.StatusOK, ListFavoritesResponse{Items: items})
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	var req ActivityRefRequest
	if !decodeBody(w, r, &req) {
		return
	}

	favorite, existing, err := h.service.AddFavorite(r.Context(), claims.Subject, req.ActivityID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, toFavoriteView(*favorite))
}

func (h *Handler) favoriteByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/favorites/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid favorite id")
		return
	}

	if err := h.service.RemoveFavorite(r.Context(), claims.Subject, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listHistory(w, r)
	case http.MethodPost:
		h.recordCompletion(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMenuRead, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxHistoryLimit)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.service.ListHistory(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, toHistoryView(e))
	}
	writeJSON(w, http.StatusOK, ListHistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) recordCompletion(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	var req RecordCompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := h.service.RecordCompletion(r.Context(), claims.Subject, req.ActivityID, req.Snapshot)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHistoryView(*entry))
}

func (h *Handler) hidden(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	var req ActivityRefRequest
	if !decodeBody(w, r, &req) {
		return
	}

	prefs, err := h.service.HideActivity(r.Context(), claims.Subject, req.ActivityID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrefsView(*prefs))
}

func (h *Handler) prefs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeMenuRead, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	prefs, err := h.service.Prefs(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrefsView(*prefs))
}

// resetUserData handles DELETE /v1/me/data. The response body is the snapshot
// a client posts to /v1/me/data/restore to undo the reset.
func (h *Handler) resetUserData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	snapshot, err := h.service.ResetUserData(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.suggestions.End(claims.Subject)
	h.logger.Printf("reset data for %s: %d favorites, %d history entries", claims.Subject, len(snapshot.Favorites), len(snapshot.History))
	writeJSON(w, http.StatusOK, toUserDataSnapshot(*snapshot))
}

func (h *Handler) restoreUserData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeMenuWrite)
	if !ok {
		return
	}

	var req UserDataSnapshot
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.service.RestoreUserData(r.Context(), claims.Subject, req.resetSnapshot(claims.Subject))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RestoreResultView(result))
}

// requireScope writes 401/403 and returns false unless the request carries
// claims holding at least one of scopes.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, name)
	}
	return n, nil
}

// writeServiceError maps domain sentinels onto HTTP statuses. Anything
// unrecognised is a server error.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound), errors.Is(err, domain.ErrFavoriteNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}
