package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/favorites"
	"finitefield.org/arcade/internal/platform/auth"
	"finitefield.org/arcade/internal/platform/httpx"
)

// FavoritesStore is the favorites cache used by the HTTP surface.
type FavoritesStore interface {
	Favorites() []domain.Favorite
	IsFavorite(id string) bool
	Add(ctx context.Context, game domain.Game) error
	Remove(ctx context.Context, id string)
	RemoveAll(ctx context.Context)
	CurrentUser() domain.User
	IsOnline() bool
}

var _ FavoritesStore = (*favorites.Store)(nil)

// FavoriteHandlers exposes the favorites store. Once a user is signed in,
// every route requires that user's bearer token.
type FavoriteHandlers struct {
	store    FavoritesStore
	identify func(http.Handler) http.Handler
}

// NewFavoriteHandlers constructs favorites handlers. A nil authn means nobody
// can sign in, so the store stays anonymous and device-local.
func NewFavoriteHandlers(store FavoritesStore, authn *auth.Authenticator) *FavoriteHandlers {
	h := &FavoriteHandlers{store: store}
	if authn != nil {
		h.identify = authn.IdentifyFirebaseUser()
	}
	return h
}

// Routes registers favorites endpoints.
func (h *FavoriteHandlers) Routes(r chi.Router) {
	if h.identify != nil {
		r = r.With(h.identify)
	}
	r.Get("/", h.list)
	r.Delete("/", h.removeAll)
	r.Put("/{gameID}", h.add)
	r.Delete("/{gameID}", h.remove)
}

type favoritePayload struct {
	domain.Game
	AddedAt string `json:"addedAt,omitempty"`
}

type favoritesListPayload struct {
	Items  []favoritePayload `json:"items"`
	UserID string            `json:"userId,omitempty"`
	Online bool              `json:"online"`
}

func (h *FavoriteHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		writeFavoritesUnavailable(ctx, w)
		return
	}
	if !authorizeOwner(w, r, h.store.CurrentUser()) {
		return
	}

	items := h.store.Favorites()
	payload := favoritesListPayload{
		Items:  make([]favoritePayload, 0, len(items)),
		UserID: h.store.CurrentUser().ID,
		Online: h.store.IsOnline(),
	}
	for _, item := range items {
		payload.Items = append(payload.Items, favoritePayload{Game: item.Game, AddedAt: formatTime(item.AddedAt)})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *FavoriteHandlers) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		writeFavoritesUnavailable(ctx, w)
		return
	}
	if !authorizeOwner(w, r, h.store.CurrentUser()) {
		return
	}

	gameID := strings.TrimSpace(chi.URLParam(r, "gameID"))
	if gameID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "game id is required", http.StatusBadRequest))
		return
	}

	var game domain.Game
	if err := decodeJSONBody(r, &game); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if body := strings.TrimSpace(game.ID); body != "" && body != gameID {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "game id does not match path", http.StatusBadRequest))
		return
	}
	game.ID = gameID

	if err := h.store.Add(ctx, game); err != nil {
		if errors.Is(err, favorites.ErrInvalidGame) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to add favorite", http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FavoriteHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		writeFavoritesUnavailable(ctx, w)
		return
	}
	if !authorizeOwner(w, r, h.store.CurrentUser()) {
		return
	}

	gameID := strings.TrimSpace(chi.URLParam(r, "gameID"))
	if gameID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "game id is required", http.StatusBadRequest))
		return
	}
	h.store.Remove(ctx, gameID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *FavoriteHandlers) removeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		writeFavoritesUnavailable(ctx, w)
		return
	}
	if !authorizeOwner(w, r, h.store.CurrentUser()) {
		return
	}
	h.store.RemoveAll(ctx)
	w.WriteHeader(http.StatusNoContent)
}

// authorizeOwner answers 401 or 403 and returns false unless the request may
// act on current's state.
func authorizeOwner(w http.ResponseWriter, r *http.Request, current domain.User) bool {
	identity, _ := auth.IdentityFromContext(r.Context())
	err := auth.Authorize(current, identity)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrNotCurrentUser):
		httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "signed in as a different user", http.StatusForbidden))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	}
	return false
}

func writeFavoritesUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("favorites_unavailable", "favorites are unavailable", http.StatusServiceUnavailable))
}
