package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/arcade/internal/catalog"
	"finitefield.org/arcade/internal/categorize"
	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/platform/httpx"
	"finitefield.org/arcade/internal/platform/pagination"
	"finitefield.org/arcade/internal/platform/requestctx"
	"finitefield.org/arcade/internal/search"
)

// CatalogReader is the read side of the catalog loader.
type CatalogReader interface {
	Home(ctx context.Context) ([]domain.Game, error)
	Category(ctx context.Context, category string) ([]domain.Game, error)
	Game(ctx context.Context, category, id string) (domain.GameDetail, error)
}

// FavoriteChecker reports whether a game is a favorite.
type FavoriteChecker interface {
	IsFavorite(id string) bool
}

// CatalogHandlers serves the home view, category pages and game details.
type CatalogHandlers struct {
	catalog   CatalogReader
	favorites FavoriteChecker
	pageSize  int
	featured  int
	shuffle   categorize.Shuffler
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithCatalogFavorites enables the favorite flag on game details.
func WithCatalogFavorites(favorites FavoriteChecker) CatalogOption {
	return func(h *CatalogHandlers) {
		h.favorites = favorites
	}
}

// WithCatalogPageSize overrides the default category page size.
func WithCatalogPageSize(size int) CatalogOption {
	return func(h *CatalogHandlers) {
		if size > 0 {
			h.pageSize = size
		}
	}
}

// WithCatalogFeatured sets how many featured games the home view carries and
// how they are drawn. A count of zero disables the featured row.
func WithCatalogFeatured(count int, shuffle categorize.Shuffler) CatalogOption {
	return func(h *CatalogHandlers) {
		if count >= 0 {
			h.featured = count
		}
		h.shuffle = shuffle
	}
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(reader CatalogReader, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{catalog: reader, pageSize: pagination.ItemsPerPage, featured: categorize.FeaturedCount}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/home", h.home)
	r.Get("/categories/{category}/games", h.categoryGames)
	r.Get("/categories/{category}/games/{gameID}", h.gameDetail)
}

func (h *CatalogHandlers) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	games, err := h.catalog.Home(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	groups := categorize.Group(games)
	featured := categorize.Featured(groups, h.featured, h.shuffle)
	if featured == nil {
		featured = []domain.Game{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"categories": groups,
		"featured":   featured,
		"total":      len(games),
	})
}

type categoryPagePayload struct {
	Category   string        `json:"category"`
	Query      string        `json:"query,omitempty"`
	Items      []domain.Game `json:"items"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	Total      int           `json:"total"`
}

func (h *CatalogHandlers) categoryGames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	category := chi.URLParam(r, "category")
	params, err := pagination.FromRequest(r, pagination.Options{DefaultPageSize: h.pageSize})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return
	}

	games, err := h.catalog.Category(ctx, category)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	query := strings.TrimSpace(params.Query)
	filtered := search.FilterByTitle(query, games)
	page := pagination.Paginate(filtered, params.PageSize, 1)
	current := pagination.Clamp(params.Page, page.TotalPages)
	if current != 1 {
		page = pagination.Paginate(filtered, params.PageSize, current)
	}

	writeJSONResponse(w, http.StatusOK, categoryPagePayload{
		Category:   category,
		Query:      query,
		Items:      page.Items,
		Page:       current,
		TotalPages: page.TotalPages,
		Total:      len(filtered),
	})
}

type gameDetailPayload struct {
	Game     domain.Game   `json:"game"`
	Tags     []string      `json:"tags"`
	Related  []domain.Game `json:"related"`
	Favorite bool          `json:"favorite"`
}

func (h *CatalogHandlers) gameDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	category := chi.URLParam(r, "category")
	gameID := strings.TrimSpace(chi.URLParam(r, "gameID"))
	if gameID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "game id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.catalog.Game(ctx, category, gameID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	related := detail.Related
	if related == nil {
		related = []domain.Game{}
	}
	payload := gameDetailPayload{
		Game:    detail.Game,
		Tags:    detail.Game.TagList(),
		Related: related,
	}
	if h.favorites != nil {
		payload.Favorite = h.favorites.IsFavorite(detail.Game.ID)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var fetchErr *catalog.FetchError
	switch {
	case errors.Is(err, catalog.ErrInvalidCategory):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_category", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, catalog.ErrGameNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("game_not_found", "game not found", http.StatusNotFound))
		return
	case errors.Is(err, catalog.ErrEmptyCatalog):
		httpx.WriteError(ctx, w, httpx.NewError("empty_catalog", "no games found in this category", http.StatusNotFound))
		return
	case errors.As(err, &fetchErr) && fetchErr.NotFound():
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category data not found", http.StatusNotFound))
		return
	case errors.Is(err, catalog.ErrNotJSON),
		errors.Is(err, catalog.ErrTooLarge),
		errors.Is(err, catalog.ErrInvalidFormat),
		errors.Is(err, catalog.ErrMalformed):
		requestctx.Logger(ctx).Error("catalog data invalid", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("catalog_invalid", err.Error(), http.StatusBadGateway))
		return
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_timeout", "catalog request timed out", http.StatusGatewayTimeout))
		return
	case errors.As(err, &fetchErr):
		requestctx.Logger(ctx).Warn("catalog fetch failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", err.Error(), http.StatusBadGateway))
		return
	}

	requestctx.Logger(ctx).Error("catalog request failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load catalog", http.StatusInternalServerError))
}
