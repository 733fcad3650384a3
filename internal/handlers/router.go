package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finitefield.org/arcade/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	catalog   RouteRegistrar
	search    RouteRegistrar
	favorites RouteRegistrar
	session   RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// NewRouter builds the arcade API: health checks at the root and the catalog,
// search, favorites and session groups under /api/v1. A group without a
// registrar answers 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{middleware.RequestID, middleware.RealIP},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	timeout := middleware.Timeout(requestTimeout)
	r.Route(apiPrefix, func(api chi.Router) {
		// The catalog owns two top-level prefixes, so it registers on the
		// API root instead of a sub-route.
		api.Group(func(group chi.Router) {
			group.Use(timeout)
			if cfg.catalog != nil {
				cfg.catalog(group)
				return
			}
			group.HandleFunc("/home", notImplemented("catalog"))
			group.HandleFunc("/categories/*", notImplemented("catalog"))
		})

		// The live search socket outlives any request timeout.
		mountGroup(api, "/search", "search", cfg.search)
		mountGroup(api, "/favorites", "favorites", cfg.favorites, timeout)
		mountGroup(api, "/session", "session", cfg.session, timeout)
	})
	return r
}

func mountGroup(api chi.Router, path, name string, registrar RouteRegistrar, mws ...func(http.Handler) http.Handler) {
	api.Route(path, func(group chi.Router) {
		group.Use(mws...)
		if registrar != nil {
			registrar(group)
			return
		}
		group.HandleFunc("/", notImplemented(name))
		group.HandleFunc("/*", notImplemented(name))
	})
}

func notImplemented(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes not implemented", http.StatusNotImplemented))
	}
}

// WithMiddlewares appends global middleware after request id and real ip.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers sets the handlers behind /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCatalogRoutes registers /home and /categories.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.catalog = reg
	}
}

// WithSearchRoutes registers /search and the live search socket.
func WithSearchRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.search = reg
	}
}

// WithFavoriteRoutes registers /favorites.
func WithFavoriteRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.favorites = reg
	}
}

// WithSessionRoutes registers /session sign-in and sign-out.
func WithSessionRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.session = reg
	}
}
