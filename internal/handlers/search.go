package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"finitefield.org/arcade/internal/platform/httpx"
	"finitefield.org/arcade/internal/platform/requestctx"
	"finitefield.org/arcade/internal/search"
)

const (
	defaultSearchRateLimit  = 60
	defaultSearchRateWindow = time.Minute
	liveWriteTimeout        = 5 * time.Second
	liveMaxMessageBytes     = 4 << 10
)

// SearchHandlers serves one-shot search and the debounced live search socket.
type SearchHandlers struct {
	catalog    search.CatalogFunc
	debounce   time.Duration
	maxResults int
	limiter    rateLimiter
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// SearchOption customises SearchHandlers.
type SearchOption func(*SearchHandlers)

// WithSearchDebounce overrides the live search debounce window.
func WithSearchDebounce(d time.Duration) SearchOption {
	return func(h *SearchHandlers) {
		if d >= 0 {
			h.debounce = d
		}
	}
}

// WithSearchMaxResults overrides the result cap.
func WithSearchMaxResults(n int) SearchOption {
	return func(h *SearchHandlers) {
		if n > 0 {
			h.maxResults = n
		}
	}
}

// WithSearchRateLimit limits one-shot searches and live queries per client address.
// A non-positive limit disables limiting.
func WithSearchRateLimit(limit int, window time.Duration, clock func() time.Time) SearchOption {
	return func(h *SearchHandlers) {
		h.limiter = newClientLimiter(limit, window, clock)
	}
}

// WithSearchLogger sets the logger used by live sessions.
func WithSearchLogger(logger *zap.Logger) SearchOption {
	return func(h *SearchHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewSearchHandlers constructs search handlers over catalog.
func NewSearchHandlers(catalog search.CatalogFunc, opts ...SearchOption) *SearchHandlers {
	h := &SearchHandlers{
		catalog:    catalog,
		debounce:   search.DefaultDebounce,
		maxResults: search.MaxResults,
		limiter:    newClientLimiter(defaultSearchRateLimit, defaultSearchRateWindow, nil),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers search endpoints.
func (h *SearchHandlers) Routes(r chi.Router) {
	r.Get("/", h.searchOnce)
	r.Get("/live", h.searchLive)
}

func (h *SearchHandlers) searchOnce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many search requests", http.StatusTooManyRequests))
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeJSONResponse(w, http.StatusOK, search.SearchN(query, nil, h.maxResults))
		return
	}

	games, err := h.catalog(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, search.SearchN(query, games, h.maxResults))
}

type liveQuery struct {
	Query string `json:"query"`
}

type liveMessage struct {
	Searching bool           `json:"searching"`
	Result    *search.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (h *SearchHandlers) searchLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		requestctx.Logger(r.Context()).Debug("live search upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveMaxMessageBytes)

	logger := requestctx.LoggerOr(r.Context(), h.logger)
	client := clientKey(r)

	var writeMu sync.Mutex
	send := func(msg liveMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("live search write failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	session := search.NewSession(ctx, h.catalog,
		search.WithDebounce(h.debounce),
		search.WithMaxResults(h.maxResults),
		search.WithLogger(logger),
		search.WithListener(func(result search.Result) {
			send(liveMessage{Result: &result})
		}),
	)
	defer session.Close()

	for {
		var msg liveQuery
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("live search closed", zap.Error(err))
			}
			return
		}
		if h.limiter != nil && !h.limiter.Allow(client) {
			send(liveMessage{Error: "rate_limited"})
			continue
		}
		send(liveMessage{Searching: true})
		session.SetQuery(msg.Query)
	}
}

func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
