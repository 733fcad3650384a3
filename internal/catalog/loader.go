// Package catalog loads the static game catalog: the home list and one list per
// category, with short-lived caching and single-game lookup.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/platform/storage"
)

const (
	// DefaultStaleAfter is how long a fetched list is served without refetching.
	DefaultStaleAfter = 5 * time.Minute
	// MaxRelated caps the related games returned with a single game.
	MaxRelated = 15
	// DefaultFetchTimeout bounds one shared fetch of a data file.
	DefaultFetchTimeout = 30 * time.Second
)

var tracer = otel.Tracer("finitefield.org/arcade/internal/catalog")

// LoaderDeps bundles constructor inputs for the loader.
type LoaderDeps struct {
	Source     Source
	StaleAfter time.Duration
	// FetchTimeout bounds a fetch shared by concurrent callers. It runs
	// detached from any one caller's context.
	FetchTimeout time.Duration
	Clock        func() time.Time
	// Shuffle reorders related games; defaults to math/rand/v2.
	Shuffle func(n int, swap func(i, j int))
	Logger  *zap.Logger
}

// Loader fetches, validates and caches catalog lists.
type Loader struct {
	source       Source
	staleAfter   time.Duration
	fetchTimeout time.Duration
	clock        func() time.Time
	shuffle      func(n int, swap func(i, j int))
	logger       *zap.Logger
	policy       *bluemonday.Policy

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	games     []domain.Game
	fetchedAt time.Time
}

// NewLoader constructs a Loader with the supplied dependencies.
func NewLoader(deps LoaderDeps) (*Loader, error) {
	if deps.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	staleAfter := deps.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	fetchTimeout := deps.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	shuffle := deps.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:       deps.Source,
		staleAfter:   staleAfter,
		fetchTimeout: fetchTimeout,
		clock:        clock,
		shuffle:      shuffle,
		logger:       logger,
		policy:       bluemonday.StrictPolicy(),
		cache:        make(map[string]cacheEntry),
	}, nil
}

// Home returns the home page list.
func (l *Loader) Home(ctx context.Context) ([]domain.Game, error) {
	return l.load(ctx, storage.HomeDataPath)
}

// Category returns every game listed in the category's data file.
func (l *Loader) Category(ctx context.Context, category string) ([]domain.Game, error) {
	path, err := storage.CategoryDataPath(category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCategory, err)
	}
	return l.load(ctx, path)
}

// Game looks up one game of a category by id, then by exact title, then by
// partial title, and returns it with up to MaxRelated other games in random order.
func (l *Loader) Game(ctx context.Context, category, id string) (domain.GameDetail, error) {
	games, err := l.Category(ctx, category)
	if err != nil {
		return domain.GameDetail{}, err
	}
	if len(games) == 0 {
		return domain.GameDetail{}, fmt.Errorf("%w in %s category", ErrEmptyCatalog, category)
	}

	game, ok := findGame(games, id)
	if !ok {
		l.logger.Info("catalog game not found",
			zap.String("category", category),
			zap.String("id", id),
			zap.Int("available", len(games)),
		)
		return domain.GameDetail{}, fmt.Errorf("%w: %q in %s category", ErrGameNotFound, id, category)
	}

	related := make([]domain.Game, 0, len(games))
	for _, candidate := range games {
		if candidate.ID != game.ID {
			related = append(related, candidate)
		}
	}
	l.shuffle(len(related), func(i, j int) { related[i], related[j] = related[j], related[i] })
	if len(related) > MaxRelated {
		related = related[:MaxRelated]
	}

	return domain.GameDetail{Game: game, Related: related}, nil
}

// Invalidate drops every cached list.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]cacheEntry)
	l.mu.Unlock()
}

func findGame(games []domain.Game, id string) (domain.Game, bool) {
	for _, g := range games {
		if g.ID == id {
			return g, true
		}
	}
	needle := strings.ToLower(id)
	for _, g := range games {
		if strings.ToLower(g.Title) == needle {
			return g, true
		}
	}
	for _, g := range games {
		if strings.Contains(strings.ToLower(g.Title), needle) {
			return g, true
		}
	}
	return domain.Game{}, false
}

func (l *Loader) load(ctx context.Context, path string) ([]domain.Game, error) {
	if games, ok := l.cached(path); ok {
		return games, nil
	}

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := l.group.DoChan(path, func() (any, error) {
		if games, ok := l.cached(path); ok {
			return games, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.fetchTimeout)
		defer cancel()
		games, err := l.fetch(fetchCtx, path)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[path] = cacheEntry{games: games, fetchedAt: l.clock()}
		l.mu.Unlock()
		return games, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			l.logger.Warn("catalog load failed", zap.String("path", path), zap.Error(res.Err))
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.Game)), nil
	}
}

func (l *Loader) cached(path string) ([]domain.Game, bool) {
	l.mu.RLock()
	entry, ok := l.cache[path]
	l.mu.RUnlock()
	if !ok || l.clock().Sub(entry.fetchedAt) >= l.staleAfter {
		return nil, false
	}
	return slices.Clone(entry.games), true
}

func (l *Loader) fetch(ctx context.Context, path string) ([]domain.Game, error) {
	ctx, span := tracer.Start(ctx, "catalog.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.path", path))

	raw, err := l.source.Fetch(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	games, err := decodeGames(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range games {
		games[i].Description = l.sanitize(games[i].Description)
		games[i].Instructions = l.sanitize(games[i].Instructions)
	}
	span.SetAttributes(attribute.Int("catalog.games", len(games)))
	return games, nil
}

func (l *Loader) sanitize(text string) string {
	if text == "" {
		return text
	}
	return strings.TrimSpace(html.UnescapeString(l.policy.Sanitize(text)))
}

func decodeGames(raw []byte) ([]domain.Game, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, ErrMalformed
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidFormat
	}
	var games []domain.Game
	if err := json.Unmarshal(trimmed, &games); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if games == nil {
		games = []domain.Game{}
	}
	return games, nil
}
