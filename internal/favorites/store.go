// Package favorites implements the favorites write-through cache: every change
// is written to local storage first and mirrored to the signed-in user's remote
// collection on a best-effort basis.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/platform/localstore"
	"finitefield.org/arcade/internal/platform/signal"
	"finitefield.org/arcade/internal/repositories"
)

const (
	// StorageKey is the local slot holding the serialised favorites list.
	StorageKey = "favorites"

	defaultRemoteTimeout = 10 * time.Second
	metricNamespace      = "finitefield.org/arcade/internal/favorites"
)

// ErrInvalidGame is returned when a game without id is added.
var ErrInvalidGame = errors.New("favorites: game id is required")

// Source identifies where the current favorites snapshot was loaded from.
type Source string

const (
	SourceNone   Source = ""
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Deps bundles constructor inputs for the store. Remote may be nil, in which
// case favorites stay device-local.
type Deps struct {
	Local  localstore.Storage
	Remote repositories.FavoriteRepository
	User   *signal.Value[domain.User]
	Online *signal.Value[bool]
	Logger *zap.Logger
	Clock  func() time.Time
	Meter  metric.Meter
	// RemoteTimeout bounds each background remote call.
	RemoteTimeout time.Duration
}

// Store is the favorites cache. It is safe for concurrent use.
type Store struct {
	local         localstore.Storage
	remote        repositories.FavoriteRepository
	logger        *zap.Logger
	clock         func() time.Time
	remoteTimeout time.Duration

	failures        metric.Int64Counter
	failuresEnabled bool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
	unsubs []func()

	mu          sync.Mutex
	favorites   []domain.Favorite
	currentUser domain.User
	online      bool
	generation  uint64
	source      Source
	closed      bool
}

// New constructs the store, performs the initial load and starts tracking the
// user and online signals.
func New(ctx context.Context, deps Deps) (*Store, error) {
	if deps.Local == nil {
		return nil, errors.New("favorites: local storage is required")
	}
	if deps.User == nil || deps.Online == nil {
		return nil, errors.New("favorites: user and online signals are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	remoteTimeout := deps.RemoteTimeout
	if remoteTimeout <= 0 {
		remoteTimeout = defaultRemoteTimeout
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	failures, err := meter.Int64Counter(
		"favorites.remote.failures",
		metric.WithDescription("Count of failed best-effort remote favorites operations"),
	)
	if err != nil {
		logger.Warn("favorites: unable to register failure metric", zap.Error(err))
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Store{
		local:           deps.Local,
		remote:          deps.Remote,
		logger:          logger,
		clock:           clock,
		remoteTimeout:   remoteTimeout,
		failures:        failures,
		failuresEnabled: err == nil,
		ctx:             bg,
		cancel:          cancel,
		favorites:       []domain.Favorite{},
		currentUser:     deps.User.Get(),
		online:          deps.Online.Get(),
	}

	s.Reload(ctx)

	s.unsubs = append(s.unsubs,
		deps.User.Subscribe(s.onUser),
		deps.Online.Subscribe(s.onOnline),
	)
	return s, nil
}

// Favorites returns a copy of the favorites in insertion order.
func (s *Store) Favorites() []domain.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites)
}

// IsFavorite reports whether a game with id is in the list.
func (s *Store) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

// CurrentUser returns the user the store is currently bound to.
func (s *Store) CurrentUser() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}

// IsOnline returns the connectivity flag last observed by the store.
func (s *Store) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Source reports where the current snapshot was loaded from.
func (s *Store) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Add appends game unless its id is already present. The local slot is written
// before Add returns; the remote copy is written in the background.
func (s *Store) Add(ctx context.Context, game domain.Game) error {
	game.ID = strings.TrimSpace(game.ID)
	if game.ID == "" {
		return ErrInvalidGame
	}

	s.mu.Lock()
	if s.indexLocked(game.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.favorites = append(s.favorites, domain.Favorite{Game: game})
	s.persistLocked(ctx)
	user, online := s.currentUser, s.online
	s.mu.Unlock()

	if s.remoteEnabled(user, online) {
		addedAt := s.clock().UTC()
		s.spawn("favorites.put", user.ID, game.ID, func(ctx context.Context) error {
			return s.remote.Put(ctx, user.ID, game, addedAt)
		})
	}
	return nil
}

// Remove drops the game with id. The remote delete is issued even when the id
// was not present locally.
func (s *Store) Remove(ctx context.Context, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}

	s.mu.Lock()
	s.favorites = slices.DeleteFunc(s.favorites, func(f domain.Favorite) bool { return f.ID == id })
	s.persistLocked(ctx)
	user, online := s.currentUser, s.online
	s.mu.Unlock()

	if s.remoteEnabled(user, online) {
		s.spawn("favorites.delete", user.ID, id, func(ctx context.Context) error {
			return s.remote.Delete(ctx, user.ID, id)
		})
	}
}

// RemoveAll clears memory and the local slot, then deletes every remote
// favorite of the current user and waits for those deletions.
func (s *Store) RemoveAll(ctx context.Context) {
	s.mu.Lock()
	s.favorites = []domain.Favorite{}
	if err := s.local.RemoveItem(ctx, StorageKey); err != nil {
		s.logger.Warn("favorites: clear local storage failed", zap.Error(err))
	}
	user, online := s.currentUser, s.online
	s.mu.Unlock()

	if !s.remoteEnabled(user, online) {
		return
	}

	opID := ulid.Make().String()
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	deleted, err := s.remote.DeleteAll(rctx, user.ID)
	if err != nil {
		s.recordFailure(rctx, "favorites.delete_all", opID, user.ID, "", err)
		return
	}
	s.logger.Debug("favorites: remote cleared",
		zap.String("op_id", opID),
		zap.String("user_id", user.ID),
		zap.Int("deleted", deleted),
	)
}

// Reload replaces the in-memory list. A signed-in, online user reads the
// remote collection and the result is re-synced into the local slot; on
// remote failure or when anonymous or offline, the local slot is used. A
// load superseded by a newer one is discarded.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	user, online := s.currentUser, s.online
	s.mu.Unlock()

	items, source := s.loadSnapshot(ctx, user, online)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debug("favorites: discarding stale load", zap.Uint64("generation", gen))
		return
	}
	s.favorites = items
	s.source = source
	if source == SourceRemote {
		s.persistLocked(ctx)
	}
}

// Wait blocks until every background task has finished.
func (s *Store) Wait() {
	s.tasks.Wait()
}

// Close stops tracking signals, cancels in-flight remote calls and waits for
// background tasks.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, unsub := range s.unsubs {
		unsub()
	}
	s.cancel()
	s.tasks.Wait()
}

func (s *Store) onUser(user domain.User) {
	s.mu.Lock()
	changed := user.ID != s.currentUser.ID
	s.currentUser = user
	s.mu.Unlock()
	if changed {
		s.logger.Info("favorites: user changed", zap.Bool("anonymous", user.Anonymous()))
		s.spawnReload()
	}
}

func (s *Store) onOnline(online bool) {
	s.mu.Lock()
	changed := online != s.online
	s.online = online
	s.mu.Unlock()
	if changed {
		s.logger.Info("favorites: connectivity changed", zap.Bool("online", online))
		s.spawnReload()
	}
}

func (s *Store) spawnReload() {
	if !s.track() {
		return
	}
	go func() {
		defer s.tasks.Done()
		defer s.recoverPanic("favorites.reload", "")
		s.Reload(s.ctx)
	}()
}

func (s *Store) loadSnapshot(ctx context.Context, user domain.User, online bool) ([]domain.Favorite, Source) {
	if s.remoteEnabled(user, online) {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		items, err := s.remote.List(rctx, user.ID)
		cancel()
		if err == nil {
			return dedupe(items), SourceRemote
		}
		s.recordFailure(ctx, "favorites.list", ulid.Make().String(), user.ID, "", err)
	}
	return s.readLocal(ctx)
}

func (s *Store) readLocal(ctx context.Context) ([]domain.Favorite, Source) {
	raw, ok, err := s.local.GetItem(ctx, StorageKey)
	if err != nil {
		s.logger.Warn("favorites: read local storage failed", zap.Error(err))
		return []domain.Favorite{}, SourceNone
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []domain.Favorite{}, SourceNone
	}
	var items []domain.Favorite
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn("favorites: local storage is corrupt", zap.Error(err))
		return []domain.Favorite{}, SourceNone
	}
	return dedupe(items), SourceLocal
}

// persistLocked writes the whole list to the local slot. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	payload, err := json.Marshal(s.favorites)
	if err != nil {
		s.logger.Warn("favorites: encode failed", zap.Error(err))
		return
	}
	if err := s.local.SetItem(ctx, StorageKey, string(payload)); err != nil {
		s.logger.Warn("favorites: write local storage failed", zap.Error(err))
	}
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.favorites, func(f domain.Favorite) bool { return f.ID == id })
}

func (s *Store) remoteEnabled(user domain.User, online bool) bool {
	return s.remote != nil && online && !user.Anonymous()
}

func (s *Store) spawn(op, userID, gameID string, fn func(ctx context.Context) error) {
	if !s.track() {
		return
	}
	opID := ulid.Make().String()
	go func() {
		defer s.tasks.Done()
		defer s.recoverPanic(op, opID)

		ctx, cancel := context.WithTimeout(s.ctx, s.remoteTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.recordFailure(ctx, op, opID, userID, gameID, err)
		}
	}()
}

// track registers a background task. It refuses once Close has started, so a
// signal notification racing Close cannot add to tasks while Close waits.
func (s *Store) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks.Add(1)
	return true
}

func (s *Store) recoverPanic(op, opID string) {
	if rec := recover(); rec != nil {
		s.logger.Error("favorites: background task panicked",
			zap.String("op", op),
			zap.String("op_id", opID),
			zap.Any("panic", rec),
		)
	}
}

func (s *Store) recordFailure(ctx context.Context, op, opID, userID, gameID string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("op_id", opID),
		zap.String("user_id", userID),
		zap.Error(err),
	}
	if gameID != "" {
		fields = append(fields, zap.String("game_id", gameID))
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		fields = append(fields, zap.Bool("retryable", repoErr.IsUnavailable()))
	}
	s.logger.Warn("favorites: remote operation failed", fields...)
	if s.failuresEnabled {
		s.failures.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func dedupe(items []domain.Favorite) []domain.Favorite {
	out := make([]domain.Favorite, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}
