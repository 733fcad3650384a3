package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "finitefield.org/arcade/internal/domain"
)

// DefaultDebounce is the input inactivity window before results are recomputed.
const DefaultDebounce = 300 * time.Millisecond

// CatalogFunc supplies the catalog snapshot searched by a Session.
type CatalogFunc func(ctx context.Context) ([]domain.Game, error)

// Listener receives every recomputed result.
type Listener func(Result)

// Timer is the subset of *time.Timer used by Session.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules fn after d, mirroring time.AfterFunc.
type TimerFunc func(d time.Duration, fn func()) Timer

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) SessionOption {
	return func(s *Session) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithMaxResults overrides the result cap.
func WithMaxResults(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithListener registers the callback invoked with each settled result.
func WithListener(fn Listener) SessionOption {
	return func(s *Session) {
		s.listener = fn
	}
}

// WithLogger attaches a logger for catalog failures.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimerFunc replaces time.AfterFunc, mainly for tests.
func WithTimerFunc(fn TimerFunc) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.after = fn
		}
	}
}

// Session owns the query of one search widget. Every SetQuery restarts the
// debounce timer; only the timer that is not superseded computes results and
// clears the searching flag.
type Session struct {
	catalog    CatalogFunc
	debounce   time.Duration
	maxResults int
	listener   Listener
	logger     *zap.Logger
	after      TimerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	query   string
	seq     uint64
	timer   Timer
	pending bool
	loading uint64
	result  Result
	closed  bool
}

// NewSession constructs a Session bound to ctx. Closing the session or
// cancelling ctx stops pending work.
func NewSession(ctx context.Context, catalog CatalogFunc, opts ...SessionOption) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		catalog:    catalog,
		debounce:   DefaultDebounce,
		maxResults: MaxResults,
		logger:     zap.NewNop(),
		after: func(d time.Duration, fn func()) Timer {
			return time.AfterFunc(d, fn)
		},
		result: Result{Games: []domain.Game{}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

// SetQuery records new input and restarts the debounce window.
func (s *Session) SetQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.query = query
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = true
	s.timer = s.after(s.debounce, func() { s.settle(seq) })
}

// Query returns the current input.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// IsSearching is true while the debounce window is open or the catalog is loading.
func (s *Session) IsSearching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending || s.loading != 0
}

// Result returns the last settled result.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Close stops the pending timer and cancels in-flight catalog loads.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) settle(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	query := s.query
	s.loading = seq
	s.mu.Unlock()

	var catalog []domain.Game
	if s.catalog != nil {
		games, err := s.catalog(s.ctx)
		if err != nil {
			s.logger.Warn("search catalog unavailable", zap.String("query", query), zap.Error(err))
		} else {
			catalog = games
		}
	}
	result := SearchN(query, catalog, s.maxResults)

	s.mu.Lock()
	if s.loading == seq {
		s.loading = 0
	}
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.result = result
	s.pending = false
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(result)
	}
}
