package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "finitefield.org/arcade/internal/domain"
)

type manualTimer struct {
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
	delays []time.Duration
}

func (c *manualClock) after(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &manualTimer{fn: fn}
	c.timers = append(c.timers, timer)
	c.delays = append(c.delays, d)
	return timer
}

func (c *manualClock) fire(i int) {
	c.mu.Lock()
	timer := c.timers[i]
	c.mu.Unlock()
	timer.fn()
}

func staticCatalog(games []domain.Game) CatalogFunc {
	return func(context.Context) ([]domain.Game, error) {
		return games, nil
	}
}

func TestSessionDebouncesQueries(t *testing.T) {
	clock := &manualClock{}
	var got []Result
	session := NewSession(context.Background(), staticCatalog(sampleCatalog()),
		WithTimerFunc(clock.after),
		WithListener(func(r Result) { got = append(got, r) }),
	)
	defer session.Close()

	session.SetQuery("z")
	session.SetQuery("zo")
	session.SetQuery("zom")

	if !session.IsSearching() {
		t.Fatal("expected searching while debounce pending")
	}
	if len(clock.timers) != 3 {
		t.Fatalf("expected 3 scheduled timers got %d", len(clock.timers))
	}
	if !clock.timers[0].stopped || !clock.timers[1].stopped {
		t.Fatal("expected superseded timers stopped")
	}
	if clock.delays[2] != DefaultDebounce {
		t.Fatalf("expected debounce %s got %s", DefaultDebounce, clock.delays[2])
	}

	// A superseded timer that fires anyway must not settle the session.
	clock.fire(0)
	if !session.IsSearching() {
		t.Fatal("expected stale timer to leave searching flag set")
	}
	if len(got) != 0 {
		t.Fatalf("expected no results from stale timer, got %d", len(got))
	}

	clock.fire(2)
	if session.IsSearching() {
		t.Fatal("expected searching cleared after surviving timer")
	}
	if len(got) != 1 {
		t.Fatalf("expected single recompute got %d", len(got))
	}
	result := session.Result()
	if result.Query != "zom" || result.Total() != 1 || result.Games[0].Title != "Zombie Run" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestSessionCatalogErrorYieldsEmptyResult(t *testing.T) {
	clock := &manualClock{}
	session := NewSession(context.Background(), func(context.Context) ([]domain.Game, error) {
		return nil, errors.New("offline")
	}, WithTimerFunc(clock.after))
	defer session.Close()

	session.SetQuery("zom")
	clock.fire(0)

	result := session.Result()
	if !result.Searched || result.HasResults() {
		t.Fatalf("expected searched empty result got %#v", result)
	}
	if session.IsSearching() {
		t.Fatal("expected searching cleared")
	}
}

func TestSessionSearchingWhileCatalogLoads(t *testing.T) {
	clock := &manualClock{}
	release := make(chan struct{})
	started := make(chan struct{})
	session := NewSession(context.Background(), func(context.Context) ([]domain.Game, error) {
		close(started)
		<-release
		return sampleCatalog(), nil
	}, WithTimerFunc(clock.after))
	defer session.Close()

	session.SetQuery("kart")
	done := make(chan struct{})
	go func() {
		clock.fire(0)
		close(done)
	}()

	<-started
	if !session.IsSearching() {
		t.Fatal("expected searching while catalog loads")
	}
	close(release)
	<-done

	if session.IsSearching() {
		t.Fatal("expected searching cleared after load")
	}
	if session.Result().Total() != 1 {
		t.Fatalf("unexpected result %#v", session.Result())
	}
}

func TestSessionCloseIgnoresQueries(t *testing.T) {
	clock := &manualClock{}
	session := NewSession(context.Background(), staticCatalog(sampleCatalog()), WithTimerFunc(clock.after))
	session.SetQuery("zom")
	session.Close()

	if !clock.timers[0].stopped {
		t.Fatal("expected pending timer stopped on close")
	}
	session.SetQuery("kart")
	if len(clock.timers) != 1 {
		t.Fatalf("expected no timer after close, got %d", len(clock.timers))
	}
	if session.IsSearching() {
		t.Fatal("expected closed session not searching")
	}
}

func TestSessionRealTimer(t *testing.T) {
	results := make(chan Result, 1)
	session := NewSession(context.Background(), staticCatalog(sampleCatalog()),
		WithDebounce(10*time.Millisecond),
		WithListener(func(r Result) { results <- r }),
	)
	defer session.Close()

	session.SetQuery("puzzle")
	select {
	case r := <-results:
		if r.Total() != 1 || r.Games[0].ID != "2" {
			t.Fatalf("unexpected result %#v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced result")
	}
}
