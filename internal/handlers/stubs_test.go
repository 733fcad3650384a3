package handlers

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"finitefield.org/arcade/internal/catalog"
	domain "finitefield.org/arcade/internal/domain"
)

type stubCatalog struct {
	home       []domain.Game
	categories map[string][]domain.Game
	err        error
}

func (s *stubCatalog) Home(context.Context) ([]domain.Game, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.home, nil
}

func (s *stubCatalog) Category(_ context.Context, category string) ([]domain.Game, error) {
	if s.err != nil {
		return nil, s.err
	}
	games, ok := s.categories[category]
	if !ok {
		return nil, &catalog.FetchError{Path: "/data/Categories/" + category + "Data.json", Status: 404}
	}
	return games, nil
}

func (s *stubCatalog) Game(ctx context.Context, category, id string) (domain.GameDetail, error) {
	games, err := s.Category(ctx, category)
	if err != nil {
		return domain.GameDetail{}, err
	}
	if len(games) == 0 {
		return domain.GameDetail{}, catalog.ErrEmptyCatalog
	}
	for _, game := range games {
		if game.ID == id {
			related := make([]domain.Game, 0, len(games))
			for _, other := range games {
				if other.ID != id {
					related = append(related, other)
				}
			}
			return domain.GameDetail{Game: game, Related: related}, nil
		}
	}
	return domain.GameDetail{}, catalog.ErrGameNotFound
}

type stubFavorites struct {
	mu      sync.Mutex
	items   []domain.Favorite
	user    domain.User
	online  bool
	addErr  error
	removed []string
	cleared int
}

func (s *stubFavorites) Favorites() []domain.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *stubFavorites) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.items, func(f domain.Favorite) bool { return f.ID == id })
}

func (s *stubFavorites) Add(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.items = append(s.items, domain.Favorite{Game: game})
	return nil
}

func (s *stubFavorites) Remove(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
	s.items = slices.DeleteFunc(s.items, func(f domain.Favorite) bool { return f.ID == id })
}

func (s *stubFavorites) RemoveAll(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	s.items = nil
}

func (s *stubFavorites) CurrentUser() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *stubFavorites) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func numberedGames(category string, n int) []domain.Game {
	games := make([]domain.Game, 0, n)
	for i := 1; i <= n; i++ {
		id := category + "-" + strconv.Itoa(i)
		games = append(games, domain.Game{ID: id, Title: "Game " + strconv.Itoa(i), Category: category})
	}
	return games
}
