package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/favorites"
	"finitefield.org/arcade/internal/platform/auth"
)

func newFavoritesRouter(store FavoritesStore) http.Handler {
	authn := auth.NewAuthenticator(&stubVerifier{uids: map[string]string{
		"uid-1-token":   "uid-1",
		"alice-token":   "alice",
		"mallory-token": "mallory",
	}})
	return NewRouter(WithFavoriteRoutes(NewFavoriteHandlers(store, authn).Routes))
}

func favoritesRequest(method, target, token, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestFavoritesList(t *testing.T) {
	addedAt := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	store := &stubFavorites{
		items: []domain.Favorite{
			{Game: domain.Game{ID: "a", Title: "Alpha"}, AddedAt: addedAt},
			{Game: domain.Game{ID: "b", Title: "Beta"}},
		},
		user:   domain.User{ID: "uid-1"},
		online: true,
	}

	rr := httptest.NewRecorder()
	newFavoritesRouter(store).ServeHTTP(rr, favoritesRequest(http.MethodGet, "/api/v1/favorites", "uid-1-token", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		Items []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			AddedAt string `json:"addedAt"`
		} `json:"items"`
		UserID string `json:"userId"`
		Online bool   `json:"online"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 2 || body.Items[0].ID != "a" || body.Items[1].ID != "b" {
		t.Fatalf("unexpected items %+v", body.Items)
	}
	if body.Items[0].AddedAt != "2025-05-01T09:30:00Z" || body.Items[1].AddedAt != "" {
		t.Fatalf("unexpected addedAt values %+v", body.Items)
	}
	if body.UserID != "uid-1" || !body.Online {
		t.Fatalf("unexpected state %+v", body)
	}
}

func TestFavoritesListEmpty(t *testing.T) {
	rr := httptest.NewRecorder()
	newFavoritesRouter(&stubFavorites{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/favorites", nil))
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", rr.Body.String())
	}
}

func TestFavoritesAdd(t *testing.T) {
	store := &stubFavorites{}
	handler := newFavoritesRouter(store)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/favorites/z1", strings.NewReader(`{"title":"Zombie Run","category":"Action"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !store.IsFavorite("z1") {
		t.Fatalf("expected z1 to be added")
	}
	if got := store.Favorites()[0].Title; got != "Zombie Run" {
		t.Fatalf("expected title from body, got %q", got)
	}
}

func TestFavoritesAddRejectsBadRequests(t *testing.T) {
	handler := newFavoritesRouter(&stubFavorites{})

	cases := map[string]string{
		"mismatched id": `{"id":"other","title":"X"}`,
		"invalid json":  `{"title":`,
		"empty body":    ``,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/favorites/z1", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestFavoritesAddInvalidGame(t *testing.T) {
	handler := newFavoritesRouter(&stubFavorites{addErr: favorites.ErrInvalidGame})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/favorites/z1", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestFavoritesRemoveAndRemoveAll(t *testing.T) {
	store := &stubFavorites{items: []domain.Favorite{{Game: domain.Game{ID: "a"}}, {Game: domain.Game{ID: "b"}}}}
	handler := newFavoritesRouter(store)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/favorites/a", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if store.IsFavorite("a") || !store.IsFavorite("b") {
		t.Fatalf("expected only a to be removed")
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/favorites", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if store.cleared != 1 || len(store.Favorites()) != 0 {
		t.Fatalf("expected favorites cleared once")
	}
}

func TestFavoritesUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter(WithFavoriteRoutes(NewFavoriteHandlers(nil, nil).Routes)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/favorites", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestFavoritesSignedInRejectsOtherCallers(t *testing.T) {
	routes := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodGet, "/api/v1/favorites", ""},
		{http.MethodPut, "/api/v1/favorites/z1", `{"title":"Zombie Run"}`},
		{http.MethodDelete, "/api/v1/favorites/a", ""},
		{http.MethodDelete, "/api/v1/favorites", ""},
	}
	callers := []struct {
		name  string
		token string
		want  int
	}{
		{name: "anonymous", token: "", want: http.StatusUnauthorized},
		{name: "another user", token: "mallory-token", want: http.StatusForbidden},
		{name: "forged token", token: "forged", want: http.StatusUnauthorized},
	}

	for _, caller := range callers {
		for _, route := range routes {
			t.Run(caller.name+" "+route.method+" "+route.target, func(t *testing.T) {
				store := &stubFavorites{
					items: []domain.Favorite{{Game: domain.Game{ID: "a", Title: "Alpha"}}},
					user:  domain.User{ID: "alice"},
				}
				rr := httptest.NewRecorder()
				newFavoritesRouter(store).ServeHTTP(rr, favoritesRequest(route.method, route.target, caller.token, route.body))
				if rr.Code != caller.want {
					t.Fatalf("expected %d, got %d: %s", caller.want, rr.Code, rr.Body.String())
				}
				if store.cleared != 0 || len(store.removed) != 0 || len(store.Favorites()) != 1 {
					t.Fatalf("expected alice's favorites untouched, got %+v", store)
				}
			})
		}
	}
}

func TestFavoritesSignedInOwnerMayClear(t *testing.T) {
	store := &stubFavorites{
		items: []domain.Favorite{{Game: domain.Game{ID: "a"}}},
		user:  domain.User{ID: "alice"},
	}
	rr := httptest.NewRecorder()
	newFavoritesRouter(store).ServeHTTP(rr, favoritesRequest(http.MethodDelete, "/api/v1/favorites", "alice-token", ""))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if store.cleared != 1 {
		t.Fatalf("expected one clear, got %d", store.cleared)
	}
}

func TestFavoritesWithoutSignInStayOpen(t *testing.T) {
	store := &stubFavorites{}
	handler := NewRouter(WithFavoriteRoutes(NewFavoriteHandlers(store, nil).Routes))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, favoritesRequest(http.MethodPut, "/api/v1/favorites/z1", "", `{"title":"Zombie Run"}`))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
