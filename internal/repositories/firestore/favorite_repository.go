package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"

	domain "finitefield.org/arcade/internal/domain"
	pfirestore "finitefield.org/arcade/internal/platform/firestore"
	"finitefield.org/arcade/internal/repositories"
)

const (
	favoriteCollectionPattern = "users/%s/favorites"
	deleteAllConcurrency      = 8
)

// FavoriteRepository persists favorite games per user.
type FavoriteRepository struct {
	provider *pfirestore.Provider
}

// NewFavoriteRepository constructs a Firestore-backed favorite repository.
func NewFavoriteRepository(provider *pfirestore.Provider) (*FavoriteRepository, error) {
	if provider == nil {
		return nil, errors.New("favorite repository requires firestore provider")
	}
	return &FavoriteRepository{provider: provider}, nil
}

// List returns favorites ordered by when they were added.
func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]domain.Favorite, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return nil, err
	}

	records, err := coll.List(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("addedAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, pfirestore.WrapError("favorites.list", err)
	}

	items := make([]domain.Favorite, 0, len(records))
	for _, record := range records {
		items = append(items, record.Data.toDomain(record.ID))
	}
	return items, nil
}

// Put upserts the favorite document keyed by the game id.
func (r *FavoriteRepository) Put(ctx context.Context, userID string, game domain.Game, addedAt time.Time) error {
	coll, err := r.collection(userID)
	if err != nil {
		return err
	}
	gameID := strings.TrimSpace(game.ID)
	if gameID == "" {
		return errors.New("favorite repository: game id is required")
	}
	return pfirestore.WrapError("favorites.put", coll.Put(ctx, gameID, newFavoriteDocument(game, addedAt)))
}

// Delete removes the favorite document.
func (r *FavoriteRepository) Delete(ctx context.Context, userID string, gameID string) error {
	coll, err := r.collection(userID)
	if err != nil {
		return err
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return errors.New("favorite repository: game id is required")
	}
	return pfirestore.WrapError("favorites.delete", coll.Delete(ctx, gameID))
}

// DeleteAll lists the user's favorite ids and deletes them concurrently.
func (r *FavoriteRepository) DeleteAll(ctx context.Context, userID string) (int, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return 0, err
	}

	ids, err := coll.IDs(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("favorites.delete_all", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteAllConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			return coll.Delete(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, pfirestore.WrapError("favorites.delete_all", err)
	}
	return len(ids), nil
}

func (r *FavoriteRepository) collection(userID string) (*pfirestore.Collection[favoriteDocument], error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("favorite repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("favorite repository: user id is required")
	}
	if strings.Contains(uid, "/") {
		return nil, errors.New("favorite repository: user id contains invalid path characters")
	}
	return pfirestore.NewCollection[favoriteDocument](r.provider, fmt.Sprintf(favoriteCollectionPattern, uid))
}

type favoriteDocument struct {
	ID           string    `firestore:"id"`
	Title        string    `firestore:"title"`
	Category     string    `firestore:"category"`
	Thumb        string    `firestore:"thumb"`
	URL          string    `firestore:"url"`
	Description  string    `firestore:"description"`
	Instructions string    `firestore:"instructions"`
	Tags         string    `firestore:"tags"`
	AddedAt      time.Time `firestore:"addedAt"`
}

func newFavoriteDocument(game domain.Game, addedAt time.Time) favoriteDocument {
	return favoriteDocument{
		ID:           strings.TrimSpace(game.ID),
		Title:        game.Title,
		Category:     game.Category,
		Thumb:        game.Thumb,
		URL:          game.URL,
		Description:  game.Description,
		Instructions: game.Instructions,
		Tags:         game.Tags,
		AddedAt:      addedAt.UTC(),
	}
}

func (d favoriteDocument) toDomain(docID string) domain.Favorite {
	id := d.ID
	if strings.TrimSpace(id) == "" {
		id = docID
	}
	return domain.Favorite{
		Game: domain.Game{
			ID:           id,
			Title:        d.Title,
			Category:     d.Category,
			Thumb:        d.Thumb,
			URL:          d.URL,
			Description:  d.Description,
			Instructions: d.Instructions,
			Tags:         d.Tags,
		},
		AddedAt: d.AddedAt,
	}
}

// Ensure interface compliance.
var _ repositories.FavoriteRepository = (*FavoriteRepository)(nil)
