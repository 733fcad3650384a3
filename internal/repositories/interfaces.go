package repositories

import (
	"context"
	"time"

	domain "finitefield.org/arcade/internal/domain"
)

// RepositoryError is implemented by classified backend failures. Favorites
// log whether a failed remote write is worth retrying.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsUnavailable() bool
}

// FavoriteRepository mirrors a user's favorite games remotely. Documents are
// keyed by game id so Put is an idempotent upsert.
type FavoriteRepository interface {
	// List returns favorites in the order they were added.
	List(ctx context.Context, userID string) ([]domain.Favorite, error)
	Put(ctx context.Context, userID string, game domain.Game, addedAt time.Time) error
	Delete(ctx context.Context, userID string, gameID string) error
	// DeleteAll removes every favorite of the user and returns how many were deleted.
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// HealthRepository collects dependency health for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
