package games

import (
	"context"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/model"
)

// Repository is the durable Mutation Store. Every method is a single
// self-contained round trip; Mutate must run fn and persist its result
// atomically with respect to other writers of the same game.
type Repository interface {
	Create(ctx context.Context, game *model.Game) error
	Get(ctx context.Context, gameID string) (*model.Game, error)
	List(ctx context.Context) ([]*model.Game, error)
	Mutate(ctx context.Context, gameID string, fn func(*model.Game) error) (*model.Game, error)
	Delete(ctx context.Context, gameID string) error
}

// ErrGameNotFound is the not-found error every Repository returns for an
// unknown game id.
func ErrGameNotFound(gameID string) error {
	return apperror.NotFound("The game with id %q does not exist", gameID)
}

// ErrGameExists is returned by Create when the id is taken.
func ErrGameExists(gameID string) error {
	return apperror.Duplicate("The game with id %q already exists", gameID)
}
