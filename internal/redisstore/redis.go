package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/model"
)

const (
	gameKeyPrefix = "game:"
	gameIndexKey  = "games"

	// optimistic-lock retries for Mutate
	maxMutateRetries = 10
)

var errTooManyRetries = errors.New("too many concurrent writers")

type repository struct {
	client *redis.Client
}

func NewRedisStorage(ctx context.Context, addr string, db int) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if _, err := conn.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return conn, nil
}

// NewRepository stores each game as a JSON string under game:<id> and keeps
// the set of known ids under "games" for listing.
func NewRepository(client *redis.Client) games.Repository {
	return &repository{client: client}
}

func gameKey(id string) string {
	return gameKeyPrefix + id
}

func (r *repository) Create(ctx context.Context, game *model.Game) error {
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	ok, err := r.client.SetNX(ctx, gameKey(game.GameID), gameJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set game: %w", err)
	}
	if !ok {
		return games.ErrGameExists(game.GameID)
	}

	if err := r.client.SAdd(ctx, gameIndexKey, game.GameID).Err(); err != nil {
		return fmt.Errorf("failed to index game: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, gameID string) (*model.Game, error) {
	return getGame(ctx, r.client, gameID)
}

func (r *repository) List(ctx context.Context) ([]*model.Game, error) {
	ids, err := r.client.SMembers(ctx, gameIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	list := []*model.Game{}
	if len(ids) == 0 {
		return list, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = gameKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// index entry outlived its game
			continue
		}
		g, err := decodeGame(s)
		if err != nil {
			return nil, fmt.Errorf("game %s: %w", ids[i], err)
		}
		list = append(list, g)
	}
	return list, nil
}

// Mutate runs fn inside WATCH/MULTI so concurrent writers of the same game
// retry instead of overwriting each other.
func (r *repository) Mutate(ctx context.Context, gameID string, fn func(*model.Game) error) (*model.Game, error) {
	key := gameKey(gameID)

	var result *model.Game
	txf := func(tx *redis.Tx) error {
		g, err := getGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		g.GameID = gameID

		gameJSON, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("could not marshal game: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, gameJSON, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = g
		return nil
	}

	for i := 0; i < maxMutateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("mutate game %s: %w", gameID, errTooManyRetries)
}

func (r *repository) Delete(ctx context.Context, gameID string) error {
	n, err := r.client.Del(ctx, gameKey(gameID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete game by ID: %w", err)
	}
	if err := r.client.SRem(ctx, gameIndexKey, gameID).Err(); err != nil {
		return fmt.Errorf("failed to unindex game: %w", err)
	}
	if n == 0 {
		return games.ErrGameNotFound(gameID)
	}
	return nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getGame(ctx context.Context, c getter, gameID string) (*model.Game, error) {
	response, err := c.Get(ctx, gameKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, games.ErrGameNotFound(gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w by id", err)
	}
	return decodeGame(response)
}

func decodeGame(s string) (*model.Game, error) {
	var g model.Game
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	g.Normalize()
	return &g, nil
}
