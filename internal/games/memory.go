package games

import (
	"context"
	"sort"
	"sync"

	"github.com/manpreetbhatti/tally/backend/internal/model"
)

// memory is a map-backed Repository. State is lost on restart; it backs the
// "memory" storage driver and the tests of the layers above the store.
type memory struct {
	mu    sync.RWMutex
	games map[string]*model.Game
}

func NewMemoryRepository() Repository {
	return &memory{games: make(map[string]*model.Game)}
}

func (m *memory) Create(ctx context.Context, game *model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[game.GameID]; ok {
		return ErrGameExists(game.GameID)
	}
	m.games[game.GameID] = game.Clone()
	return nil
}

func (m *memory) Get(ctx context.Context, gameID string) (*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound(gameID)
	}
	return g.Clone(), nil
}

func (m *memory) List(ctx context.Context) ([]*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Game, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

func (m *memory) Mutate(ctx context.Context, gameID string, fn func(*model.Game) error) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound(gameID)
	}

	work := current.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	m.games[gameID] = work
	return work.Clone(), nil
}

func (m *memory) Delete(ctx context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[gameID]; !ok {
		return ErrGameNotFound(gameID)
	}
	delete(m.games, gameID)
	return nil
}
