package room

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/metrics"
	"github.com/manpreetbhatti/tally/backend/internal/model"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
)

// a join that keeps losing the race against room disposal gives up after this
const joinAttempts = 3

// Store is the read side of the games store the registry seeds rooms from.
type Store interface {
	GetGame(ctx context.Context, gameID string) (*model.Game, error)
}

// Registry owns every live Room, keyed by game id. A room exists only while
// it has at least one member.
//
// Room loads, commits with their publish, and deletes with their retraction
// hold the per-game lock, so a room's snapshot follows the store's commit
// order. Lock order: game lock, then reg.mu, then room.mu.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	locks *gameLocks

	store  Store
	logger zerolog.Logger
}

func NewRegistry(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		locks:  newGameLocks(),
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Join adds m to the room of gameID, loading the game on first use, and
// sends the cached snapshot to m alone. Unknown games never get a room.
func (reg *Registry) Join(ctx context.Context, m Member, gameID string) (*Room, bool) {
	unlock := reg.locks.lock(gameID)
	defer unlock()

	for attempt := 0; attempt < joinAttempts; attempt++ {
		r, err := reg.getOrLoad(ctx, gameID)
		if err != nil {
			ev := reg.logger.Warn()
			if !errors.Is(err, apperror.ErrNotFound) {
				ev = reg.logger.Error()
			}
			ev.Err(err).Str("gameId", gameID).Str("member", m.ID()).Msg("join failed")
			return nil, false
		}

		if r.admit(m) {
			reg.logger.Debug().Str("gameId", gameID).Str("member", m.ID()).Msg("member joined")
			return r, true
		}
		if !r.Disposed() {
			reg.dropIfEmpty(r)
			return nil, false
		}
		// the room was torn down between lookup and add; forget it and retry
		reg.forget(r)
	}

	reg.logger.Warn().Str("gameId", gameID).Str("member", m.ID()).Msg("join gave up after repeated room teardown")
	return nil, false
}

func (reg *Registry) getOrLoad(ctx context.Context, gameID string) (*Room, error) {
	if r := reg.lookup(gameID); r != nil {
		return r, nil
	}

	game, err := reg.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	// someone else may have loaded it while we were fetching
	if r, ok := reg.rooms[gameID]; ok && !r.Disposed() {
		return r, nil
	}
	r := NewRoom(game, reg.logger)
	reg.rooms[gameID] = r
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	return r, nil
}

// Leave removes m from gameID's room and destroys the room once empty.
func (reg *Registry) Leave(m Member, gameID string) bool {
	r := reg.lookup(gameID)
	if r == nil {
		return false
	}

	removed := r.RemoveMember(m)
	reg.dropIfEmpty(r)
	return removed
}

func (reg *Registry) dropIfEmpty(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if cur, ok := reg.rooms[r.ID]; ok && cur == r && r.disposeIfEmpty() {
		reg.remove(r.ID)
		reg.logger.Debug().Str("gameId", r.ID).Msg("room destroyed")
	}
}

// Apply runs commit under gameID's lock and, when it succeeds, publishes the
// committed game to the room. Two commits to one game therefore reach the
// room in the order the store applied them.
func (reg *Registry) Apply(gameID string, commit func() (*model.Game, error)) (*model.Game, error) {
	unlock := reg.locks.lock(gameID)
	defer unlock()

	game, err := commit()
	if err != nil {
		return nil, err
	}
	reg.Refresh(game)
	return game, nil
}

// Delete runs remove under gameID's lock and retracts the room when it
// succeeds.
func (reg *Registry) Delete(gameID string, remove func() error) error {
	unlock := reg.locks.lock(gameID)
	defer unlock()

	if err := remove(); err != nil {
		return err
	}
	reg.Retract(gameID)
	return nil
}

// Refresh caches game in its room, if any, and broadcasts it to the members.
// Callers that commit concurrently should go through Apply.
func (reg *Registry) Refresh(game *model.Game) {
	if game == nil {
		return
	}
	if r := reg.lookup(game.GameID); r != nil {
		r.Publish(game)
	}
}

// Retract tells every member the game is gone and destroys its room.
func (reg *Registry) Retract(gameID string) {
	reg.mu.Lock()
	r, ok := reg.rooms[gameID]
	if ok {
		reg.remove(gameID)
	}
	reg.mu.Unlock()

	if !ok {
		return
	}
	r.Broadcast(protocol.EventDeleted, gameID)
	r.Dispose()
	reg.logger.Debug().Str("gameId", gameID).Msg("room retracted")
}

// Resend sends m the cached snapshot of gameID. It reports whether the room
// existed.
func (reg *Registry) Resend(m Member, gameID string) bool {
	r := reg.lookup(gameID)
	if r == nil {
		return false
	}
	r.Send(m, protocol.EventGame, r.Snapshot())
	return true
}

// Room returns the live room for gameID, or nil.
func (reg *Registry) Room(gameID string) *Room {
	return reg.lookup(gameID)
}

func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Members returns the live member count of gameID's room.
func (reg *Registry) Members(gameID string) int {
	r := reg.lookup(gameID)
	if r == nil {
		return 0
	}
	return r.MemberCount()
}

// ActiveRooms maps each live game id to its member count.
func (reg *Registry) ActiveRooms() map[string]int {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	out := make(map[string]int, len(rooms))
	for _, r := range rooms {
		out[r.ID] = r.MemberCount()
	}
	return out
}

// Sweep drops members whose transport went away without leaving and
// destroys rooms that end up empty. It returns how many rooms were removed.
func (reg *Registry) Sweep() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	for id, r := range reg.rooms {
		if r.disposeIfEmpty() {
			reg.remove(id)
			removed++
		}
	}
	return removed
}

func (reg *Registry) lookup(gameID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[gameID]
}

func (reg *Registry) forget(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if cur, ok := reg.rooms[r.ID]; ok && cur == r {
		reg.remove(r.ID)
	}
}

// remove must be called with reg.mu held.
func (reg *Registry) remove(gameID string) {
	delete(reg.rooms, gameID)
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
}
