package room

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/metrics"
	"github.com/manpreetbhatti/tally/backend/internal/model"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
)

// Member is one connection as seen by a room.
type Member interface {
	ID() string
	// Send queues msg without blocking; an error means the member is stale.
	Send(msg []byte) error
	// Connected reports whether the underlying transport is still open.
	Connected() bool
}

// The live view of one game
type Room struct {
	ID string

	mu       sync.RWMutex
	snapshot *model.Game
	members  map[string]Member
	disposed bool
	done     chan struct{}

	logger zerolog.Logger
}

// Creates a room seeded with the stored game
func NewRoom(game *model.Game, logger zerolog.Logger) *Room {
	return &Room{
		ID:       game.GameID,
		snapshot: game.Clone(),
		members:  make(map[string]Member),
		done:     make(chan struct{}),
		logger:   logger.With().Str("gameId", game.GameID).Logger(),
	}
}

// AddMember is idempotent. It fails once the room is disposed or when the
// member's transport is already gone.
func (r *Room) AddMember(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addMember(m)
}

// admit adds m and sends it the snapshot while holding the lock, so no
// broadcast can slip in between and leave m with an older snapshot.
func (r *Room) admit(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.addMember(m) {
		return false
	}
	r.Send(m, protocol.EventGame, r.snapshot)
	return true
}

func (r *Room) addMember(m Member) bool {
	if r.disposed {
		return false
	}
	if !m.Connected() {
		r.logger.Warn().Str("member", m.ID()).Msg("refusing closed connection")
		return false
	}
	r.members[m.ID()] = m
	return true
}

func (r *Room) RemoveMember(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[m.ID()]; !ok {
		return false
	}
	delete(r.members, m.ID())
	return true
}

// MemberCount only counts members whose transport is still open.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liveCount()
}

func (r *Room) liveCount() int {
	n := 0
	for _, m := range r.members {
		if m.Connected() {
			n++
		}
	}
	return n
}

// Returns a copy of the cached game
func (r *Room) Snapshot() *model.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Clone()
}

// SetSnapshot ignores a game that belongs to another room.
func (r *Room) SetSnapshot(game *model.Game) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setSnapshot(game)
}

func (r *Room) setSnapshot(game *model.Game) bool {
	if game == nil || game.GameID != r.ID {
		got := ""
		if game != nil {
			got = game.GameID
		}
		r.logger.Error().Str("got", got).Msg("snapshot for a different game ignored")
		return false
	}
	r.snapshot = game.Clone()
	return true
}

// Publish replaces the snapshot and broadcasts it in one step so members
// see snapshots in the order they were cached.
func (r *Room) Publish(game *model.Game) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.setSnapshot(game) {
		return false
	}
	r.broadcast(protocol.EventGame, r.snapshot)
	return true
}

// Broadcast is best effort: members that cannot take the message are logged
// and skipped.
func (r *Room) Broadcast(event protocol.Event, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast(event, payload)
}

func (r *Room) broadcast(event protocol.Event, payload any) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(event)).Msg("encode broadcast")
		return
	}

	metrics.Broadcasts.Inc()
	for id, m := range r.members {
		if err := m.Send(msg); err != nil {
			metrics.SendFailures.Inc()
			r.logger.Debug().Err(err).Str("member", id).Str("event", string(event)).Msg("broadcast send failed")
		}
	}
}

// Send delivers to a single member of this room.
func (r *Room) Send(m Member, event protocol.Event, payload any) bool {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(event)).Msg("encode message")
		return false
	}
	if err := m.Send(msg); err != nil {
		metrics.SendFailures.Inc()
		r.logger.Debug().Err(err).Str("member", m.ID()).Str("event", string(event)).Msg("send failed")
		return false
	}
	return true
}

// Dispose marks the room gone and closes Done. Safe to call more than once.
func (r *Room) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispose()
}

func (r *Room) dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.members = make(map[string]Member)
	close(r.done)
}

// Done is closed when the room is disposed.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Disposed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disposed
}

// disposeIfEmpty drops members whose transport is gone and disposes the
// room when nobody live is left.
func (r *Room) disposeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.members {
		if !m.Connected() {
			delete(r.members, id)
		}
	}
	if len(r.members) > 0 {
		return false
	}
	r.dispose()
	return true
}
