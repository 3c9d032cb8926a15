// Package live drives one websocket connection through the game protocol:
// joining a room, applying edits through the games service and fanning the
// results out to the room.
package live

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/metrics"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
	"github.com/manpreetbhatti/tally/backend/internal/room"
)

type State int32

const (
	StateIdle State = iota
	StateJoining
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// editFunc decodes one edit and returns the id it targets with the commit
// that applies it.
type editFunc func(ctx context.Context, env protocol.Envelope) (string, commitFunc, error)

// Session is the protocol state machine of a single connection.
type Session struct {
	member   room.Member
	registry *room.Registry
	games    *games.Service
	logger   zerolog.Logger
	events   *dispatcher

	mu     sync.Mutex
	state  State
	gameID string
	room   *room.Room
	alive  *atomic.Bool
	subs   []func()
	stop   chan struct{}
}

func NewSession(member room.Member, registry *room.Registry, svc *games.Service, logger zerolog.Logger) *Session {
	return &Session{
		member:   member,
		registry: registry,
		games:    svc,
		logger:   logger.With().Str("component", "session").Str("conn", member.ID()).Logger(),
		events:   newDispatcher(),
		state:    StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GameID is the joined game, empty unless Active.
func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

// Handle processes one inbound event. Calls for a connection are expected to
// be sequential; room retraction may run concurrently and is synchronized.
func (s *Session) Handle(ctx context.Context, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoin:
		s.join(ctx, env)
	case protocol.EventExit:
		s.exit()
	case protocol.EventDisconnect:
		s.Close()
	default:
		fn, ok := s.events.lookup(env.Event)
		if !ok {
			metrics.Events.WithLabelValues(string(env.Event), metrics.OutcomeIgnored).Inc()
			s.logger.Debug().Str("event", string(env.Event)).Str("state", s.State().String()).Msg("event ignored")
			return
		}
		fn(ctx, env)
	}
}

// Close tears the session down for good. Later events are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return
	}
	if s.state == StateActive {
		s.leaveLocked()
	}
	s.state = StateTerminated
	s.logger.Debug().Msg("session terminated")
}

func (s *Session) join(ctx context.Context, env protocol.Envelope) {
	var gameID string
	if err := env.Bind(&gameID); err != nil {
		s.reject(env.Event, "", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTerminated:
		return
	case StateActive:
		// rejoining means leaving the current game first
		s.leaveLocked()
	}

	s.state = StateJoining
	r, ok := s.registry.Join(ctx, s.member, gameID)
	if !ok {
		s.state = StateIdle
		metrics.Events.WithLabelValues(string(env.Event), metrics.OutcomeRejected).Inc()
		return
	}

	s.state = StateActive
	s.gameID = gameID
	s.room = r
	s.alive = &atomic.Bool{}
	s.alive.Store(true)
	s.stop = make(chan struct{})
	s.subscribe(s.alive)

	go s.watch(r, s.stop)

	s.emit(protocol.EventJoined, gameID)
	metrics.Events.WithLabelValues(string(env.Event), metrics.OutcomeOK).Inc()
	s.logger.Debug().Str("gameId", gameID).Msg("joined")
}

func (s *Session) exit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}
	gameID := s.gameID
	s.leaveLocked()
	s.emit(protocol.EventExited, gameID)
	metrics.Events.WithLabelValues(string(protocol.EventExit), metrics.OutcomeOK).Inc()
}

// leaveLocked cancels every subscription before touching room membership so
// no edit for this connection can run once leaving has started.
func (s *Session) leaveLocked() {
	gameID := s.gameID
	s.teardownLocked()
	s.registry.Leave(s.member, gameID)
	s.logger.Debug().Str("gameId", gameID).Msg("left")
}

func (s *Session) teardownLocked() {
	if s.alive != nil {
		s.alive.Store(false)
	}
	for _, unsubscribe := range s.subs {
		unsubscribe()
	}
	s.subs = nil
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.room = nil
	s.gameID = ""
	s.state = StateIdle
}

// watch returns the session to Idle when its room is retracted.
func (s *Session) watch(r *room.Room, stop <-chan struct{}) {
	select {
	case <-stop:
	case <-r.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.room == r && s.state == StateActive {
			s.teardownLocked()
			s.logger.Debug().Str("gameId", r.ID).Msg("room retracted")
		}
	}
}

func (s *Session) subscribe(alive *atomic.Bool) {
	edits := map[protocol.Event]editFunc{
		protocol.EventUpdate:       s.update,
		protocol.EventEditName:     s.editName,
		protocol.EventEditWin:      s.editWin,
		protocol.EventEditType:     s.editType,
		protocol.EventEditPlayer:   s.editPlayer,
		protocol.EventRemovePlayer: s.removePlayer,
		protocol.EventEditScore:    s.editScore,
		protocol.EventRemoveScore:  s.removeScore,
	}
	for event, fn := range edits {
		event, fn := event, fn
		s.subs = append(s.subs, s.events.on(event, func(ctx context.Context, env protocol.Envelope) {
			if !alive.Load() {
				metrics.Events.WithLabelValues(string(event), metrics.OutcomeIgnored).Inc()
				return
			}
			s.applyEdit(ctx, event, env, fn)
		}))
	}

	s.subs = append(s.subs, s.events.on(protocol.EventDelete, func(ctx context.Context, env protocol.Envelope) {
		if !alive.Load() {
			metrics.Events.WithLabelValues(string(env.Event), metrics.OutcomeIgnored).Inc()
			return
		}
		s.delete(ctx, env)
	}))
}

func (s *Session) applyEdit(ctx context.Context, event protocol.Event, env protocol.Envelope, fn editFunc) {
	gameID, commit, err := fn(ctx, env)
	if err == nil {
		_, err = s.registry.Apply(gameID, commit)
	}
	if err != nil {
		s.reject(event, gameID, err)
		return
	}

	metrics.Events.WithLabelValues(string(event), metrics.OutcomeOK).Inc()
}

func (s *Session) delete(ctx context.Context, env protocol.Envelope) {
	var gameID string
	if err := env.Bind(&gameID); err != nil {
		s.reject(env.Event, "", err)
		return
	}

	// only the joined game may be deleted from here
	if gameID != s.GameID() {
		metrics.Events.WithLabelValues(string(env.Event), metrics.OutcomeIgnored).Inc()
		s.logger.Debug().Str("gameId", gameID).Msg("delete for another game ignored")
		return
	}

	err := s.registry.Delete(gameID, func() error {
		return s.games.DeleteGame(ctx, gameID)
	})
	if err != nil {
		s.reject(env.Event, gameID, err)
		return
	}

	metrics.Events.WithLabelValues(string(env.Event), metrics.OutcomeOK).Inc()
}

// reject corrects the originator only: resend the last good snapshot, then
// show the error.
func (s *Session) reject(event protocol.Event, gameID string, err error) {
	outcome := metrics.OutcomeRejected
	if apperror.IsDomain(err) {
		s.logger.Debug().Err(err).Str("event", string(event)).Str("gameId", gameID).Msg("edit rejected")
	} else {
		outcome = metrics.OutcomeError
		s.logger.Error().Err(err).Str("event", string(event)).Str("gameId", gameID).Msg("edit failed")
	}
	metrics.Events.WithLabelValues(string(event), outcome).Inc()

	if gameID != "" {
		s.registry.Resend(s.member, gameID)
	}
	s.emit(protocol.EventDisplayError, apperror.Public(err))
}

func (s *Session) emit(event protocol.Event, payload any) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(event)).Msg("encode message")
		return
	}
	if err := s.member.Send(msg); err != nil {
		metrics.SendFailures.Inc()
		s.logger.Debug().Err(err).Str("event", string(event)).Msg("send failed")
	}
}
