package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/model"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
	"github.com/manpreetbhatti/tally/backend/internal/room"
	"github.com/manpreetbhatti/tally/backend/internal/room/roomtest"
)

type fixture struct {
	ctx      context.Context
	svc      *games.Service
	registry *room.Registry
}

func newFixture(t *testing.T, repo games.Repository) *fixture {
	t.Helper()

	ctx := context.Background()
	svc := games.NewService(repo, zerolog.Nop())
	for _, g := range []*model.Game{
		{
			GameID: "g1",
			Name:   "Yams",
			Players: []model.Player{
				{Name: "A", Scores: []*float64{model.Score(4)}},
				{Name: "B"},
			},
		},
		{GameID: "g2", Name: "Other"},
	} {
		_, err := svc.AddGame(ctx, g)
		require.NoError(t, err)
	}

	return &fixture{ctx: ctx, svc: svc, registry: room.NewRegistry(svc, zerolog.Nop())}
}

func (f *fixture) session(id string) (*Session, *roomtest.Member) {
	m := roomtest.NewMember(id)
	return NewSession(m, f.registry, f.svc, zerolog.Nop()), m
}

func envelope(t *testing.T, event protocol.Event, payload any) protocol.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return protocol.Envelope{Event: event, Data: data}
}

func displayError(t *testing.T, m *roomtest.Member) string {
	t.Helper()
	env, ok := m.Last(protocol.EventDisplayError)
	require.True(t, ok, "expected a display error")
	var msg string
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

func TestSession_JoinUnknownGameStaysIdle(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, m := f.session("c1")

	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "ghost"))

	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.GameID())
	assert.Equal(t, 0, f.registry.Count())
	assert.Empty(t, m.Frames())
	assert.Zero(t, s.events.len())
}

func TestSession_JoinSendsSnapshotThenJoined(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, m := f.session("c1")

	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "g1", s.GameID())
	assert.Equal(t, []protocol.Event{protocol.EventGame, protocol.EventJoined}, m.Events())
	assert.Equal(t, 1, f.registry.Members("g1"))
}

func TestSession_ScoreAppendBoundary(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	x, mx := f.session("x")
	y, my := f.session("y")
	x.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	y.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))

	x.Handle(f.ctx, envelope(t, protocol.EventEditScore, protocol.EditScore{GameID: "g1", PlayerID: 0, ScoreID: 1, Score: 7}))
	x.Handle(f.ctx, envelope(t, protocol.EventEditScore, protocol.EditScore{GameID: "g1", PlayerID: 0, ScoreID: 0, Score: 9}))

	for _, m := range []*roomtest.Member{mx, my} {
		g, ok := m.LastGame()
		require.True(t, ok)
		require.Len(t, g.Players[0].Scores, 2)
		assert.Equal(t, 9.0, *g.Players[0].Scores[0])
		assert.Equal(t, 7.0, *g.Players[0].Scores[1])
	}

	stored, err := f.svc.GetGame(f.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, stored, f.registry.Room("g1").Snapshot())
}

func TestSession_FailedEditCorrectsOriginatorOnly(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	x, mx := f.session("x")
	y, my := f.session("y")
	x.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	y.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	mx.Reset()
	my.Reset()

	x.Handle(f.ctx, envelope(t, protocol.EventEditScore, protocol.EditScore{GameID: "g1", PlayerID: 0, ScoreID: 5, Score: 1}))

	assert.Equal(t, []protocol.Event{protocol.EventGame, protocol.EventDisplayError}, mx.Events())
	assert.Equal(t, "scoreId 5 is too large", displayError(t, mx))
	g, ok := mx.LastGame()
	require.True(t, ok)
	assert.Len(t, g.Players[0].Scores, 1)

	assert.Empty(t, my.Frames())

	x.Handle(f.ctx, envelope(t, protocol.EventRemovePlayer, protocol.RemovePlayer{GameID: "g1", PlayerID: 0}))
	assert.Equal(t, "playerId 0 cannot be removed", displayError(t, mx))

	x.Handle(f.ctx, envelope(t, protocol.EventEditPlayer, protocol.EditPlayer{GameID: "g1", PlayerID: -3, PlayerName: "Z"}))
	assert.Equal(t, `The player with id "-3" does not exist`, displayError(t, mx))
	assert.Empty(t, my.Frames())
}

func TestSession_TwoConnectionsScenario(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	x, mx := f.session("x")
	y, my := f.session("y")
	x.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	y.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))

	x.Handle(f.ctx, envelope(t, protocol.EventEditName, protocol.EditName{GameID: "g1", Name: "X"}))

	for _, m := range []*roomtest.Member{mx, my} {
		g, ok := m.LastGame()
		require.True(t, ok)
		assert.Equal(t, "X", g.Name)
	}

	my.Close()
	y.Handle(f.ctx, protocol.Envelope{Event: protocol.EventDisconnect})
	assert.Equal(t, StateTerminated, y.State())
	assert.Equal(t, 1, f.registry.Members("g1"))

	x.Handle(f.ctx, protocol.Envelope{Event: protocol.EventExit})

	assert.Nil(t, f.registry.Room("g1"))
	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, StateIdle, x.State())
	env, ok := mx.Last(protocol.EventExited)
	require.True(t, ok)
	assert.JSONEq(t, `"g1"`, string(env.Data))
}

func TestSession_EditsIgnoredWhenNotActive(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, m := f.session("c1")

	s.Handle(f.ctx, envelope(t, protocol.EventEditName, protocol.EditName{GameID: "g1", Name: "nope"}))

	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	s.Handle(f.ctx, protocol.Envelope{Event: protocol.EventExit})
	m.Reset()

	s.Handle(f.ctx, envelope(t, protocol.EventEditName, protocol.EditName{GameID: "g1", Name: "after exit"}))

	g, err := f.svc.GetGame(f.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Yams", g.Name)
	assert.Empty(t, m.Frames())
	assert.Zero(t, s.events.len())
}

func TestSession_ExitThenJoinAgain(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, _ := f.session("c1")

	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	s.Handle(f.ctx, protocol.Envelope{Event: protocol.EventExit})
	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g2"))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "g2", s.GameID())
}

func TestSession_JoinWhileActiveMovesRooms(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, _ := f.session("c1")

	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g2"))

	assert.Equal(t, "g2", s.GameID())
	assert.Nil(t, f.registry.Room("g1"))
	assert.Equal(t, 1, f.registry.Members("g2"))
	assert.Equal(t, 1, f.registry.Count())
}

func TestSession_DeleteOnlyJoinedGame(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	x, mx := f.session("x")
	y, my := f.session("y")
	x.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	y.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))

	x.Handle(f.ctx, envelope(t, protocol.EventDelete, "g2"))
	_, err := f.svc.GetGame(f.ctx, "g2")
	require.NoError(t, err, "delete of a game not joined must be ignored")

	x.Handle(f.ctx, envelope(t, protocol.EventDelete, "g1"))

	_, err = f.svc.GetGame(f.ctx, "g1")
	require.Error(t, err)
	for _, m := range []*roomtest.Member{mx, my} {
		_, ok := m.Last(protocol.EventDeleted)
		assert.True(t, ok)
	}
	assert.Equal(t, 0, f.registry.Count())

	for _, s := range []*Session{x, y} {
		s := s
		assert.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)
	}
}

type brokenRepository struct {
	games.Repository
}

func (brokenRepository) Mutate(context.Context, string, func(*model.Game) error) (*model.Game, error) {
	return nil, errors.New("disk on fire")
}

// slowRepository commits the first mutation, then stalls before reporting it.
type slowRepository struct {
	games.Repository
	once  sync.Once
	delay time.Duration
}

func (r *slowRepository) Mutate(ctx context.Context, gameID string, fn func(*model.Game) error) (*model.Game, error) {
	g, err := r.Repository.Mutate(ctx, gameID, fn)
	r.once.Do(func() { time.Sleep(r.delay) })
	return g, err
}

func TestSession_ConcurrentEditsPublishInCommitOrder(t *testing.T) {
	f := newFixture(t, &slowRepository{Repository: games.NewMemoryRepository(), delay: 100 * time.Millisecond})
	x, _ := f.session("x")
	y, ym := f.session("y")
	x.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	y.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		x.Handle(f.ctx, envelope(t, protocol.EventEditName, protocol.EditName{GameID: "g1", Name: "first"}))
	}()
	// y edits once x's commit is in the store but not yet reported
	require.Eventually(t, func() bool {
		g, err := f.svc.GetGame(f.ctx, "g1")
		return err == nil && g.Name == "first"
	}, time.Second, time.Millisecond)
	go func() {
		defer wg.Done()
		y.Handle(f.ctx, envelope(t, protocol.EventEditName, protocol.EditName{GameID: "g1", Name: "second"}))
	}()
	wg.Wait()

	stored, err := f.svc.GetGame(f.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Name)
	assert.Equal(t, stored, f.registry.Room("g1").Snapshot())

	last, ok := ym.LastGame()
	require.True(t, ok)
	assert.Equal(t, "second", last.Name)
}

func TestSession_UnexpectedErrorIsOpaque(t *testing.T) {
	f := newFixture(t, brokenRepository{games.NewMemoryRepository()})
	s, m := f.session("c1")
	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	m.Reset()

	s.Handle(f.ctx, envelope(t, protocol.EventEditWin, protocol.EditWin{GameID: "g1", LowerScoreWins: true}))

	assert.Equal(t, "internal server error", displayError(t, m))
	assert.Equal(t, []protocol.Event{protocol.EventGame, protocol.EventDisplayError}, m.Events())
}

func TestSession_MalformedPayload(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, m := f.session("c1")
	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	m.Reset()

	s.Handle(f.ctx, protocol.Envelope{Event: protocol.EventEditScore, Data: json.RawMessage(`"not an object"`)})

	assert.Contains(t, displayError(t, m), "bad payload")
	assert.Equal(t, StateActive, s.State())
}

func TestSession_DisconnectIsTerminal(t *testing.T) {
	f := newFixture(t, games.NewMemoryRepository())
	s, _ := f.session("c1")

	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))
	s.Handle(f.ctx, protocol.Envelope{Event: protocol.EventDisconnect})
	s.Handle(f.ctx, envelope(t, protocol.EventJoin, "g1"))

	assert.Equal(t, StateTerminated, s.State())
	assert.Equal(t, 0, f.registry.Count())
	assert.Zero(t, s.events.len())
}
