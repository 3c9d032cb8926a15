package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
)

func scores(vals ...any) []*float64 {
	out := make([]*float64, len(vals))
	for i, v := range vals {
		if v != nil {
			out[i] = Score(float64(v.(int)))
		}
	}
	return out
}

func values(s []*float64) []any {
	out := make([]any, len(s))
	for i, v := range s {
		if v != nil {
			out[i] = int(*v)
		}
	}
	return out
}

func sampleGame() *Game {
	return &Game{
		GameID:   "g1",
		Name:     "Tarot",
		GameType: GameTypeFree,
		Players: []Player{
			{Name: "A", Scores: scores(4)},
			{Name: "B", Scores: scores()},
		},
	}
}

func TestSetScore_AppendBoundary(t *testing.T) {
	g := sampleGame()

	// appending at len(scores) grows by one
	require.NoError(t, g.SetScore(0, 1, 7))
	assert.Equal(t, []any{4, 7}, values(g.Players[0].Scores))

	// targeted overwrite
	require.NoError(t, g.SetScore(0, 0, 9))
	assert.Equal(t, []any{9, 7}, values(g.Players[0].Scores))

	// one past the append index is rejected
	err := g.SetScore(0, 3, 1)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "scoreId 3 is too large", err.Error())
	assert.Len(t, g.Players[0].Scores, 2)
}

func TestSetScore_UnknownPlayer(t *testing.T) {
	g := sampleGame()

	err := g.SetScore(5, 0, 1)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, `The player with id "5" does not exist`, err.Error())

	require.ErrorIs(t, g.SetScore(0, -1, 1), apperror.ErrValidation)
}

func TestSetScore_AllPlayersPadsSlot(t *testing.T) {
	g := sampleGame()

	require.NoError(t, g.SetScore(AllPlayers, 1, 99))

	assert.Equal(t, []any{4, 0}, values(g.Players[0].Scores))
	assert.Equal(t, []any{0, 0}, values(g.Players[1].Scores))
}

func TestSetScore_AllPlayersOpensOneColumnAtMost(t *testing.T) {
	g := sampleGame()

	err := g.SetScore(AllPlayers, 2, 1)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.EqualError(t, err, "scoreId 2 is too large")

	err = g.SetScore(AllPlayers, 5_000_000, 1)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, []any{4}, values(g.Players[0].Scores))
	assert.Empty(t, g.Players[1].Scores)

	empty := &Game{GameID: "e", Players: []Player{{Name: "A"}}}
	require.NoError(t, empty.SetScore(AllPlayers, 0, 1))
	assert.Equal(t, []any{0}, values(empty.Players[0].Scores))
}

func TestRemoveScore(t *testing.T) {
	tests := []struct {
		name     string
		initial  []*float64
		scoreID  int
		expected []any
		kind     error
	}{
		{name: "pop last", initial: scores(1, 2, 3), scoreID: 2, expected: []any{1, 2}},
		{name: "hole in the middle", initial: scores(1, 2, 3), scoreID: 1, expected: []any{1, nil, 3}},
		{name: "empty is a no-op", initial: scores(), scoreID: 4, expected: []any{}},
		{name: "too large", initial: scores(1, 2), scoreID: 2, expected: []any{1, 2}, kind: apperror.ErrValidation},
		{name: "negative", initial: scores(1, 2), scoreID: -3, expected: []any{1, 2}, kind: apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Game{GameID: "g", Players: []Player{{Name: "A", Scores: tt.initial}}}

			err := g.RemoveScore(0, tt.scoreID)

			if tt.kind != nil {
				require.ErrorIs(t, err, tt.kind)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, values(g.Players[0].Scores))
		})
	}
}

func TestRemoveScore_AllPlayersPopsMatchingTails(t *testing.T) {
	g := &Game{GameID: "g", Players: []Player{
		{Name: "A", Scores: scores(1, 2, 3)},
		{Name: "B", Scores: scores(1, 2)},
		{Name: "C", Scores: scores(5, 6, 7)},
	}}

	require.NoError(t, g.RemoveScore(AllPlayers, 2))

	assert.Equal(t, []any{1, 2}, values(g.Players[0].Scores))
	assert.Equal(t, []any{1, 2}, values(g.Players[1].Scores))
	assert.Equal(t, []any{5, 6}, values(g.Players[2].Scores))
}

func TestSetPlayer(t *testing.T) {
	g := sampleGame()

	require.NoError(t, g.SetPlayer(1, "Bea"))
	assert.Equal(t, "Bea", g.Players[1].Name)

	require.NoError(t, g.SetPlayer(2, "Cy"))
	require.Len(t, g.Players, 3)
	assert.Empty(t, g.Players[2].Scores)

	err := g.SetPlayer(4, "Dee")
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "playerId 4 is too large", err.Error())
}

func TestSetPlayer_PadsNewPlayerInPaddedModes(t *testing.T) {
	g := sampleGame()
	g.GameType = GameTypeSmallScores
	g.Players[0].Scores = scores(3, 1, 2)

	require.NoError(t, g.SetPlayer(2, "Cy"))

	assert.Equal(t, []any{0, 0, 0}, values(g.Players[2].Scores))
}

func TestRemovePlayer(t *testing.T) {
	g := sampleGame()

	err := g.RemovePlayer(0)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "playerId 0 cannot be removed", err.Error())

	err = g.RemovePlayer(2)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "playerId 2 is too large", err.Error())

	require.NoError(t, g.RemovePlayer(1))
	require.Len(t, g.Players, 1)
	assert.Equal(t, "A", g.Players[0].Name)
}

func TestSetType_WinOrLoseCoercesAndPads(t *testing.T) {
	g := &Game{GameID: "g", Players: []Player{
		{Name: "A", Scores: scores(0, 5, nil, 1)},
		{Name: "B", Scores: scores(-2)},
	}}

	require.NoError(t, g.SetType(GameTypeWinOrLose))

	assert.Equal(t, GameTypeWinOrLose, g.GameType)
	assert.Equal(t, []any{0, 1, 0, 1}, values(g.Players[0].Scores))
	assert.Equal(t, []any{1, 0, 0, 0}, values(g.Players[1].Scores))
}

func TestSetType_SmallScoresOnlyPads(t *testing.T) {
	g := &Game{GameID: "g", Players: []Player{
		{Name: "A", Scores: scores(7, nil)},
		{Name: "B", Scores: scores()},
	}}

	require.NoError(t, g.SetType(GameTypeSmallScores))

	assert.Equal(t, []any{7, nil}, values(g.Players[0].Scores))
	assert.Equal(t, []any{0, 0}, values(g.Players[1].Scores))
}

func TestSetType_RejectsUnknown(t *testing.T) {
	g := sampleGame()

	require.ErrorIs(t, g.SetType("poker"), apperror.ErrValidation)
	assert.Equal(t, GameTypeFree, g.GameType)
}

func TestClone_DoesNotAlias(t *testing.T) {
	g := sampleGame()
	c := g.Clone()

	*c.Players[0].Scores[0] = 100
	c.Players[0].Name = "Z"

	assert.Equal(t, []any{4}, values(g.Players[0].Scores))
	assert.Equal(t, "A", g.Players[0].Name)
}
