package model

import (
	"github.com/manpreetbhatti/tally/backend/internal/apperror"
)

type GameType string

const (
	GameTypeFree        GameType = "free"
	GameTypeSmallScores GameType = "smallScores"
	GameTypeWinOrLose   GameType = "winOrLose"
)

// Valid accepts the three known modes and the empty string, which older
// clients send for "free".
func (t GameType) Valid() bool {
	switch t {
	case "", GameTypeFree, GameTypeSmallScores, GameTypeWinOrLose:
		return true
	}
	return false
}

// padded reports whether every player must carry the same number of scores.
func (t GameType) padded() bool {
	return t == GameTypeSmallScores || t == GameTypeWinOrLose
}

// Player is addressed by its position in Game.Players. A nil score is a
// cleared slot that keeps later indices stable.
type Player struct {
	Name   string     `json:"name"`
	Scores []*float64 `json:"scores"`
}

type Game struct {
	GameID         string   `json:"gameId"`
	Name           string   `json:"name"`
	GameType       GameType `json:"gameType"`
	LowerScoreWins bool     `json:"lowerScoreWins"`
	Players        []Player `json:"players"`
}

// Score returns a pointer suitable for Player.Scores.
func Score(v float64) *float64 { return &v }

// Clone returns a deep copy so cached snapshots never alias store state.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}

	c := *g
	c.Players = make([]Player, len(g.Players))
	for i, p := range g.Players {
		c.Players[i] = Player{Name: p.Name, Scores: cloneScores(p.Scores)}
	}
	return &c
}

func cloneScores(scores []*float64) []*float64 {
	out := make([]*float64, len(scores))
	for i, s := range scores {
		if s != nil {
			out[i] = Score(*s)
		}
	}
	return out
}

// Normalize fills nil slices so the JSON form always carries arrays.
func (g *Game) Normalize() {
	if g.Players == nil {
		g.Players = []Player{}
	}
	for i := range g.Players {
		if g.Players[i].Scores == nil {
			g.Players[i].Scores = []*float64{}
		}
	}
}

func (g *Game) Validate() error {
	if g.GameID == "" {
		return apperror.Validation("gameId is required")
	}
	if !g.GameType.Valid() {
		return apperror.Validation("unknown gameType %q", g.GameType)
	}
	return nil
}

func (g *Game) maxScoreLength() int {
	n := 0
	for _, p := range g.Players {
		if len(p.Scores) > n {
			n = len(p.Scores)
		}
	}
	return n
}

func padScores(scores []*float64, length int) []*float64 {
	for len(scores) < length {
		scores = append(scores, Score(0))
	}
	return scores
}
