package model

import (
	"github.com/manpreetbhatti/tally/backend/internal/apperror"
)

// AllPlayers as a player index applies a score edit to every player.
const AllPlayers = -1

// SetPlayer renames the player at playerID, or appends a new one when
// playerID equals the current number of players.
func (g *Game) SetPlayer(playerID int, name string) error {
	switch {
	case playerID < 0:
		return apperror.NotFound("The player with id \"%d\" does not exist", playerID)
	case playerID > len(g.Players):
		return apperror.Validation("playerId %d is too large", playerID)
	case playerID == len(g.Players):
		player := Player{Name: name, Scores: []*float64{}}
		if g.GameType.padded() {
			player.Scores = padScores(player.Scores, g.maxScoreLength())
		}
		g.Players = append(g.Players, player)
	default:
		g.Players[playerID].Name = name
	}
	return nil
}

// RemovePlayer only pops the last player; removing any other would shift
// the positional ids clients hold.
func (g *Game) RemovePlayer(playerID int) error {
	switch {
	case playerID < 0:
		return apperror.NotFound("The player with id \"%d\" does not exist", playerID)
	case playerID >= len(g.Players):
		return apperror.Validation("playerId %d is too large", playerID)
	case playerID == len(g.Players)-1:
		g.Players = g.Players[:playerID]
		return nil
	default:
		return apperror.Validation("playerId %d cannot be removed", playerID)
	}
}

// SetScore overwrites or appends one score. With AllPlayers it only makes
// sure slot scoreID exists for everybody, filling gaps with zero; it may open
// at most one column past the longest score list.
func (g *Game) SetScore(playerID, scoreID int, score float64) error {
	if scoreID < 0 {
		return apperror.Validation("scoreId %d is invalid", scoreID)
	}

	if playerID == AllPlayers {
		if scoreID > g.maxScoreLength() {
			return apperror.Validation("scoreId %d is too large", scoreID)
		}
		for i := range g.Players {
			g.Players[i].Scores = padScores(g.Players[i].Scores, scoreID+1)
		}
		return nil
	}

	if playerID < 0 || playerID >= len(g.Players) {
		return apperror.NotFound("The player with id \"%d\" does not exist", playerID)
	}

	player := &g.Players[playerID]
	switch {
	case scoreID > len(player.Scores):
		return apperror.Validation("scoreId %d is too large", scoreID)
	case scoreID == len(player.Scores):
		player.Scores = append(player.Scores, Score(score))
	default:
		player.Scores[scoreID] = Score(score)
	}
	return nil
}

// RemoveScore pops the last score or leaves a nil hole in its place. With
// AllPlayers it pops scoreID from every player for whom it is the last one.
func (g *Game) RemoveScore(playerID, scoreID int) error {
	if playerID == AllPlayers {
		for i := range g.Players {
			scores := g.Players[i].Scores
			if scoreID == len(scores)-1 {
				g.Players[i].Scores = scores[:scoreID]
			}
		}
		return nil
	}

	if playerID < 0 || playerID >= len(g.Players) {
		return apperror.NotFound("The player with id \"%d\" does not exist", playerID)
	}

	player := &g.Players[playerID]
	switch {
	case len(player.Scores) == 0:
		return nil
	case scoreID < 0 || scoreID >= len(player.Scores):
		return apperror.Validation("scoreId %d is too large", scoreID)
	case scoreID == len(player.Scores)-1:
		player.Scores = player.Scores[:scoreID]
	default:
		player.Scores[scoreID] = nil
	}
	return nil
}

// SetType switches the scoring mode and normalizes existing scores for it.
func (g *Game) SetType(t GameType) error {
	if !t.Valid() {
		return apperror.Validation("unknown gameType %q", t)
	}
	g.GameType = t

	if t.padded() {
		n := g.maxScoreLength()
		for i := range g.Players {
			g.Players[i].Scores = padScores(g.Players[i].Scores, n)
		}
	}

	if t == GameTypeWinOrLose {
		for i := range g.Players {
			for j, s := range g.Players[i].Scores {
				switch {
				case s == nil || *s == 0:
					g.Players[i].Scores[j] = Score(0)
				case *s != 1:
					g.Players[i].Scores[j] = Score(1)
				}
			}
		}
	}
	return nil
}
