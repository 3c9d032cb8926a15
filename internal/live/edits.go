package live

import (
	"context"

	"github.com/manpreetbhatti/tally/backend/internal/model"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
)

// Every edit writes to the game id carried in its own payload. Binding
// happens up front; the returned commit runs later under the game's lock.

type commitFunc func() (*model.Game, error)

func (s *Session) update(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var game model.Game
	if err := env.Bind(&game); err != nil {
		return "", nil, err
	}
	return game.GameID, func() (*model.Game, error) {
		return s.games.UpdateGame(ctx, &game)
	}, nil
}

func (s *Session) editName(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.EditName
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.UpdateName(ctx, edit.GameID, edit.Name)
	}, nil
}

func (s *Session) editWin(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.EditWin
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.UpdateWin(ctx, edit.GameID, edit.LowerScoreWins)
	}, nil
}

func (s *Session) editType(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.EditType
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.UpdateType(ctx, edit.GameID, edit.GameType)
	}, nil
}

func (s *Session) editPlayer(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.EditPlayer
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.UpdatePlayer(ctx, edit.GameID, edit.PlayerID, edit.PlayerName)
	}, nil
}

func (s *Session) removePlayer(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.RemovePlayer
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.RemovePlayer(ctx, edit.GameID, edit.PlayerID)
	}, nil
}

func (s *Session) editScore(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.EditScore
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.UpdateScore(ctx, edit.GameID, edit.PlayerID, edit.ScoreID, edit.Score)
	}, nil
}

func (s *Session) removeScore(ctx context.Context, env protocol.Envelope) (string, commitFunc, error) {
	var edit protocol.RemoveScore
	if err := env.Bind(&edit); err != nil {
		return "", nil, err
	}
	return edit.GameID, func() (*model.Game, error) {
		return s.games.RemoveScore(ctx, edit.GameID, edit.PlayerID, edit.ScoreID)
	}, nil
}
