package games

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/model"
)

const createAttempts = 3

// Service is the single entry point for game mutations. The websocket
// session handler and the HTTP API both go through it so an edit behaves
// the same whichever transport carried it.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	newID  func() string
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "games").Logger(),
		newID:  NewToken,
	}
}

// AddGame stores game under its own id.
func (s *Service) AddGame(ctx context.Context, game *model.Game) (*model.Game, error) {
	if err := game.Validate(); err != nil {
		return nil, err
	}

	g := game.Clone()
	g.Normalize()
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("add game %s: %w", g.GameID, err)
	}

	s.logger.Debug().Str("gameId", g.GameID).Msg("game created")
	return g, nil
}

// CreateGame assigns a fresh id to game and stores it.
func (s *Service) CreateGame(ctx context.Context, game *model.Game) (*model.Game, error) {
	var err error
	for i := 0; i < createAttempts; i++ {
		g := game.Clone()
		g.GameID = s.newID()

		var created *model.Game
		created, err = s.AddGame(ctx, g)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, apperror.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, err
}

func (s *Service) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	g, err := s.repo.Get(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", gameID, err)
	}
	return g, nil
}

func (s *Service) ListGames(ctx context.Context) ([]*model.Game, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return list, nil
}

// UpdateGame overwrites the whole stored document with game.
func (s *Service) UpdateGame(ctx context.Context, game *model.Game) (*model.Game, error) {
	if err := game.Validate(); err != nil {
		return nil, err
	}

	replacement := game.Clone()
	replacement.Normalize()
	return s.mutate(ctx, game.GameID, "update", func(g *model.Game) error {
		*g = *replacement
		return nil
	})
}

func (s *Service) DeleteGame(ctx context.Context, gameID string) error {
	if err := s.repo.Delete(ctx, gameID); err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}

	s.logger.Debug().Str("gameId", gameID).Msg("game deleted")
	return nil
}

// DuplicateGame copies players (without scores) into a new game.
func (s *Service) DuplicateGame(ctx context.Context, gameID string) (*model.Game, error) {
	original, err := s.repo.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("Cannot duplicate: did not find game")
		}
		return nil, fmt.Errorf("duplicate game %s: %w", gameID, err)
	}

	dup := original.Clone()
	dup.Name = duplicateName(original.Name)
	for i := range dup.Players {
		dup.Players[i].Scores = []*float64{}
	}
	return s.CreateGame(ctx, dup)
}

func (s *Service) UpdateName(ctx context.Context, gameID, name string) (*model.Game, error) {
	return s.mutate(ctx, gameID, "edit name", func(g *model.Game) error {
		g.Name = name
		return nil
	})
}

func (s *Service) UpdateWin(ctx context.Context, gameID string, lowerScoreWins bool) (*model.Game, error) {
	return s.mutate(ctx, gameID, "edit win", func(g *model.Game) error {
		g.LowerScoreWins = lowerScoreWins
		return nil
	})
}

func (s *Service) UpdateType(ctx context.Context, gameID string, gameType model.GameType) (*model.Game, error) {
	return s.mutate(ctx, gameID, "edit type", func(g *model.Game) error {
		return g.SetType(gameType)
	})
}

func (s *Service) UpdatePlayer(ctx context.Context, gameID string, playerID int, name string) (*model.Game, error) {
	return s.mutate(ctx, gameID, "edit player", func(g *model.Game) error {
		return g.SetPlayer(playerID, name)
	})
}

func (s *Service) RemovePlayer(ctx context.Context, gameID string, playerID int) (*model.Game, error) {
	return s.mutate(ctx, gameID, "remove player", func(g *model.Game) error {
		return g.RemovePlayer(playerID)
	})
}

func (s *Service) UpdateScore(ctx context.Context, gameID string, playerID, scoreID int, score float64) (*model.Game, error) {
	return s.mutate(ctx, gameID, "edit score", func(g *model.Game) error {
		return g.SetScore(playerID, scoreID, score)
	})
}

func (s *Service) RemoveScore(ctx context.Context, gameID string, playerID, scoreID int) (*model.Game, error) {
	return s.mutate(ctx, gameID, "remove score", func(g *model.Game) error {
		return g.RemoveScore(playerID, scoreID)
	})
}

func (s *Service) mutate(ctx context.Context, gameID, op string, fn func(*model.Game) error) (*model.Game, error) {
	g, err := s.repo.Mutate(ctx, gameID, func(g *model.Game) error {
		if err := fn(g); err != nil {
			return err
		}
		g.Normalize()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, gameID, err)
	}
	return g, nil
}
