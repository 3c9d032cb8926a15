package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/model"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
	"github.com/manpreetbhatti/tally/backend/internal/room"
	"github.com/manpreetbhatti/tally/backend/internal/ws"
)

// StatsProvider is implemented by stores that can report their own totals.
type StatsProvider interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Info is reported by the health check.
type Info struct {
	Version       string
	Configuration map[string]string
}

type API struct {
	games    *games.Service
	registry *room.Registry
	hub      *ws.Hub
	stats    StatsProvider
	info     Info
	logger   zerolog.Logger
}

// New wires the HTTP surface. stats may be nil.
func New(svc *games.Service, registry *room.Registry, hub *ws.Hub, stats StatsProvider, info Info, logger zerolog.Logger) *API {
	return &API{
		games:    svc,
		registry: registry,
		hub:      hub,
		stats:    stats,
		info:     info,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

type response struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error"`
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error().Err(err).Msg("encoding JSON response")
	}
}

func (a *API) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	a.jsonResponse(w, status, response{Result: nil, Error: apperror.Public(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validation("Invalid request body")
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, apperror.Validation("%s must be an integer", name)
	}
	return v, nil
}

// HealthHandler reports liveness plus the running version and configuration.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"hostname":      hostname,
		"status":        "ok",
		"version":       a.info.Version,
		"configuration": a.info.Configuration,
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.registry.Count(),
		"active_clients": a.hub.GetClientCount(),
		"rooms":          a.registry.ActiveRooms(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.stats != nil {
		dbStats, err := a.stats.GetStats(r.Context())
		if err == nil {
			stats["total_games"] = dbStats["game_count"]
			stats["total_players"] = dbStats["player_count"]
		}
	} else if list, err := a.games.ListGames(r.Context()); err == nil {
		stats["total_games"] = len(list)
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Game handlers

func (a *API) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var game model.Game
	if err := decodeBody(r, &game); err != nil {
		a.errorResponse(w, r, err)
		return
	}

	created, err := a.games.CreateGame(r.Context(), &game)
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, response{Result: created})
}

func (a *API) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	game, err := a.games.GetGame(r.Context(), chi.URLParam(r, "gameId"))
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, response{Result: game})
}

func (a *API) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := a.games.ListGames(r.Context())
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, response{Result: list})
}

func (a *API) UpdateGameHandler(w http.ResponseWriter, r *http.Request) {
	var game model.Game
	if err := decodeBody(r, &game); err != nil {
		a.errorResponse(w, r, err)
		return
	}
	if game.GameID != chi.URLParam(r, "gameId") {
		a.errorResponse(w, r, apperror.Validation("Game ID mismatch"))
		return
	}

	a.apply(w, r, game.GameID, func() (*model.Game, error) {
		return a.games.UpdateGame(r.Context(), &game)
	})
}

func (a *API) DeleteGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	err := a.registry.Delete(gameID, func() error {
		return a.games.DeleteGame(r.Context(), gameID)
	})
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, map[string]string{"error": ""})
}

func (a *API) DuplicateGameHandler(w http.ResponseWriter, r *http.Request) {
	game, err := a.games.DuplicateGame(r.Context(), chi.URLParam(r, "gameId"))
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, response{Result: game})
}

func (a *API) EditNameHandler(w http.ResponseWriter, r *http.Request) {
	var edit protocol.EditName
	if err := decodeBody(r, &edit); err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.UpdateName(r.Context(), gameID, edit.Name)
	})
}

func (a *API) EditWinHandler(w http.ResponseWriter, r *http.Request) {
	var edit protocol.EditWin
	if err := decodeBody(r, &edit); err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.UpdateWin(r.Context(), gameID, edit.LowerScoreWins)
	})
}

func (a *API) EditTypeHandler(w http.ResponseWriter, r *http.Request) {
	var edit protocol.EditType
	if err := decodeBody(r, &edit); err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.UpdateType(r.Context(), gameID, edit.GameType)
	})
}

func (a *API) EditPlayerHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := intParam(r, "playerId")
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	var edit protocol.EditPlayer
	if err := decodeBody(r, &edit); err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.UpdatePlayer(r.Context(), gameID, playerID, edit.PlayerName)
	})
}

func (a *API) RemovePlayerHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := intParam(r, "playerId")
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.RemovePlayer(r.Context(), gameID, playerID)
	})
}

func (a *API) EditScoreHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := intParam(r, "playerId")
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	scoreID, err := intParam(r, "scoreId")
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	var edit protocol.EditScore
	if err := decodeBody(r, &edit); err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.UpdateScore(r.Context(), gameID, playerID, scoreID, edit.Score)
	})
}

func (a *API) RemoveScoreHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := intParam(r, "playerId")
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	scoreID, err := intParam(r, "scoreId")
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	gameID := chi.URLParam(r, "gameId")
	a.apply(w, r, gameID, func() (*model.Game, error) {
		return a.games.RemoveScore(r.Context(), gameID, playerID, scoreID)
	})
}

// apply commits a mutation through the registry, which pushes the new
// snapshot to live viewers, and answers with the result.
func (a *API) apply(w http.ResponseWriter, r *http.Request, gameID string, commit func() (*model.Game, error)) {
	game, err := a.registry.Apply(gameID, commit)
	if err != nil {
		a.errorResponse(w, r, err)
		return
	}
	a.jsonResponse(w, http.StatusOK, response{Result: game})
}
