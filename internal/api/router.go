package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/metrics"
)

const requestTimeout = 10 * time.Second

type RouterConfig struct {
	// CORSAllowedOrigin is the single browser origin allowed; empty or "*"
	// allows any.
	CORSAllowedOrigin string
	// Socket serves the websocket upgrade on /socket and /ws.
	Socket http.Handler
}

func (a *API) Router(config RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(config.CORSAllowedOrigin))

	if config.Socket != nil {
		r.Handle("/socket", config.Socket)
		r.Handle("/ws", config.Socket)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))

		r.Get("/healthCheck", a.HealthHandler)
		r.Get("/api/stats", a.StatsHandler)

		r.Route("/games", func(r chi.Router) {
			r.Post("/new-game", a.CreateGameHandler)
			r.Get("/games", a.ListGamesHandler)

			r.Route("/game/{gameId}", func(r chi.Router) {
				r.Get("/", a.GetGameHandler)
				r.Put("/", a.UpdateGameHandler)
				r.Delete("/", a.DeleteGameHandler)
				r.Post("/duplicate", a.DuplicateGameHandler)
				r.Put("/name", a.EditNameHandler)
				r.Put("/win", a.EditWinHandler)
				r.Put("/type", a.EditTypeHandler)
				r.Put("/players/{playerId}", a.EditPlayerHandler)
				r.Delete("/players/{playerId}", a.RemovePlayerHandler)
				r.Put("/players/{playerId}/scores/{scoreId}", a.EditScoreHandler)
				r.Delete("/players/{playerId}/scores/{scoreId}", a.RemoveScoreHandler)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.jsonResponse(w, http.StatusNotFound, response{Error: "not found: " + r.URL.Path})
	})

	return r
}

func corsHandler(origin string) func(http.Handler) http.Handler {
	if origin == "" || origin == "*" {
		return cors.AllowAll().Handler
	}
	return cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("requestId", chimw.GetReqID(r.Context())).
				Msg("http")
		})
	}
}
