package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/api"
	"github.com/manpreetbhatti/tally/backend/internal/config"
	"github.com/manpreetbhatti/tally/backend/internal/db"
	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/logger"
	"github.com/manpreetbhatti/tally/backend/internal/redisstore"
	"github.com/manpreetbhatti/tally/backend/internal/room"
	"github.com/manpreetbhatti/tally/backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}
	cfg := config.MustLoad(configPath)

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, stats, closer, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to initialize storage")
	}
	defer closer.Close()

	svc := games.NewService(repo, log)
	registry := room.NewRegistry(svc, log)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	socket := ws.NewServer(hub, registry, svc, ws.Config{
		AllowedOrigin:     cfg.WSAllowedOrigin,
		Debug:             cfg.DebugSocket,
		MessagesPerSecond: cfg.RateLimitEvents,
		MessageBurst:      cfg.RateLimitBurst,
		UpgradesPerSecond: ws.DefaultConfig().UpgradesPerSecond,
		UpgradeBurst:      ws.DefaultConfig().UpgradeBurst,
	}, log)
	defer socket.Close()

	sweeper := room.NewSweeper(registry, room.SweeperConfig{Interval: cfg.SweepInterval}, log)
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.New(svc, registry, hub, stats, api.Info{
		Version:       cfg.AppVersion,
		Configuration: describe(cfg),
	}, log).Router(api.RouterConfig{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Socket:            socket,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("version", cfg.AppVersion).
			Str("storage", cfg.Storage.Driver).
			Msg("tally server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore picks the games repository for the configured driver. stats is
// nil for drivers that cannot report totals.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (games.Repository, api.StatsProvider, io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		database, err := db.New(cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return database, database, database, nil

	case config.StorageRedis:
		client, err := redisstore.NewRedisStorage(ctx, cfg.Redis.GetRedisAddr(), cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		return redisstore.NewRepository(client), nil, client, nil

	case config.StorageMemory:
		return games.NewMemoryRepository(), nil, io.NopCloser(nil), nil
	}
	return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func describe(cfg *config.Config) map[string]string {
	c := map[string]string{
		"storage":        cfg.Storage.Driver,
		"logLevel":       cfg.LogLevel,
		"sweepInterval":  cfg.SweepInterval.String(),
		"rateLimitBurst": strconv.Itoa(cfg.RateLimitBurst),
	}
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		c["sqlitePath"] = cfg.Storage.SQLitePath
	case config.StorageRedis:
		c["redisAddr"] = cfg.Redis.GetRedisAddr()
	}
	return c
}
