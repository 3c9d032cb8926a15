package ws

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/live"
	"github.com/manpreetbhatti/tally/backend/internal/ratelimit"
	"github.com/manpreetbhatti/tally/backend/internal/room"
)

type Config struct {
	// AllowedOrigin restricts browser upgrades; empty or "*" allows any.
	AllowedOrigin string
	// Debug traces every frame at debug level.
	Debug bool

	MessagesPerSecond float64
	MessageBurst      int

	// upgrades accepted per remote IP
	UpgradesPerSecond float64
	UpgradeBurst      int
}

func DefaultConfig() Config {
	return Config{
		MessagesPerSecond: 100,
		MessageBurst:      200,
		UpgradesPerSecond: 2,
		UpgradeBurst:      10,
	}
}

// Server upgrades HTTP requests to websocket clients and wires each one to
// its own live.Session.
type Server struct {
	hub        *Hub
	registry   *room.Registry
	games      *games.Service
	config     Config
	upgrader   websocket.Upgrader
	ipLimiters *ratelimit.Keyed
	logger     zerolog.Logger
}

func NewServer(hub *Hub, registry *room.Registry, svc *games.Service, config Config, logger zerolog.Logger) *Server {
	s := &Server{
		hub:        hub,
		registry:   registry,
		games:      svc,
		config:     config,
		ipLimiters: ratelimit.NewKeyed(config.UpgradesPerSecond, config.UpgradeBurst),
		logger:     logger.With().Str("component", "ws").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.config.AllowedOrigin
	if allowed == "" || allowed == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	// non-browser clients send no Origin
	return origin == "" || origin == allowed
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ServeWs(w, r)
}

func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	if !s.ipLimiters.Allow(remoteIP(r)) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrade error")
		return
	}

	clientID := uuid.NewString()
	client := &Client{
		hub:         s.hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		rateLimiter: ratelimit.NewLimiter(s.config.MessagesPerSecond, s.config.MessageBurst),
		clientID:    clientID,
		debug:       s.config.Debug,
		logger:      s.logger.With().Str("client", clientID).Logger(),
	}
	client.session = live.NewSession(client, s.registry, s.games, s.logger)

	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump()
	go func() {
		defer cancel()
		client.readPump(ctx)
	}()
}

// Close releases the per-IP limiter janitor.
func (s *Server) Close() {
	s.ipLimiters.Stop()
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
