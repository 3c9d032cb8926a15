package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type SweeperConfig struct {
	Interval time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: time.Minute,
	}
}

// Sweeper periodically clears rooms whose members all vanished without a
// clean leave (half-open sockets, crashed pumps).
type Sweeper struct {
	registry *Registry
	config   SweeperConfig
	logger   zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(registry *Registry, config SweeperConfig, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		config:   config,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		stop:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info().Dur("interval", s.config.Interval).Msg("sweeper started")
}

func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info().Msg("sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

func (s *Sweeper) SweepNow() int {
	removed := s.registry.Sweep()
	if removed > 0 {
		s.logger.Info().Int("rooms", removed).Msg("swept empty rooms")
	}
	return removed
}
