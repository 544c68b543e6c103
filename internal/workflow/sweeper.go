package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbweber/homelab/ipdesk/internal/clock"
	"github.com/jbweber/homelab/ipdesk/internal/log"
)

// Sweeper runs ExpireSweep periodically in the background.
type Sweeper struct {
	engine   *Engine
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper that fires every interval
func NewSweeper(engine *Engine, clk clock.Clock, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		clock:    clk,
		interval: interval,
		logger:   log.WithComponent("sweeper"),
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop. It must be called once.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Created here so ticks are not missed before the goroutine is scheduled
	ticker := s.clock.NewTicker(s.interval)
	go s.run(ctx, ticker)
}

// Stop ends the loop and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			close(s.done)
			return
		}
		s.cancel()
		<-s.done
	})
}

func (s *Sweeper) run(ctx context.Context, ticker *clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("expiration sweeper started")

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("expiration sweeper stopped")
			return
		}
	}
}

// Sweep runs one pass. Errors are logged; the next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	if _, err := s.engine.ExpireSweep(ctx, s.clock.Now()); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("expiration sweep failed")
	}
}
