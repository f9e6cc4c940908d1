// Package sweeper fails projects whose generation never finished, e.g.
// because the API process died between accepting and completing them.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// StaleFailer is implemented by service.ProjectService.
type StaleFailer interface {
	FailStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

type Scheduler struct {
	projects   StaleFailer
	schedule   string
	staleAfter time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(projects StaleFailer, schedule string, staleAfter time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		projects:   projects,
		schedule:   schedule,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "sweeper").Logger(),
	}
}

// Start registers the sweep on the cron schedule and starts the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.Info().Str("schedule", s.schedule).Dur("stale_after", s.staleAfter).Msg("sweeper started")
	return nil
}

// Stop stops scheduling and waits for a running sweep, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("sweeper stop timed out")
	}
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.projects.FailStale(ctx, s.staleAfter)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return 0, err
	}
	s.log.Debug().Int64("failed", n).Dur("took", time.Since(start)).Msg("sweep done")
	return n, nil
}
