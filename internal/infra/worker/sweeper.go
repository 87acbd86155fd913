package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain/ports/usecase"
)

// StaleJobSweeper periodically fails jobs stuck in a non-terminal stage, so a
// job lost to a crashed worker or a shutdown never hangs for its pollers.
type StaleJobSweeper struct {
	jobs     usecase.JobSweeper
	maxAge   time.Duration
	interval time.Duration
	log      *zerolog.Logger
}

func NewStaleJobSweeper(jobs usecase.JobSweeper, maxAge, interval time.Duration, log *zerolog.Logger) *StaleJobSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StaleJobSweeper{jobs: jobs, maxAge: maxAge, interval: interval, log: log}
}

// Start runs the sweep loop. This should be run in a goroutine.
func (s *StaleJobSweeper) Start(ctx context.Context, pool *Pool) {
	if s.maxAge <= 0 {
		return
	}
	s.log.Info().Dur("max_age", s.maxAge).Msg("stale job sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stale job sweeper stopping")
			return
		case <-ticker.C:
			// Submit the sweep to the worker pool
			_ = pool.Submit(func(ctx context.Context) error {
				s.SweepOnce(ctx)
				return nil
			})
		}
	}
}

func (s *StaleJobSweeper) SweepOnce(ctx context.Context) {
	n, err := s.jobs.FailStale(ctx, s.maxAge)
	if err != nil {
		s.log.Error().Err(err).Msg("stale job sweep failed")
		return
	}
	if n > 0 {
		s.log.Warn().Int("failed", n).Msg("failed stale jobs")
	}
}
