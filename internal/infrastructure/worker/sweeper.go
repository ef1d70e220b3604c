// Package worker runs background maintenance loops.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultInterval = time.Hour

// ExpiredSessionPurger removes session records that expired at or before now.
type ExpiredSessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper purges expired sessions on a fixed interval.
type Sweeper struct {
	store    ExpiredSessionPurger
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper. If interval <= 0, defaultInterval is used.
func NewSweeper(store ExpiredSessionPurger, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{store: store, interval: interval, log: log, now: time.Now}
}

// Start launches the sweep loop. It runs once immediately and stops when ctx
// is cancelled. The returned channel closes after the loop exits.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	return done
}

// Sweep runs one purge and returns how many records were removed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("expired session sweep failed")
		}
		return 0
	}
	if n > 0 {
		s.log.Info().Int64("sessions_removed", n).Msg("expired sessions swept")
	}
	return n
}
