package janitor

import (
	"context"
	"log/slog"
	"time"
)

type Sweeper interface {
	SweepStalePickups(ctx context.Context) (int64, error)
}

// Janitor runs the stale pickup sweep at the next UTC midnight and then
// every interval. Runs happen on a single goroutine and never overlap.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
}

// NextMidnight returns the first UTC midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}

func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	start := j.now()
	n, err := j.sweeper.SweepStalePickups(ctx)
	if err != nil {
		j.logger.Error("janitor sweep failed", "error", err)
		return 0, err
	}
	j.logger.Info("janitor sweep complete", "deleted", n, "duration", j.now().Sub(start))
	return n, nil
}

// Run blocks until ctx is done. A failed sweep is logged and retried on the
// next tick.
func (j *Janitor) Run(ctx context.Context) error {
	wait := NextMidnight(j.now()).Sub(j.now())
	j.logger.Info("janitor scheduled", "first_run_in", wait, "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.after(wait):
		}

		_, _ = j.RunOnce(ctx)
		wait = j.interval
	}
}
