package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
	done  chan struct{}
}

func (s *countingSweeper) SweepStalePickups(context.Context) (int64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
	return 2, s.err
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// manualClock hands out timers the test fires by hand.
type manualClock struct {
	waits chan time.Duration
	fire  chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{waits: make(chan time.Duration, 8), fire: make(chan time.Time)}
}

func (c *manualClock) after(d time.Duration) <-chan time.Time {
	c.waits <- d
	return c.fire
}

func newTestJanitor(s Sweeper, interval time.Duration, now time.Time, clock *manualClock) *Janitor {
	j := New(s, interval, slog.New(slog.NewTextHandler(io.Discard, nil)))
	j.now = func() time.Time { return now }
	j.after = clock.after
	return j
}

func TestNextMidnight(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"morning", time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC), time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC)},
		{"exactly midnight", time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2026, 5, 31, 23, 59, 0, 0, time.UTC), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"other zone", time.Date(2026, 5, 20, 23, 0, 0, 0, time.FixedZone("WAT", 3600)), time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextMidnight(tt.in))
		})
	}
}

func TestRun_FirstAtMidnightThenEveryInterval(t *testing.T) {
	sweeper := &countingSweeper{done: make(chan struct{})}
	clock := newManualClock()
	j := newTestJanitor(sweeper, 24*time.Hour, time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC), clock)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- j.Run(ctx) }()

	assert.Equal(t, 6*time.Hour, <-clock.waits)
	clock.fire <- time.Time{}
	<-sweeper.done

	assert.Equal(t, 24*time.Hour, <-clock.waits)
	clock.fire <- time.Time{}
	<-sweeper.done

	assert.Equal(t, 24*time.Hour, <-clock.waits)
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, 2, sweeper.count())
}

func TestRun_SurvivesSweepFailure(t *testing.T) {
	sweeper := &countingSweeper{done: make(chan struct{}), err: errors.New("db down")}
	clock := newManualClock()
	j := newTestJanitor(sweeper, time.Hour, time.Date(2026, 5, 20, 23, 0, 0, 0, time.UTC), clock)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- j.Run(ctx) }()

	<-clock.waits
	clock.fire <- time.Time{}
	<-sweeper.done

	assert.Equal(t, time.Hour, <-clock.waits, "the loop keeps going after a failed sweep")
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestRunOnce(t *testing.T) {
	j := New(&countingSweeper{}, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	j = New(&countingSweeper{err: errors.New("db down")}, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err = j.RunOnce(context.Background())
	assert.Error(t, err)
}
