package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePurger records sweep cutoffs.
type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePurger) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestServiceSweepsImmediatelyAndOnTicks(t *testing.T) {
	purger := &fakePurger{}
	s := NewService(Config{Retention: 24 * time.Hour, Interval: 20 * time.Millisecond}, purger)

	s.Start(t.Context())
	defer s.Stop()

	require.Eventually(t, func() bool { return purger.count() >= 3 },
		2*time.Second, 5*time.Millisecond, "immediate sweep plus ticker sweeps")

	purger.mu.Lock()
	cutoff := purger.cutoffs[0]
	purger.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), cutoff, time.Minute)
}

func TestServiceDisabledByZeroRetention(t *testing.T) {
	purger := &fakePurger{}
	s := NewService(Config{Retention: 0, Interval: time.Millisecond}, purger)

	s.Start(t.Context())
	s.Stop() // no-op; never started

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, purger.count())
}

func TestServiceStopHaltsLoop(t *testing.T) {
	purger := &fakePurger{}
	s := NewService(Config{Retention: time.Hour, Interval: 5 * time.Millisecond}, purger)

	s.Start(t.Context())
	require.Eventually(t, func() bool { return purger.count() >= 1 }, time.Second, time.Millisecond)
	s.Stop()

	n := purger.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, purger.count(), "no sweeps after Stop")
}

func TestServiceSurvivesSweepErrors(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	s := NewService(Config{Retention: time.Hour, Interval: 5 * time.Millisecond}, purger)

	s.Start(t.Context())
	defer s.Stop()

	require.Eventually(t, func() bool { return purger.count() >= 2 },
		time.Second, time.Millisecond, "loop keeps sweeping after an error")
}
