package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/config"
)

func TestSlotPoolAcquireRelease(t *testing.T) {
	p := newSlotPool(2)
	stop := make(chan struct{})

	require.NoError(t, p.Acquire(t.Context(), config.TierFree, stop))
	require.NoError(t, p.Acquire(t.Context(), config.TierFree, stop))
	assert.Equal(t, 0, p.Free())

	p.Release()
	p.Release()
	assert.Equal(t, 2, p.Free())
}

func TestSlotPoolBlocksWhenFull(t *testing.T) {
	p := newSlotPool(1)
	stop := make(chan struct{})

	require.NoError(t, p.Acquire(t.Context(), config.TierFree, stop))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := p.Acquire(ctx, config.TierFree, stop)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.Free())

	// The abandoned waiter did not leak the slot.
	p.Release()
	assert.Equal(t, 1, p.Free())
}

func TestSlotPoolTierPriority(t *testing.T) {
	p := newSlotPool(1)
	stop := make(chan struct{})

	require.NoError(t, p.Acquire(t.Context(), config.TierEnterprise, stop))

	// Queue a free waiter first, then a pro waiter. The freed slot must go to
	// the pro waiter despite arriving later.
	freeGot := make(chan struct{})
	proGot := make(chan struct{})
	ready := make(chan struct{}, 2)

	go func() {
		ready <- struct{}{}
		if p.Acquire(context.Background(), config.TierFree, stop) == nil {
			close(freeGot)
		}
	}()
	<-ready
	waitForWaiters(t, p, 1)

	go func() {
		ready <- struct{}{}
		if p.Acquire(context.Background(), config.TierPro, stop) == nil {
			close(proGot)
		}
	}()
	<-ready
	waitForWaiters(t, p, 2)

	p.Release()
	select {
	case <-proGot:
	case <-time.After(time.Second):
		t.Fatal("pro waiter did not win the freed slot")
	}
	select {
	case <-freeGot:
		t.Fatal("free-tier waiter overtook the pro waiter")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release()
	select {
	case <-freeGot:
	case <-time.After(time.Second):
		t.Fatal("free-tier waiter never got a slot")
	}
}

func TestSlotPoolStop(t *testing.T) {
	p := newSlotPool(1)
	stop := make(chan struct{})
	require.NoError(t, p.Acquire(t.Context(), config.TierFree, stop))

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Acquire(context.Background(), config.TierFree, stop)
	}()
	waitForWaiters(t, p, 1)

	close(stop)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errStopped)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe stop")
	}
}

// waitForWaiters polls until the pool has n queued waiters.
func waitForWaiters(t *testing.T, p *slotPool, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		total := 0
		for _, q := range p.waiters {
			total += len(q)
		}
		p.mu.Unlock()
		if total == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pool never reached %d waiters", n)
}
