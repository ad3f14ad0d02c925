package scheduler

import (
	"context"
	"sync"

	"github.com/forgeworks/draftforge/pkg/config"
)

// slotPool bounds global pipeline concurrency. Waiters queue FIFO per tier
// rank; a freed slot goes to the highest-ranked waiter. Higher tiers never
// preempt running jobs, they only win the next available slot.
type slotPool struct {
	mu      sync.Mutex
	free    int
	waiters [][]chan struct{} // indexed by tier rank, FIFO within each rank
}

func newSlotPool(size int) *slotPool {
	if size < 1 {
		size = 1
	}
	return &slotPool{
		free:    size,
		waiters: make([][]chan struct{}, config.TierEnterprise.Rank()+1),
	}
}

// Acquire blocks until a slot is available or ctx/stop fires. The returned
// error is ctx.Err() or errStopped.
func (p *slotPool) Acquire(ctx context.Context, t config.Tier, stopCh <-chan struct{}) error {
	p.mu.Lock()
	if p.free > 0 {
		p.free--
		p.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	rank := t.Rank()
	p.waiters[rank] = append(p.waiters[rank], ready)
	p.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		p.abandon(rank, ready)
		return ctx.Err()
	case <-stopCh:
		p.abandon(rank, ready)
		return errStopped
	}
}

// Release returns a slot, handing it to the best waiter if any.
func (p *slotPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for rank := len(p.waiters) - 1; rank >= 0; rank-- {
		if len(p.waiters[rank]) > 0 {
			ready := p.waiters[rank][0]
			p.waiters[rank] = p.waiters[rank][1:]
			close(ready)
			return
		}
	}
	p.free++
}

// abandon removes a waiter that gave up. If the slot was already handed over
// in the race, it is returned to the pool.
func (p *slotPool) abandon(rank int, ready chan struct{}) {
	p.mu.Lock()
	for i, w := range p.waiters[rank] {
		if w == ready {
			p.waiters[rank] = append(p.waiters[rank][:i], p.waiters[rank][i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()
	// Not in the queue: Release already closed our channel.
	p.Release()
}

// Free returns the current free slot count.
func (p *slotPool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}
