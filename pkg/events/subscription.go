package events

import (
	"context"
	"sync"
	"time"
)

// Subscription is one subscriber's ordered view of a job stream. Events are
// queued by the bus and drained by the consumer (the SSE writer) at its own
// pace; the queue is bounded and overflow drops the oldest non-terminal
// events, replaced by a gap marker.
type Subscription struct {
	jobID string

	mu          sync.Mutex
	queue       []Event
	gap         bool
	sawTerminal bool
	closed      bool

	notify      chan struct{}
	unsubscribe func()
}

func newSubscription(jobID string) *Subscription {
	return &Subscription{
		jobID:  jobID,
		notify: make(chan struct{}, 1),
	}
}

// JobID returns the subscribed job.
func (s *Subscription) JobID() string { return s.jobID }

// push enqueues an event, enforcing the bounded buffer. Called by the bus
// with the log lock held; must not block.
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.queue) >= subscriptionBuffer {
		// Drop the oldest non-terminal event. Terminal events are never
		// dropped; in practice the terminal is the newest event anyway.
		for i, queued := range s.queue {
			if !queued.Kind.Terminal() {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.gap = true
				break
			}
		}
	}

	s.queue = append(s.queue, ev)
	if ev.Kind.Terminal() {
		s.sawTerminal = true
	}
	s.signal()
}

func (s *Subscription) markTerminal() {
	s.mu.Lock()
	s.sawTerminal = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Drain returns all queued events in order and reports whether the stream has
// ended (terminal event delivered and queue empty). A pending gap marker is
// injected ahead of the drained events with event_id 0 so it cannot advance
// the client cursor.
func (s *Subscription) Drain() ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	if s.gap {
		out = append(out, Event{
			ID:   0,
			Kind: KindStatus,
			Payload: StatusPayload{
				Message: "event stream gap: slow consumer, some progress events were dropped",
				Gap:     true,
			},
			CreatedAt: time.Now(),
		})
		s.gap = false
	}
	out = append(out, s.queue...)
	s.queue = nil

	return out, s.sawTerminal
}

// Wait blocks until a new event is queued, the timeout elapses, or ctx ends.
// Returns true if woken by an event.
func (s *Subscription) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.notify:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close detaches the subscription from its log. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
