package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Retention bounds for per-job logs.
const (
	// maxLogBytes caps the retained event window per job. Oldest non-terminal
	// events are discarded first; live subscribers have already received them.
	maxLogBytes = 64 << 10

	// closedLogRetention is how long a closed log survives after its terminal
	// event, so late re-attaching subscribers can still recover the snapshot.
	closedLogRetention = 2 * time.Minute

	// subscriptionBuffer bounds the per-subscription queue. On overflow the
	// oldest non-terminal event is dropped and a gap marker is injected.
	subscriptionBuffer = 256

	// gcInterval is how often the background sweeper scans for expired logs.
	gcInterval = 30 * time.Second
)

// Bus errors.
var (
	// ErrUnknownJob indicates no log exists for the job — either it never
	// existed or it was garbage-collected after its retention window.
	ErrUnknownJob = errors.New("unknown job stream")

	// ErrLogClosed indicates a publish after the terminal event.
	ErrLogClosed = errors.New("job stream already terminated")
)

// Bus is the in-memory event bus: one append-only, strictly ordered log per
// job. Single-writer per log (the owning worker), many readers.
type Bus struct {
	mu   sync.RWMutex
	logs map[string]*jobLog

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBus creates a Bus.
func NewBus() *Bus {
	return &Bus{
		logs:   make(map[string]*jobLog),
		stopCh: make(chan struct{}),
	}
}

// Start launches the background retention sweeper.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.gc(time.Now())
			}
		}
	}()
}

// Stop halts the sweeper. Safe to call multiple times.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// Register creates an empty log for a job so subscribers can attach before
// the first event. Idempotent.
func (b *Bus) Register(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.logs[jobID]; !ok {
		b.logs[jobID] = newJobLog(jobID)
	}
}

// Publish appends an event to the job's log and fans it out to subscribers.
// Returns the assigned per-job sequence number (first event is 1).
func (b *Bus) Publish(jobID string, kind Kind, payload any) (int, error) {
	return b.publish(jobID, kind, payload, false)
}

// Terminate appends the terminal event and closes the log. Subsequent
// subscribers still receive retained events and then end-of-stream; subsequent
// publishes fail with ErrLogClosed.
func (b *Bus) Terminate(jobID string, kind Kind, payload any) (int, error) {
	if !kind.Terminal() {
		return 0, errors.New("terminate requires a terminal event kind")
	}
	return b.publish(jobID, kind, payload, true)
}

func (b *Bus) publish(jobID string, kind Kind, payload any, terminal bool) (int, error) {
	b.mu.Lock()
	l, ok := b.logs[jobID]
	if !ok {
		if terminal {
			// A pending job cancelled before any worker touched it may not
			// have a log yet; create one so the terminal event is observable.
			l = newJobLog(jobID)
			b.logs[jobID] = l
		} else {
			b.mu.Unlock()
			return 0, ErrUnknownJob
		}
	}
	b.mu.Unlock()

	return l.append(kind, payload, terminal)
}

// Subscribe attaches to a job's log and returns a subscription that replays
// events strictly after sinceID, then delivers live events in order.
func (b *Bus) Subscribe(jobID string, sinceID int) (*Subscription, error) {
	b.mu.RLock()
	l, ok := b.logs[jobID]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	return l.subscribe(sinceID), nil
}

// LastEventID returns the highest sequence assigned for a job.
func (b *Bus) LastEventID(jobID string) (int, bool) {
	b.mu.RLock()
	l, ok := b.logs[jobID]
	b.mu.RUnlock()
	if !ok {
		return 0, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1, true
}

// gc drops closed logs past their retention window.
func (b *Bus) gc(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, l := range b.logs {
		l.mu.Lock()
		expired := l.closed && now.Sub(l.closedAt) > closedLogRetention
		l.mu.Unlock()
		if expired {
			delete(b.logs, id)
			slog.Debug("Event log garbage-collected", "job_id", id)
		}
	}
}

// jobLog is one per-job append-only event log.
type jobLog struct {
	mu       sync.Mutex
	jobID    string
	nextSeq  int
	events   []Event // retained window, oldest first
	bytes    int
	closed   bool
	closedAt time.Time
	subs     map[*Subscription]struct{}
}

func newJobLog(jobID string) *jobLog {
	return &jobLog{
		jobID:   jobID,
		nextSeq: 1,
		subs:    make(map[*Subscription]struct{}),
	}
}

func (l *jobLog) append(kind Kind, payload any, terminal bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}

	ev := Event{
		ID:        l.nextSeq,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	l.nextSeq++
	l.events = append(l.events, ev)
	l.bytes += estimateSize(ev)

	// Enforce the byte cap, never touching the just-appended event.
	for l.bytes > maxLogBytes && len(l.events) > 1 {
		l.bytes -= estimateSize(l.events[0])
		l.events = l.events[1:]
	}

	if terminal {
		l.closed = true
		l.closedAt = ev.CreatedAt
	}

	for s := range l.subs {
		s.push(ev)
	}
	if terminal {
		// Terminal delivered; the log accepts no further events and live
		// subscriptions end once drained.
		for s := range l.subs {
			delete(l.subs, s)
		}
	}

	return ev.ID, nil
}

func (l *jobLog) subscribe(sinceID int) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := newSubscription(l.jobID)
	for _, ev := range l.events {
		if ev.ID > sinceID {
			s.push(ev)
		}
	}
	if l.closed {
		// Terminal already emitted; even if it predates sinceID the stream
		// must end rather than wait forever.
		s.markTerminal()
	} else {
		l.subs[s] = struct{}{}
		s.unsubscribe = func() { l.drop(s) }
	}
	return s
}

func (l *jobLog) drop(s *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, s)
}

// estimateSize approximates an event's retained footprint for the byte cap.
func estimateSize(ev Event) int {
	const overhead = 64
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return overhead
	}
	return len(data) + overhead
}
