package events

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainAll(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	evs, _ := sub.Drain()
	return evs
}

func TestBusOrderedDelivery(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		id, err := b.Publish("job1", KindStatus, StatusPayload{Message: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		assert.Equal(t, i+1, id, "sequence is monotonic from 1")
	}

	evs := drainAll(t, sub)
	require.Len(t, evs, 5)
	for i, ev := range evs {
		assert.Equal(t, i+1, ev.ID)
		assert.Equal(t, KindStatus, ev.Kind)
	}
}

func TestBusPublishUnknownJob(t *testing.T) {
	b := NewBus()

	_, err := b.Publish("nope", KindStatus, nil)
	assert.ErrorIs(t, err, ErrUnknownJob)

	_, err = b.Subscribe("nope", 0)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestBusTerminateClosesLog(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	_, err := b.Terminate("job1", KindStatus, nil)
	assert.Error(t, err, "non-terminal kind rejected")

	id, err := b.Terminate("job1", KindComplete, CompletePayload{JobID: "job1"})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, err = b.Publish("job1", KindStatus, nil)
	assert.ErrorIs(t, err, ErrLogClosed)

	_, err = b.Terminate("job1", KindError, nil)
	assert.ErrorIs(t, err, ErrLogClosed, "exactly one terminal event per job")
}

func TestBusTerminateCreatesLogForPendingJob(t *testing.T) {
	b := NewBus()

	// A pending job cancelled before any worker ran has no log yet.
	id, err := b.Terminate("job1", KindCancelled, CancelledPayload{JobID: "job1"})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	defer sub.Close()

	evs, ended := sub.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, KindCancelled, evs[0].Kind)
	assert.True(t, ended)
}

func TestBusSubscribeReplaysSinceID(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	for i := 0; i < 4; i++ {
		_, err := b.Publish("job1", KindStatus, StatusPayload{Message: "m"})
		require.NoError(t, err)
	}

	sub, err := b.Subscribe("job1", 2)
	require.NoError(t, err)
	defer sub.Close()

	evs := drainAll(t, sub)
	require.Len(t, evs, 2)
	assert.Equal(t, 3, evs[0].ID)
	assert.Equal(t, 4, evs[1].ID)
}

func TestBusSubscribeAfterTerminal(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	_, err := b.Publish("job1", KindStatus, nil)
	require.NoError(t, err)
	_, err = b.Terminate("job1", KindComplete, CompletePayload{JobID: "job1"})
	require.NoError(t, err)

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	defer sub.Close()

	evs, ended := sub.Drain()
	require.Len(t, evs, 2)
	assert.Equal(t, KindComplete, evs[1].Kind)
	assert.True(t, ended)

	// A cursor past the terminal still ends instead of hanging.
	late, err := b.Subscribe("job1", 99)
	require.NoError(t, err)
	defer late.Close()
	evs, ended = late.Drain()
	assert.Empty(t, evs)
	assert.True(t, ended)
}

func TestBusByteCapRetention(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	// Push well past 64KB of payload so the oldest events fall out of the
	// retained window.
	big := strings.Repeat("x", 4096)
	for i := 0; i < 40; i++ {
		_, err := b.Publish("job1", KindContentChunk, ContentChunkPayload{Chunk: big})
		require.NoError(t, err)
	}

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	defer sub.Close()

	evs := drainAll(t, sub)
	require.NotEmpty(t, evs)
	assert.Less(t, len(evs), 40, "oldest events trimmed by the byte cap")
	assert.Equal(t, 40, evs[len(evs)-1].ID, "newest event always retained")
	// The retained window stays contiguous.
	for i := 1; i < len(evs); i++ {
		assert.Equal(t, evs[i-1].ID+1, evs[i].ID)
	}
}

func TestBusLastEventID(t *testing.T) {
	b := NewBus()

	_, ok := b.LastEventID("job1")
	assert.False(t, ok)

	b.Register("job1")
	id, ok := b.LastEventID("job1")
	require.True(t, ok)
	assert.Equal(t, 0, id)

	_, err := b.Publish("job1", KindStatus, nil)
	require.NoError(t, err)
	id, _ = b.LastEventID("job1")
	assert.Equal(t, 1, id)
}

func TestBusGC(t *testing.T) {
	b := NewBus()
	b.Register("job1")
	b.Register("job2")

	_, err := b.Terminate("job1", KindComplete, nil)
	require.NoError(t, err)

	b.gc(time.Now().Add(closedLogRetention + time.Second))

	_, err = b.Subscribe("job1", 0)
	assert.ErrorIs(t, err, ErrUnknownJob, "closed log dropped after retention")
	_, err = b.Subscribe("job2", 0)
	assert.NoError(t, err, "open log survives")
}

func TestSubscriptionOverflowGapMarker(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < subscriptionBuffer+10; i++ {
		_, err := b.Publish("job1", KindStageProgress, StageProgressPayload{Stage: "write", Percent: i})
		require.NoError(t, err)
	}

	evs := drainAll(t, sub)
	require.NotEmpty(t, evs)
	gap := evs[0]
	assert.Equal(t, 0, gap.ID, "gap marker must not advance the cursor")
	payload, ok := gap.Payload.(StatusPayload)
	require.True(t, ok)
	assert.True(t, payload.Gap)
	assert.Len(t, evs, subscriptionBuffer+1)
	assert.Equal(t, subscriptionBuffer+10, evs[len(evs)-1].ID, "newest event kept")
}

func TestSubscriptionWait(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	defer sub.Close()

	assert.False(t, sub.Wait(t.Context(), 10*time.Millisecond), "timeout with no events")

	_, err = b.Publish("job1", KindStatus, nil)
	require.NoError(t, err)
	assert.True(t, sub.Wait(t.Context(), time.Second), "woken by a published event")
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	b := NewBus()
	b.Register("job1")

	sub, err := b.Subscribe("job1", 0)
	require.NoError(t, err)
	sub.Close()
	sub.Close() // idempotent

	_, err = b.Publish("job1", KindStatus, nil)
	require.NoError(t, err)

	evs := drainAll(t, sub)
	assert.Empty(t, evs)
}

func TestPacingInterval(t *testing.T) {
	tests := []struct {
		name     string
		phase    Phase
		elapsed  time.Duration
		media    bool
		expected time.Duration
	}{
		{"pending", PhasePending, 0, false, pacePending},
		{"running early", PhaseRunning, 5 * time.Second, false, paceRunningEarly},
		{"running mid", PhaseRunning, time.Minute, false, paceRunningMid},
		{"running late", PhaseRunning, 3 * time.Minute, false, paceRunningLate},
		{"media fast lane", PhaseRunning, 3 * time.Minute, true, paceRunningMedia},
		{"after terminal", PhaseTerminal, time.Minute, false, paceAfterTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PacingInterval(tt.phase, tt.elapsed, tt.media))
		})
	}
}
