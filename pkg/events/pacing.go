package events

import "time"

// Phase is the coarse job state the pacing policy keys on.
type Phase int

// Pacing phases.
const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseTerminal
)

// Drain intervals by phase and elapsed running time. Media-producing jobs get
// a fast lane while running because their artifacts land near the terminal
// event and miss windows must stay small. After the terminal event the drain
// keeps going briefly so a late artifact_ready is not lost.
const (
	pacePending       = 1000 * time.Millisecond
	paceRunningEarly  = 300 * time.Millisecond
	paceRunningMid    = 500 * time.Millisecond
	paceRunningLate   = 1000 * time.Millisecond
	paceRunningMedia  = 200 * time.Millisecond
	paceAfterTerminal = 500 * time.Millisecond
)

// Elapsed boundaries for the running phase.
const (
	runningMidAfter  = 30 * time.Second
	runningLateAfter = 120 * time.Second
)

// PacingInterval returns the subscriber drain period for the given job state.
func PacingInterval(phase Phase, elapsed time.Duration, mediaFastLane bool) time.Duration {
	switch phase {
	case PhasePending:
		return pacePending
	case PhaseTerminal:
		return paceAfterTerminal
	}
	if mediaFastLane {
		return paceRunningMedia
	}
	switch {
	case elapsed < runningMidAfter:
		return paceRunningEarly
	case elapsed < runningLateAfter:
		return paceRunningMid
	default:
		return paceRunningLate
	}
}
