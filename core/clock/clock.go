// Package clock models a room's playback clock as an explicit tagged state:
// either RUNNING since a wall-clock instant, or PAUSED at a fixed offset.
// All functions are pure; the caller supplies "now".
package clock

import (
	"math"
	"time"
)

// Mode tags the two clock states.
type Mode int

const (
	Paused Mode = iota
	Running
)

// State is a playback clock. The zero value is PAUSED(0).
type State struct {
	mode      Mode
	startedAt time.Time // meaningful while Running
	offset    float64   // seconds, meaningful while Paused
}

// NewPaused returns a clock paused at the given offset.
func NewPaused(offsetSeconds float64) State {
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}
	return State{mode: Paused, offset: offsetSeconds}
}

// NewRunning returns a clock running since startedAt.
func NewRunning(startedAt time.Time) State {
	return State{mode: Running, startedAt: startedAt}
}

// Mode reports the current tag.
func (s State) Mode() Mode {
	return s.mode
}

// IsRunning reports whether the clock is in the RUNNING state.
func (s State) IsRunning() bool {
	return s.mode == Running
}

// Elapsed returns the playback position in seconds at the reference time,
// rounded to millisecond precision so repeated readings are stable.
func (s State) Elapsed(now time.Time) float64 {
	if s.mode == Running {
		return round3(now.Sub(s.startedAt).Seconds())
	}
	return round3(s.offset)
}

// Offset returns the paused offset in seconds. Zero while running.
func (s State) Offset() float64 {
	if s.mode == Paused {
		return round3(s.offset)
	}
	return 0
}

// StartedAt returns the running start instant and whether the clock is running.
func (s State) StartedAt() (time.Time, bool) {
	return s.startedAt, s.mode == Running
}

// Pause freezes the clock at its current elapsed position. The elapsed value
// is identical immediately before and after the transition.
func (s State) Pause(now time.Time) State {
	return NewPaused(s.Elapsed(now))
}

// Resume converts a paused clock back to running without moving the elapsed
// position: the start instant is back-dated by the paused offset.
func (s State) Resume(now time.Time) State {
	if s.mode == Running {
		return s
	}
	offsetMs := int64(math.Round(math.Max(0, s.offset) * 1000))
	return NewRunning(now.Add(-time.Duration(offsetMs) * time.Millisecond))
}

// Reset returns the clock to PAUSED(0).
func (s State) Reset() State {
	return NewPaused(0)
}

func round3(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return math.Round(v*1000) / 1000
}
