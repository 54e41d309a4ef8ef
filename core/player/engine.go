// Package player is the client half of playback: a local audio engine kept
// converged onto the room's authoritative clock by a drift reconciler.
package player

import (
	"sync"
	"time"

	"syncfm/core/clock"
)

// Engine abstracts the local audio playback surface. Implementations report
// an estimated position and accept seek, play and pause commands.
type Engine interface {
	// Load points the engine at a new stream URL. The engine is not
	// Ready until loading completes.
	Load(url string) error
	Ready() bool
	Play()
	Pause()
	SeekTo(pos float64)
	Position() float64
}

// ClockEngine simulates an audio element with a wall-clock position. It is
// the engine behind the headless listener; tests drive it with a fake clock.
type ClockEngine struct {
	mu    sync.Mutex
	url   string
	ready bool
	clk   clock.State
	now   func() time.Time
}

// NewClockEngine builds a simulated engine. A nil now uses wall time.
func NewClockEngine(now func() time.Time) *ClockEngine {
	if now == nil {
		now = time.Now
	}
	return &ClockEngine{now: now}
}

// Load is instantaneous for a simulated engine: it resets position to zero
// and becomes ready at once.
func (e *ClockEngine) Load(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.url = url
	e.ready = true
	e.clk = clock.NewPaused(0)
	return nil
}

func (e *ClockEngine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *ClockEngine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clk = e.clk.Resume(e.now())
}

func (e *ClockEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clk = e.clk.Pause(e.now())
}

func (e *ClockEngine) SeekTo(pos float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clk.IsRunning() {
		e.clk = clock.NewPaused(pos).Resume(e.now())
	} else {
		e.clk = clock.NewPaused(pos)
	}
}

func (e *ClockEngine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clk.Elapsed(e.now())
}

// URL returns the stream the engine is currently loaded with.
func (e *ClockEngine) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}
