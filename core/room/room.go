package room

import (
	"sync"
	"time"

	"syncfm/core/clock"
	"syncfm/model"
)

// Room aggregates a track queue, a playback clock and a membership set.
// The head of the queue (position 0) is always the currently playing track;
// finished or skipped tracks are removed and cannot be replayed.
//
// Every mutating operation runs under the room's own mutex and returns a
// snapshot taken inside the critical section, so broadcasts built from the
// result always reflect the post-mutation state. Rooms never share locks:
// operations on different rooms proceed fully in parallel.
type Room struct {
	id        string
	name      string
	capacity  int
	createdAt time.Time

	mu      sync.Mutex
	queue   []model.Track
	clk     clock.State
	playing bool
	members map[string]model.Member

	now func() time.Time
}

func newRoom(id, name string, capacity int, now func() time.Time) *Room {
	if now == nil {
		now = time.Now
	}
	return &Room{
		id:        id,
		name:      name,
		capacity:  capacity,
		createdAt: now(),
		members:   make(map[string]model.Member),
		now:       now,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Name returns the room display name.
func (r *Room) Name() string { return r.name }

// ========== membership ==========

func (r *Room) addMember(m model.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= r.capacity {
		return ErrRoomFull
	}
	r.members[m.ID] = m
	return nil
}

// removeMember drops a member and reports how many remain.
func (r *Room) removeMember(connID string) (model.Member, bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if ok {
		delete(r.members, connID)
	}
	return m, ok, len(r.members)
}

// Members returns a copy of the membership set.
func (r *Room) Members() []model.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// MemberCount returns the current number of members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// ========== queue operations ==========

// Enqueue appends a track to the queue. Tracks are deduplicated by song
// identifier across the whole queue, the playing head included.
//
// If the queue was empty before the call the new track starts playing
// immediately; any later enqueue is silent even when the room is paused.
// The returned bool reports whether playback was started.
func (r *Room) Enqueue(track model.Track) (model.RoomState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.queue {
		if t.SongID == track.SongID {
			return model.RoomState{}, false, ErrDuplicateTrack
		}
	}

	wasEmpty := len(r.queue) == 0
	r.queue = append(r.queue, track)

	if wasEmpty {
		r.startHeadLocked()
	}
	return r.snapshotLocked(), wasEmpty, nil
}

// RemoveAt splices a track out of the queue. Removing position 0 while it
// is the playing track advances playback exactly like Advance; any other
// position is removed without touching the clock.
func (r *Room) RemoveAt(pos int) (model.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pos < 0 || pos >= len(r.queue) {
		return model.RoomState{}, ErrIndexOutOfRange
	}

	if pos == 0 {
		r.advanceLocked()
	} else {
		r.queue = append(r.queue[:pos], r.queue[pos+1:]...)
	}
	return r.snapshotLocked(), nil
}

// Clear empties the queue and stops playback. Idempotent.
func (r *Room) Clear() (model.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue = nil
	r.stopLocked()
	return r.snapshotLocked(), nil
}

// PlayAt makes the track at pos the new head and starts it from zero.
// Tracks before pos are discarded, not retained.
func (r *Room) PlayAt(pos int) (model.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pos < 0 || pos >= len(r.queue) {
		return model.RoomState{}, ErrIndexOutOfRange
	}

	r.queue = r.queue[pos:]
	r.startHeadLocked()
	return r.snapshotLocked(), nil
}

// Advance removes the playing head. Used both when a track finishes and for
// an explicit skip-next. The new head, if any, starts from zero; an emptied
// queue stops playback.
func (r *Room) Advance() (model.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return model.RoomState{}, ErrQueueEmpty
	}

	r.advanceLocked()
	return r.snapshotLocked(), nil
}

// Previous always fails: played tracks are removed from the queue, so there
// is nothing to go back to.
func (r *Room) Previous() error {
	return ErrOperationUnsupported
}

// TogglePlayPause flips between RUNNING and PAUSED, preserving elapsed
// continuity exactly: resuming picks up where pausing left off.
func (r *Room) TogglePlayPause() (model.RoomState, model.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return model.RoomState{}, model.Progress{}, ErrNoCurrentTrack
	}

	now := r.now()
	switch r.clk.Mode() {
	case clock.Running:
		r.clk = r.clk.Pause(now)
		r.playing = false
	case clock.Paused:
		r.clk = r.clk.Resume(now)
		r.playing = true
	default:
		return model.RoomState{}, model.Progress{}, ErrInvalidClockState
	}

	return r.snapshotLocked(), r.progressLocked(now), nil
}

// Progress is a pure read of the playback clock.
func (r *Room) Progress() (model.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return model.Progress{}, ErrNoCurrentTrack
	}
	return r.progressLocked(r.now()), nil
}

// Snapshot returns the room state as seen at this instant.
func (r *Room) Snapshot() model.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// ========== internals (lock held) ==========

// startHeadLocked starts the queue head from zero.
func (r *Room) startHeadLocked() {
	r.clk = clock.NewRunning(r.now())
	r.playing = true
}

// stopLocked enforces the empty-queue invariant: PAUSED(0), nothing current.
func (r *Room) stopLocked() {
	r.clk = r.clk.Reset()
	r.playing = false
}

func (r *Room) advanceLocked() {
	r.queue = r.queue[1:]
	if len(r.queue) == 0 {
		r.stopLocked()
	} else {
		r.startHeadLocked()
	}
}

func (r *Room) progressLocked(now time.Time) model.Progress {
	return model.Progress{
		Elapsed:    r.clk.Elapsed(now),
		Offset:     r.clk.Offset(),
		IsPlaying:  r.playing,
		ReportedAt: now.UnixMilli(),
	}
}

func (r *Room) snapshotLocked() model.RoomState {
	queue := make([]model.Track, len(r.queue))
	copy(queue, r.queue)

	var current *model.Track
	if len(queue) > 0 {
		head := queue[0]
		current = &head
	}

	return model.RoomState{
		ID:          r.id,
		Name:        r.name,
		Queue:       queue,
		CurrentSong: current,
		IsPlaying:   r.playing,
		MemberCount: len(r.members),
		CreatedAt:   r.createdAt.UnixMilli(),
	}
}
