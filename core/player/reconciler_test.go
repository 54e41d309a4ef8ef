package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"syncfm/core/room"
	"syncfm/model"
)

// fakeResolver answers instantly unless a gate is set for the song, in
// which case Resolve blocks until the gate opens or the context dies.
type fakeResolver struct {
	mu    sync.Mutex
	urls  map[string]string
	err   error
	gates map[string]chan struct{}
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, songID string) (string, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gates[songID]
	err := f.err
	url := f.urls[songID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeResolver) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeEngine records commands and lets tests hold readiness back. The
// reconciler drives it from two goroutines, so it locks.
type fakeEngine struct {
	mu       sync.Mutex
	url      string
	ready    bool
	playing  bool
	position float64
	seeks    []float64
}

func (f *fakeEngine) Load(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	return nil
}

func (f *fakeEngine) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEngine) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
}

func (f *fakeEngine) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeEngine) SeekTo(pos float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
	f.seeks = append(f.seeks, pos)
}

func (f *fakeEngine) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeEngine) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

func (f *fakeEngine) setPosition(pos float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

func (f *fakeEngine) loadedURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeEngine) isPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeEngine) seekLog() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.seeks))
	copy(out, f.seeks)
	return out
}

type fixedClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (f *fixedClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fixedClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = f.cur.Add(d)
}

func testReconciler(t *testing.T) (*Reconciler, *fakeEngine, *fakeResolver, *fixedClock) {
	t.Helper()
	fc := &fixedClock{cur: time.Unix(1_700_000_000, 0)}
	eng := &fakeEngine{ready: true}
	res := &fakeResolver{
		urls:  map[string]string{"s1": "http://cdn/s1.m4a", "s2": "http://cdn/s2.m4a"},
		gates: map[string]chan struct{}{},
	}
	return NewReconciler(eng, res, fc.now), eng, res, fc
}

// waitCond polls for an async-load outcome.
func waitCond(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func syncReport(songID string, playing bool, elapsed, offset float64, reportedAt time.Time) room.SyncPlaybackData {
	return room.SyncPlaybackData{
		CurrentSong: &model.Track{SongID: songID},
		IsPlaying:   playing,
		Progress: &model.Progress{
			Elapsed:    elapsed,
			Offset:     offset,
			IsPlaying:  playing,
			ReportedAt: reportedAt.UnixMilli(),
		},
	}
}

func TestExpectedPositionProjectsRunningClock(t *testing.T) {
	reported := time.Unix(1_700_000_000, 0)
	p := model.Progress{Elapsed: 10, IsPlaying: true, ReportedAt: reported.UnixMilli()}

	got := expectedPosition(p, reported.Add(400*time.Millisecond))
	if got < 10.399 || got > 10.401 {
		t.Fatalf("expected position = %v, want 10.4", got)
	}
}

func TestExpectedPositionPausedIsOffset(t *testing.T) {
	p := model.Progress{Elapsed: 12.3, Offset: 12.3, IsPlaying: false, ReportedAt: time.Now().UnixMilli()}
	if got := expectedPosition(p, time.Now().Add(time.Hour)); got != 12.3 {
		t.Fatalf("expected position = %v, want 12.3", got)
	}
}

func TestShouldResyncTolerances(t *testing.T) {
	cases := []struct {
		name     string
		expected float64
		actual   float64
		playing  bool
		want     bool
	}{
		{"playing within tolerance", 10.4, 10.35, true, false},
		{"playing at the edge", 10.0, 10.7, true, false},
		{"playing beyond tolerance", 10.4, 9.0, true, true},
		{"paused within tolerance", 5.0, 5.15, false, false},
		{"paused beyond tolerance", 5.0, 5.3, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldResync(tc.expected, tc.actual, tc.playing); got != tc.want {
				t.Fatalf("shouldResync(%v, %v, %v) = %v, want %v",
					tc.expected, tc.actual, tc.playing, got, tc.want)
			}
		})
	}
}

func TestTrackChangeResolvesAndLoads(t *testing.T) {
	rec, eng, _, fc := testReconciler(t)

	if err := rec.ApplySync(context.Background(), syncReport("s1", true, 3, 0, fc.now())); err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitCond(t, func() bool { return rec.CurrentSongID() == "s1" }, "track never loaded")

	if eng.loadedURL() != "http://cdn/s1.m4a" {
		t.Fatalf("engine url = %q", eng.loadedURL())
	}
	seeks := eng.seekLog()
	if len(seeks) == 0 || seeks[len(seeks)-1] != 3 {
		t.Fatalf("seeks = %v, want final seek to 3", seeks)
	}
	if !eng.isPlaying() {
		t.Fatal("engine should be playing")
	}
}

func TestResolveFailureSurfacesOnTickThenRetries(t *testing.T) {
	rec, _, res, fc := testReconciler(t)
	res.setErr(errors.New("upstream down"))

	if err := rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now())); err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitCond(t, func() bool { return rec.Tick() != nil }, "resolve error never surfaced")
	if rec.CurrentSongID() != "" {
		t.Fatalf("current = %q, want empty", rec.CurrentSongID())
	}

	// The failed load does not stick; a later sync retries.
	res.setErr(nil)
	if err := rec.ApplySync(context.Background(), syncReport("s1", true, 1, 0, fc.now())); err != nil {
		t.Fatalf("retry apply: %v", err)
	}
	waitCond(t, func() bool { return rec.CurrentSongID() == "s1" }, "retry never loaded")
}

func TestInFlightLoadIsNotDuplicated(t *testing.T) {
	rec, _, res, fc := testReconciler(t)
	res.gates["s1"] = make(chan struct{}) // hold the resolve open

	rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return res.callCount() == 1 }, "first resolve never started")

	rec.ApplySync(context.Background(), syncReport("s1", true, 5, 0, fc.now()))
	time.Sleep(50 * time.Millisecond)
	if got := res.callCount(); got != 1 {
		t.Fatalf("resolver calls = %d, want 1", got)
	}

	close(res.gates["s1"])
	waitCond(t, func() bool { return rec.CurrentSongID() == "s1" }, "track never loaded")
}

func TestTrackChangeSupersedesInFlightLoad(t *testing.T) {
	rec, eng, res, fc := testReconciler(t)
	res.gates["s1"] = make(chan struct{}) // s1 resolve hangs; s2 is instant

	rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return res.callCount() == 1 }, "first resolve never started")

	rec.ApplySync(context.Background(), syncReport("s2", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return rec.CurrentSongID() == "s2" }, "superseding track never loaded")

	// Let the first resolve come back late: its result must be discarded.
	close(res.gates["s1"])
	time.Sleep(50 * time.Millisecond)
	if rec.CurrentSongID() != "s2" {
		t.Fatalf("current = %q, want s2", rec.CurrentSongID())
	}
	if eng.loadedURL() != "http://cdn/s2.m4a" {
		t.Fatalf("engine url = %q, stale load overwrote it", eng.loadedURL())
	}
	if err := rec.Tick(); err != nil {
		t.Fatalf("stale result must not surface an error, got %v", err)
	}
}

func TestSlowResolveDoesNotBlockApplySync(t *testing.T) {
	rec, _, res, fc := testReconciler(t)
	res.gates["s1"] = make(chan struct{})
	defer close(res.gates["s1"])

	done := make(chan struct{})
	go func() {
		rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
		rec.Tick()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ApplySync/Tick blocked behind a hanging resolve")
	}
}

func TestTickCompletesAsyncLoadWithPendingSeek(t *testing.T) {
	rec, eng, _, fc := testReconciler(t)
	eng.setReady(false) // engine loads asynchronously

	rec.ApplySync(context.Background(), syncReport("s1", true, 7, 0, fc.now()))
	waitCond(t, func() bool { return eng.loadedURL() != "" }, "engine never got the url")
	if rec.CurrentSongID() != "" {
		t.Fatal("track should still be loading")
	}

	eng.setReady(true)
	if err := rec.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rec.CurrentSongID() != "s1" {
		t.Fatalf("current = %q, want s1", rec.CurrentSongID())
	}
	seeks := eng.seekLog()
	if len(seeks) == 0 || seeks[len(seeks)-1] < 7 {
		t.Fatalf("seeks = %v, want pending seek applied", seeks)
	}
}

func TestTickTimesOutStuckLoad(t *testing.T) {
	rec, _, res, fc := testReconciler(t)
	res.gates["s1"] = make(chan struct{}) // upstream never answers

	rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return res.callCount() == 1 }, "resolve never started")

	fc.advance(14 * time.Second)
	if err := rec.Tick(); err != nil {
		t.Fatalf("tick before timeout: %v", err)
	}

	fc.advance(2 * time.Second)
	if err := rec.Tick(); !errors.Is(err, ErrLoadTimeout) {
		t.Fatalf("tick after timeout: err = %v, want ErrLoadTimeout", err)
	}

	// Abandoned, and the hanging resolve was cancelled; no retry on its own.
	waitCond(t, func() bool { return rec.Tick() == nil }, "timeout never settled")
	if got := res.callCount(); got != 1 {
		t.Fatalf("resolver calls = %d, want 1", got)
	}
}

func TestDriftCorrectionOnlyBeyondTolerance(t *testing.T) {
	rec, eng, _, fc := testReconciler(t)

	rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return rec.CurrentSongID() == "s1" }, "track never loaded")
	seeksAfterLoad := len(eng.seekLog())

	// Drift inside tolerance: no seek.
	eng.setPosition(10.3)
	rec.ApplySync(context.Background(), syncReport("s1", true, 10.0, 0, fc.now()))
	if got := len(eng.seekLog()); got != seeksAfterLoad {
		t.Fatalf("seeks = %v, in-tolerance drift should not seek", eng.seekLog())
	}

	// Drift beyond tolerance: snap to expected.
	eng.setPosition(2.0)
	rec.ApplySync(context.Background(), syncReport("s1", true, 10.0, 0, fc.now()))
	seeks := eng.seekLog()
	if len(seeks) != seeksAfterLoad+1 {
		t.Fatalf("seeks = %v, out-of-tolerance drift should seek", seeks)
	}
	if got := seeks[len(seeks)-1]; got < 9.99 || got > 10.01 {
		t.Fatalf("seek target = %v, want ~10.0", got)
	}
}

func TestPauseStateFollowsRoom(t *testing.T) {
	rec, eng, _, fc := testReconciler(t)

	rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return rec.CurrentSongID() == "s1" }, "track never loaded")
	if !eng.isPlaying() {
		t.Fatal("engine should be playing")
	}

	eng.setPosition(4.0)
	rec.ApplySync(context.Background(), syncReport("s1", false, 4.0, 4.0, fc.now()))
	if eng.isPlaying() {
		t.Fatal("engine should be paused")
	}
}

func TestNilCurrentSongUnloads(t *testing.T) {
	rec, eng, _, fc := testReconciler(t)

	rec.ApplySync(context.Background(), syncReport("s1", true, 0, 0, fc.now()))
	waitCond(t, func() bool { return rec.CurrentSongID() == "s1" }, "track never loaded")

	rec.ApplySync(context.Background(), room.SyncPlaybackData{})
	if rec.CurrentSongID() != "" {
		t.Fatalf("current = %q, want empty", rec.CurrentSongID())
	}
	if eng.isPlaying() {
		t.Fatal("engine should be paused after unload")
	}
}
