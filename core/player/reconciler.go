package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"syncfm/core/musicapi"
	"syncfm/core/room"
	"syncfm/logger"
	"syncfm/model"
)

const (
	// Drift larger than these snaps the engine to the expected position.
	// Playing tolerance is loose to absorb network jitter; paused
	// positions don't move, so they are held much tighter.
	driftTolerancePlaying = 0.75
	driftTolerancePaused  = 0.2

	// SyncInterval is how often a client asks the room for its clock.
	SyncInterval = 5 * time.Second

	loadTimeout = 15 * time.Second
)

// ErrLoadTimeout means a track did not become playable in time. The load is
// abandoned; the next track change or explicit user action starts a new one.
var ErrLoadTimeout = errors.New("track load timed out")

// Reconciler keeps a local engine converged on the room's reported playback
// state. It resolves stream URLs on track changes, corrects drift beyond
// tolerance and carries a pending seek across engine loading.
//
// Resolution runs on its own goroutine so a slow upstream never stalls the
// sync loop; a track change while a resolve is in flight cancels it, and a
// response landing for a track that is no longer wanted is discarded.
type Reconciler struct {
	engine   Engine
	resolver musicapi.Resolver
	now      func() time.Time

	mu            sync.Mutex
	currentSongID string
	loadingSongID string
	loadStartedAt time.Time
	loadDelivered bool // engine has the URL, waiting on readiness
	cancelLoad    context.CancelFunc
	pendingSeek   float64
	wantPlaying   bool
	loadErr       error
}

// NewReconciler builds a reconciler over an engine and a URL resolver.
// A nil now uses wall time.
func NewReconciler(engine Engine, resolver musicapi.Resolver, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{engine: engine, resolver: resolver, now: now}
}

// expectedPosition projects the room's reported progress to local now. A
// running clock keeps advancing while the report is in flight; a paused one
// is exactly its offset.
func expectedPosition(p model.Progress, now time.Time) float64 {
	if !p.IsPlaying {
		return p.Offset
	}
	return p.Elapsed + float64(now.UnixMilli()-p.ReportedAt)/1000
}

// shouldResync reports whether local drift from the expected position is
// beyond tolerance.
func shouldResync(expected, actual float64, playing bool) bool {
	tolerance := driftTolerancePaused
	if playing {
		tolerance = driftTolerancePlaying
	}
	return math.Abs(expected-actual) > tolerance
}

// ApplySync reconciles one sync report. A track change kicks off an async
// resolve and returns immediately; a report for the already-current track
// only corrects drift and play/pause state.
func (r *Reconciler) ApplySync(ctx context.Context, sync room.SyncPlaybackData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sync.CurrentSong == nil {
		r.unloadLocked()
		return nil
	}

	songID := sync.CurrentSong.SongID
	target := 0.0
	if sync.Progress != nil {
		target = expectedPosition(*sync.Progress, r.now())
	}
	r.wantPlaying = sync.IsPlaying

	if songID != r.currentSongID {
		r.startLoadLocked(ctx, songID, target)
		return nil
	}

	if !r.engine.Ready() {
		r.pendingSeek = target
		return nil
	}

	if shouldResync(target, r.engine.Position(), sync.IsPlaying) {
		logger.Debug("correcting drift",
			logger.String("songId", songID),
			logger.Float64("expected", target),
			logger.Float64("actual", r.engine.Position()))
		r.engine.SeekTo(target)
	}

	if sync.IsPlaying {
		r.engine.Play()
	} else {
		r.engine.Pause()
	}
	return nil
}

// startLoadLocked begins resolving a track's stream URL, remembering where
// playback should land once the engine is ready. Re-requesting the track
// already loading only refreshes the landing position; a different track
// cancels the in-flight resolve and supersedes it.
func (r *Reconciler) startLoadLocked(ctx context.Context, songID string, target float64) {
	if r.loadingSongID == songID {
		r.pendingSeek = target
		return
	}
	if r.cancelLoad != nil {
		r.cancelLoad()
	}

	r.loadingSongID = songID
	r.loadStartedAt = r.now()
	r.loadDelivered = false
	r.pendingSeek = target

	loadCtx, cancel := context.WithCancel(ctx)
	r.cancelLoad = cancel
	go r.resolveAndLoad(loadCtx, songID)
}

// resolveAndLoad runs off the sync loop. Whatever it brings back is applied
// only if the track is still the one being loaded.
func (r *Reconciler) resolveAndLoad(ctx context.Context, songID string) {
	streamURL, err := r.resolver.Resolve(ctx, songID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadingSongID != songID {
		logger.Debug("discarding stale stream url", logger.String("songId", songID))
		return
	}
	if err != nil {
		r.abandonLoadLocked(err)
		return
	}
	if err := r.engine.Load(streamURL); err != nil {
		r.abandonLoadLocked(err)
		return
	}
	r.loadDelivered = true
	// Engines that load asynchronously are completed by Tick.
	if r.engine.Ready() {
		r.finishLoadLocked(songID)
	}
}

// Tick runs the periodic checks: surfacing a failed resolve, expiring a
// stuck load, or completing one whose engine has become ready since.
func (r *Reconciler) Tick() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadErr; err != nil {
		r.loadErr = nil
		return err
	}
	if r.loadingSongID == "" {
		return nil
	}

	if r.loadDelivered && r.engine.Ready() {
		r.finishLoadLocked(r.loadingSongID)
		return nil
	}

	if r.now().Sub(r.loadStartedAt) > loadTimeout {
		logger.Error("track load timed out", logger.String("songId", r.loadingSongID))
		r.loadingSongID = ""
		r.loadDelivered = false
		if r.cancelLoad != nil {
			r.cancelLoad()
			r.cancelLoad = nil
		}
		return ErrLoadTimeout
	}
	return nil
}

// abandonLoadLocked drops the in-flight load and parks its error for the
// next Tick to report.
func (r *Reconciler) abandonLoadLocked(err error) {
	r.loadingSongID = ""
	r.loadDelivered = false
	r.loadErr = err
	if r.cancelLoad != nil {
		r.cancelLoad()
		r.cancelLoad = nil
	}
}

// finishLoadLocked promotes the loading track to current and applies the
// seek and play state accumulated while it loaded.
func (r *Reconciler) finishLoadLocked(songID string) {
	r.currentSongID = songID
	r.loadingSongID = ""
	r.loadDelivered = false
	if r.cancelLoad != nil {
		r.cancelLoad()
		r.cancelLoad = nil
	}

	r.engine.SeekTo(r.pendingSeek)
	if r.wantPlaying {
		r.engine.Play()
	} else {
		r.engine.Pause()
	}
}

func (r *Reconciler) unloadLocked() {
	if r.cancelLoad != nil {
		r.cancelLoad()
		r.cancelLoad = nil
	}
	r.currentSongID = ""
	r.loadingSongID = ""
	r.loadDelivered = false
	r.wantPlaying = false
	r.engine.Pause()
}

// CurrentSongID returns the track the engine is playing, empty when none.
func (r *Reconciler) CurrentSongID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSongID
}
