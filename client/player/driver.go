// Package player drives one client's playback through the shared queue.
//
// The Driver owns the current index and the media backend. Backend calls are
// never made while the driver's lock is held; they are handed to an executor
// and their outcome comes back later as events.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VibeQ/client/media"
	"VibeQ/client/syncloop"
	"VibeQ/core/errs"
	"VibeQ/logger"
	"VibeQ/model"
)

const (
	DefaultVolume           = 75
	DefaultSettleDelay      = 500 * time.Millisecond
	DefaultPositionInterval = time.Second

	// fallbackDuration is shown when neither the backend nor the track
	// knows how long it is.
	fallbackDuration = 300.0
)

// State of the driver.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PointerWriter publishes the id of the track being played.
type PointerWriter interface {
	SetNowPlaying(ctx context.Context, trackID string) error
}

// Timer is the part of *time.Timer the driver uses.
type Timer interface {
	Stop() bool
}

// Options configures a Driver. Zero values get defaults.
type Options struct {
	Provider media.Provider
	// Pointer may be nil, in which case nothing is published.
	Pointer          PointerWriter
	SettleDelay      time.Duration
	PositionInterval time.Duration
	// Exec runs backend calls. Defaults to a new goroutine per batch.
	Exec func(func())
	// AfterFunc schedules timers. Defaults to time.AfterFunc.
	AfterFunc func(time.Duration, func()) Timer
	Context   context.Context
}

// Snapshot is a point-in-time copy of the driver state for display.
type Snapshot struct {
	State       State
	Index       int
	Count       int
	Track       *model.TrackEntry
	Interactive bool
	EmbedURL    string
	Position    float64
	Duration    float64
	Volume      int
	Muted       bool
	HasNext     bool
	HasPrevious bool
}

// Label renders the position in the queue as "n of N".
func (s Snapshot) Label() string {
	if s.Index < 0 || s.Count == 0 {
		return fmt.Sprintf("0 of %d", s.Count)
	}
	return fmt.Sprintf("%d of %d", s.Index+1, s.Count)
}

// Driver is the playback state machine.
type Driver struct {
	provider         media.Provider
	pointer          PointerWriter
	settleDelay      time.Duration
	positionInterval time.Duration
	exec             func(func())
	afterFunc        func(time.Duration, func()) Timer
	ctx              context.Context

	mu     sync.Mutex
	tracks []*model.TrackEntry
	index  int
	state  State

	backend media.Backend
	// gen changes whenever the backend is replaced; events and timers
	// carrying an older value are ignored.
	gen           uint64
	awaitingReady bool
	readyEarly    bool

	position  float64
	duration  float64
	volume    int
	muted     bool
	published string

	settle Timer
	poll   Timer
	closed bool
}

// New creates an idle driver.
func New(opts Options) *Driver {
	d := &Driver{
		provider:         opts.Provider,
		pointer:          opts.Pointer,
		settleDelay:      opts.SettleDelay,
		positionInterval: opts.PositionInterval,
		exec:             opts.Exec,
		afterFunc:        opts.AfterFunc,
		ctx:              opts.Context,
		index:            -1,
		state:            Idle,
		volume:           DefaultVolume,
	}
	if d.settleDelay <= 0 {
		d.settleDelay = DefaultSettleDelay
	}
	if d.positionInterval <= 0 {
		d.positionInterval = DefaultPositionInterval
	}
	if d.exec == nil {
		d.exec = func(fn func()) { go fn() }
	}
	if d.afterFunc == nil {
		d.afterFunc = func(delay time.Duration, fn func()) Timer {
			return time.AfterFunc(delay, fn)
		}
	}
	if d.ctx == nil {
		d.ctx = context.Background()
	}
	return d
}

func (d *Driver) run(effects []func()) {
	if len(effects) == 0 {
		return
	}
	d.exec(func() {
		for _, fn := range effects {
			fn()
		}
	})
}

func call(op string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			logger.Warn("Backend call failed",
				logger.String("op", op),
				logger.ErrorField(err))
		}
	}
}

func clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

func indexOf(tracks []*model.TrackEntry, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// currentLocked requires d.mu.
func (d *Driver) currentLocked() *model.TrackEntry {
	if d.index < 0 || d.index >= len(d.tracks) {
		return nil
	}
	return d.tracks[d.index]
}

// OnView feeds a synchronization view into the driver. Views carrying
// unconfirmed local changes are ignored.
func (d *Driver) OnView(v syncloop.View) {
	if !v.Confirmed {
		return
	}
	d.Reconcile(model.OldestFirst(v.Tracks), v.NowPlaying)
}

// Reconcile replaces the queue with tracks, oldest first. The current track
// keeps playing if it is still queued. If it was removed, whatever now sits
// at its index takes over, or the last track if the queue got shorter. On
// first use the driver starts at pointer when it is queued, else at the
// oldest track. pointer is the server's current value; it is not published
// again.
func (d *Driver) Reconcile(tracks []*model.TrackEntry, pointer *string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	prev := d.currentLocked()
	d.tracks = tracks
	if pointer != nil {
		d.published = *pointer
	}

	var fx []func()
	if len(tracks) == 0 {
		d.index = -1
		d.state = Idle
		d.cancelSettleLocked()
		fx = d.teardownLocked()
		d.mu.Unlock()
		d.run(fx)
		return
	}

	var target int
	switch {
	case prev != nil:
		target = indexOf(tracks, prev.ID)
		if target < 0 {
			target = d.index
		}
	case pointer != nil && indexOf(tracks, *pointer) >= 0:
		target = indexOf(tracks, *pointer)
	default:
		target = 0
	}
	target = clamp(target, len(tracks))

	if prev != nil && tracks[target].ID == prev.ID {
		d.index = target
	} else {
		fx = d.selectLocked(target)
	}
	d.mu.Unlock()
	d.run(fx)
}

// Select plays the track at index i, clamped into the queue.
func (d *Driver) Select(i int) error {
	d.mu.Lock()
	if len(d.tracks) == 0 {
		d.mu.Unlock()
		return errs.Validation("queue is empty")
	}
	fx := d.selectLocked(clamp(i, len(d.tracks)))
	d.mu.Unlock()
	d.run(fx)
	return nil
}

// Next moves to the following track. It reports false at the end of the
// queue.
func (d *Driver) Next() bool {
	d.mu.Lock()
	if d.index+1 >= len(d.tracks) {
		d.mu.Unlock()
		return false
	}
	fx := d.selectLocked(d.index + 1)
	d.mu.Unlock()
	d.run(fx)
	return true
}

// Previous moves to the preceding track. It reports false at the start.
func (d *Driver) Previous() bool {
	d.mu.Lock()
	if d.index <= 0 || len(d.tracks) == 0 {
		d.mu.Unlock()
		return false
	}
	fx := d.selectLocked(d.index - 1)
	d.mu.Unlock()
	d.run(fx)
	return true
}

// HasNext reports whether a later track is queued.
func (d *Driver) HasNext() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index+1 < len(d.tracks)
}

// HasPrevious reports whether an earlier track is queued.
func (d *Driver) HasPrevious() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index > 0 && len(d.tracks) > 0
}

// selectLocked requires d.mu and a valid index.
func (d *Driver) selectLocked(i int) []func() {
	d.index = i
	d.cancelSettleLocked()
	track := d.tracks[i]

	fx := d.publishLocked(track.ID)

	contentID, interactive, err := media.ResolveContent(track)
	if err != nil {
		logger.Warn("Track cannot be played",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
		fx = append(fx, d.teardownLocked()...)
		d.skipLocked()
		return fx
	}

	if d.backend != nil && d.backend.ContentID() == contentID && media.IsInteractive(d.backend) == interactive {
		return fx
	}

	d.position = 0
	d.duration = 0

	if cur, ok := d.backend.(media.Interactive); ok && interactive {
		d.backend = media.Interactive{Surface: cur.Surface, Content: contentID}
		d.state = Loading
		surface := cur.Surface
		return append(fx,
			call("load", func() error { return surface.Load(contentID) }),
			call("play", surface.Play),
		)
	}

	fx = append(fx, d.teardownLocked()...)
	d.gen++
	gen := d.gen

	if !interactive {
		b, err := media.Open(track, d.provider, nil)
		if err != nil {
			logger.Warn("Track cannot be embedded",
				logger.String("trackId", track.ID),
				logger.ErrorField(err))
			d.skipLocked()
			return fx
		}
		d.backend = b
		d.state = Playing
		return fx
	}

	d.state = Loading
	d.awaitingReady = true
	d.readyEarly = false
	return append(fx, func() { d.open(gen, track) })
}

func (d *Driver) open(gen uint64, track *model.TrackEntry) {
	b, err := media.Open(track, d.provider, func(e media.Event) {
		d.handleEvent(gen, e)
	})

	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		if err == nil {
			if s, ok := b.(media.Interactive); ok {
				call("destroy", s.Surface.Destroy)()
			}
		}
		return
	}
	if err != nil {
		d.awaitingReady = false
		d.skipLocked()
		d.mu.Unlock()
		logger.Warn("Failed to open player",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
		return
	}

	d.backend = b
	var fx []func()
	if d.readyEarly {
		fx = d.readyLocked()
	}
	d.schedulePollLocked(gen)
	d.mu.Unlock()
	d.run(fx)
}

// teardownLocked requires d.mu. It detaches the backend and returns the
// calls that release it.
func (d *Driver) teardownLocked() []func() {
	if d.poll != nil {
		d.poll.Stop()
		d.poll = nil
	}
	b := d.backend
	d.backend = nil
	d.awaitingReady = false
	d.readyEarly = false
	d.position = 0
	d.duration = 0
	if b == nil {
		return nil
	}
	d.gen++
	if s, ok := b.(media.Interactive); ok {
		return []func(){call("destroy", s.Surface.Destroy)}
	}
	return nil
}

// publishLocked requires d.mu.
func (d *Driver) publishLocked(trackID string) []func() {
	if d.pointer == nil || trackID == d.published {
		return nil
	}
	d.published = trackID
	ctx := d.ctx
	pointer := d.pointer
	return []func(){func() {
		if err := pointer.SetNowPlaying(ctx, trackID); err != nil {
			logger.Warn("Failed to publish now playing",
				logger.String("trackId", trackID),
				logger.ErrorField(err))
		}
	}}
}

// HandleEvent applies an event from the current backend.
func (d *Driver) HandleEvent(e media.Event) {
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	d.handleEvent(gen, e)
}

func (d *Driver) handleEvent(gen uint64, e media.Event) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		logger.Debug("Dropping stale backend event", logger.String("event", e.String()))
		return
	}

	var fx []func()
	switch e {
	case media.EventReady:
		if !d.awaitingReady {
			break
		}
		if d.backend == nil {
			d.readyEarly = true
			break
		}
		fx = d.readyLocked()
	case media.EventPlaying:
		d.state = Playing
		d.cancelSettleLocked()
	case media.EventPaused:
		d.state = Paused
	case media.EventEnded:
		d.state = Ended
		if d.index+1 < len(d.tracks) {
			d.scheduleSettleLocked(gen)
		}
	}
	d.mu.Unlock()
	d.run(fx)
}

// readyLocked requires d.mu and an interactive backend.
func (d *Driver) readyLocked() []func() {
	d.awaitingReady = false
	d.readyEarly = false
	s, ok := d.backend.(media.Interactive)
	if !ok {
		return nil
	}
	d.state = Playing
	surface := s.Surface
	volume := d.volume
	fx := []func(){call("volume", func() error { return surface.SetVolume(volume) })}
	if d.muted {
		fx = append(fx, call("mute", surface.Mute))
	}
	return append(fx, call("play", surface.Play))
}

// scheduleSettleLocked requires d.mu.
func (d *Driver) scheduleSettleLocked(gen uint64) {
	d.cancelSettleLocked()
	index := d.index
	d.settle = d.afterFunc(d.settleDelay, func() {
		d.mu.Lock()
		if d.closed || gen != d.gen || d.state != Ended || d.index != index || index+1 >= len(d.tracks) {
			d.mu.Unlock()
			return
		}
		d.settle = nil
		fx := d.selectLocked(index + 1)
		d.mu.Unlock()
		d.run(fx)
	})
}

// skipLocked requires d.mu. A track that cannot be played counts as ended,
// so the next one is selected after the settle delay.
func (d *Driver) skipLocked() {
	d.state = Ended
	if d.index+1 < len(d.tracks) {
		d.scheduleSettleLocked(d.gen)
	}
}

// cancelSettleLocked requires d.mu.
func (d *Driver) cancelSettleLocked() {
	if d.settle != nil {
		d.settle.Stop()
		d.settle = nil
	}
}

// schedulePollLocked requires d.mu.
func (d *Driver) schedulePollLocked(gen uint64) {
	if d.poll != nil {
		d.poll.Stop()
	}
	d.poll = d.afterFunc(d.positionInterval, func() {
		d.pollPosition(gen)
	})
}

func (d *Driver) pollPosition(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	s, ok := d.backend.(media.Interactive)
	track := d.currentLocked()
	d.mu.Unlock()

	if ok {
		pos, posErr := s.Surface.CurrentTime()
		dur, durErr := s.Surface.Duration()
		if posErr != nil {
			logger.Debug("Position poll failed", logger.ErrorField(posErr))
		}

		d.mu.Lock()
		if !d.closed && gen == d.gen {
			if posErr == nil {
				d.position = pos
			}
			if durErr == nil && dur > 0 {
				d.duration = dur
			} else {
				d.duration = trackDuration(track)
			}
		}
		d.mu.Unlock()
	}

	d.mu.Lock()
	if !d.closed && gen == d.gen {
		d.schedulePollLocked(gen)
	}
	d.mu.Unlock()
}

func trackDuration(track *model.TrackEntry) float64 {
	if track != nil && track.DurationSeconds != nil && *track.DurationSeconds > 0 {
		return float64(*track.DurationSeconds)
	}
	return fallbackDuration
}

// interactiveLocked requires d.mu. It returns the surface or the error a
// control should report.
func (d *Driver) interactiveLocked() (media.ControlSurface, error) {
	switch b := d.backend.(type) {
	case media.Interactive:
		return b.Surface, nil
	case media.Opaque:
		return nil, fmt.Errorf("%w: embedded player has no controls", errs.ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: nothing loaded", errs.ErrUnsupported)
}

// Play resumes playback, reloading the current track if nothing is loaded.
func (d *Driver) Play() error {
	d.mu.Lock()
	if d.backend == nil && !d.awaitingReady {
		if d.currentLocked() == nil {
			d.mu.Unlock()
			return errs.Validation("nothing selected")
		}
		fx := d.selectLocked(d.index)
		d.mu.Unlock()
		d.run(fx)
		return nil
	}
	surface, err := d.interactiveLocked()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.run([]func(){call("play", surface.Play)})
	return nil
}

// Pause pauses an interactive backend.
func (d *Driver) Pause() error {
	d.mu.Lock()
	surface, err := d.interactiveLocked()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.run([]func(){call("pause", surface.Pause)})
	return nil
}

// Seek jumps to seconds from the start of the track.
func (d *Driver) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	d.mu.Lock()
	surface, err := d.interactiveLocked()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.run([]func(){call("seek", func() error { return surface.Seek(seconds) })})
	return nil
}

// SetVolume sets the volume in 0-100 and unmutes. The value is kept for
// backends opened later.
func (d *Driver) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	d.mu.Lock()
	if _, ok := d.backend.(media.Opaque); ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: embedded player has no controls", errs.ErrUnsupported)
	}
	d.volume = volume
	d.muted = false
	b, ok := d.backend.(media.Interactive)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	surface := b.Surface
	d.run([]func(){
		call("volume", func() error { return surface.SetVolume(volume) }),
		call("unmute", surface.Unmute),
	})
	return nil
}

// ToggleMute flips the mute flag.
func (d *Driver) ToggleMute() error {
	d.mu.Lock()
	if _, ok := d.backend.(media.Opaque); ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: embedded player has no controls", errs.ErrUnsupported)
	}
	d.muted = !d.muted
	muted := d.muted
	b, ok := d.backend.(media.Interactive)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	if muted {
		d.run([]func(){call("mute", b.Surface.Mute)})
	} else {
		d.run([]func(){call("unmute", b.Surface.Unmute)})
	}
	return nil
}

// Snapshot returns the current state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		State:       d.state,
		Index:       d.index,
		Count:       len(d.tracks),
		Track:       d.currentLocked(),
		Volume:      d.volume,
		Muted:       d.muted,
		HasNext:     d.index+1 < len(d.tracks),
		HasPrevious: d.index > 0 && len(d.tracks) > 0,
	}
	switch b := d.backend.(type) {
	case media.Interactive:
		s.Interactive = true
		s.Position = d.position
		s.Duration = d.duration
		if s.Duration == 0 {
			s.Duration = trackDuration(s.Track)
		}
	case media.Opaque:
		s.EmbedURL = b.EmbedURL
	}
	return s
}

// Close destroys the backend and stops all timers. The driver ignores
// everything afterwards.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.cancelSettleLocked()
	fx := d.teardownLocked()
	d.closed = true
	d.state = Idle
	d.mu.Unlock()

	for _, fn := range fx {
		fn()
	}
}
