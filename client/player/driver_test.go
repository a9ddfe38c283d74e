package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"VibeQ/client/media"
	"VibeQ/client/syncloop"
	"VibeQ/core/errs"
	"VibeQ/logger"
	"VibeQ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSurface struct {
	mu      sync.Mutex
	emit    func(media.Event)
	content string
	calls   []string
	fail    map[string]error

	position float64
	duration float64
}

func (s *fakeSurface) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
	return s.fail[op]
}

func (s *fakeSurface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSurface) Load(contentID string) error {
	s.mu.Lock()
	s.content = contentID
	s.mu.Unlock()
	return s.record("load:" + contentID)
}

func (s *fakeSurface) Play() error { return s.record("play") }
func (s *fakeSurface) Pause() error { return s.record("pause") }
func (s *fakeSurface) Seek(float64) error { return s.record("seek") }
func (s *fakeSurface) SetVolume(v int) error { return s.record("volume") }
func (s *fakeSurface) Mute() error { return s.record("mute") }
func (s *fakeSurface) Unmute() error { return s.record("unmute") }
func (s *fakeSurface) Destroy() error { return s.record("destroy") }

func (s *fakeSurface) CurrentTime() (float64, error) {
	return s.position, s.fail["time"]
}

func (s *fakeSurface) Duration() (float64, error) {
	return s.duration, s.fail["duration"]
}

type fakeProvider struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
	fail     map[string]error // by content id
}

func (p *fakeProvider) Open(contentID string, emit func(media.Event)) (media.ControlSurface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[contentID]; err != nil {
		return nil, err
	}
	s := &fakeSurface{emit: emit, content: contentID, fail: map[string]error{}}
	p.surfaces = append(p.surfaces, s)
	return s, nil
}

func (p *fakeProvider) last() *fakeSurface {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.surfaces) == 0 {
		return nil
	}
	return p.surfaces[len(p.surfaces)-1]
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.surfaces)
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// scheduler collects timers and fires them on demand.
type scheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *scheduler) AfterFunc(delay time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: delay, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// fire runs every live timer scheduled with delay.
func (s *scheduler) fire(delay time.Duration) int {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if t.delay == delay && !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (s *scheduler) live(delay time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.delay == delay && !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type pointerLog struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *pointerLog) SetNowPlaying(ctx context.Context, trackID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, trackID)
	return p.err
}

func (p *pointerLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type fixture struct {
	provider *fakeProvider
	sched    *scheduler
	pointer  *pointerLog
	driver   *Driver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: &fakeProvider{},
		sched:    &scheduler{},
		pointer:  &pointerLog{},
	}
	f.driver = New(Options{
		Provider:  f.provider,
		Pointer:   f.pointer,
		Exec:      func(fn func()) { fn() },
		AfterFunc: f.sched.AfterFunc,
	})
	t.Cleanup(f.driver.Close)
	return f
}

func ytTrack(id, video string) *model.TrackEntry {
	return &model.TrackEntry{
		ID:         id,
		Title:      id,
		SourceKind: model.SourceYouTubeVideo,
		Locator:    "https://www.youtube.com/watch?v=" + video,
	}
}

func spotifyTrack(id string) *model.TrackEntry {
	return &model.TrackEntry{
		ID:         id,
		Title:      id,
		SourceKind: model.SourceSpotify,
		Locator:    "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
	}
}

func TestSelectWaitsForReady(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "aaaaaaaaaaa")}, nil)

	assert.Equal(t, Loading, f.driver.Snapshot().State)
	s := f.provider.last()
	require.NotNil(t, s)
	assert.Empty(t, s.Calls(), "play is issued only once the backend is ready")

	s.emit(media.EventReady)
	assert.Equal(t, Playing, f.driver.Snapshot().State)
	assert.Equal(t, []string{"volume", "play"}, s.Calls())
}

func TestEndedWithoutNext(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "aaaaaaaaaaa")}, nil)
	assert.Equal(t, []string{"t1"}, f.pointer.all())

	s := f.provider.last()
	s.emit(media.EventReady)
	s.emit(media.EventEnded)

	snap := f.driver.Snapshot()
	assert.Equal(t, Ended, snap.State)
	assert.Equal(t, "t1", snap.Track.ID)
	assert.Zero(t, f.sched.live(DefaultSettleDelay))
	assert.Equal(t, []string{"t1"}, f.pointer.all())
}

func TestEndedAutoAdvancesAfterSettle(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{
		ytTrack("t1", "aaaaaaaaaaa"),
		ytTrack("t2", "bbbbbbbbbbb"),
	}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)
	s.emit(media.EventEnded)

	assert.Equal(t, "t1", f.driver.Snapshot().Track.ID, "no advance before the settle delay")
	require.Equal(t, 1, f.sched.fire(DefaultSettleDelay))

	snap := f.driver.Snapshot()
	assert.Equal(t, "t2", snap.Track.ID)
	assert.Equal(t, Loading, snap.State)
	assert.Equal(t, 1, f.provider.count(), "same family reuses the surface")
	assert.Contains(t, s.Calls(), "load:bbbbbbbbbbb")
	assert.Equal(t, []string{"t1", "t2"}, f.pointer.all())

	s.emit(media.EventPlaying)
	assert.Equal(t, Playing, f.driver.Snapshot().State)
}

func TestUnplayableTrackIsSkippedAfterSettle(t *testing.T) {
	f := newFixture(t)
	bad := ytTrack("t2", "abc")
	f.driver.Reconcile([]*model.TrackEntry{
		ytTrack("t1", "aaaaaaaaaaa"),
		bad,
		ytTrack("t3", "ccccccccccc"),
	}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)
	s.emit(media.EventEnded)
	require.Equal(t, 1, f.sched.fire(DefaultSettleDelay))

	snap := f.driver.Snapshot()
	assert.Equal(t, "t2", snap.Track.ID)
	assert.Equal(t, Ended, snap.State)
	assert.Contains(t, s.Calls(), "destroy")
	require.Equal(t, 1, f.sched.live(DefaultSettleDelay), "an unplayable track settles like an ended one")

	require.Equal(t, 1, f.sched.fire(DefaultSettleDelay))
	snap = f.driver.Snapshot()
	assert.Equal(t, "t3", snap.Track.ID)
	assert.Equal(t, Loading, snap.State)
	assert.Equal(t, 2, f.provider.count())
	assert.Equal(t, []string{"t1", "t2", "t3"}, f.pointer.all())
}

func TestUnplayableLastTrackStaysEnded(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "abc")}, nil)

	snap := f.driver.Snapshot()
	assert.Equal(t, Ended, snap.State)
	assert.Equal(t, "t1", snap.Track.ID)
	assert.Zero(t, f.sched.live(DefaultSettleDelay))
	assert.Zero(t, f.provider.count())
}

func TestFailedOpenIsSkippedAfterSettle(t *testing.T) {
	f := newFixture(t)
	f.provider.fail = map[string]error{"aaaaaaaaaaa": errors.New("embed blocked")}
	f.driver.Reconcile([]*model.TrackEntry{
		ytTrack("t1", "aaaaaaaaaaa"),
		ytTrack("t2", "bbbbbbbbbbb"),
	}, nil)

	snap := f.driver.Snapshot()
	assert.Equal(t, "t1", snap.Track.ID)
	assert.Equal(t, Ended, snap.State)
	assert.Zero(t, f.provider.count())

	require.Equal(t, 1, f.sched.fire(DefaultSettleDelay))
	snap = f.driver.Snapshot()
	assert.Equal(t, "t2", snap.Track.ID)
	assert.Equal(t, Loading, snap.State)
	require.Equal(t, 1, f.provider.count())
	f.provider.last().emit(media.EventReady)
	assert.Equal(t, Playing, f.driver.Snapshot().State)
}

func TestSettleCancelledByPlaying(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{
		ytTrack("t1", "aaaaaaaaaaa"),
		ytTrack("t2", "bbbbbbbbbbb"),
	}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)
	s.emit(media.EventEnded)
	s.emit(media.EventPlaying)

	assert.Zero(t, f.sched.fire(DefaultSettleDelay))
	assert.Equal(t, "t1", f.driver.Snapshot().Track.ID)
}

func TestRemovalReconciliation(t *testing.T) {
	t1 := ytTrack("t1", "aaaaaaaaaaa")
	t2 := ytTrack("t2", "bbbbbbbbbbb")
	t3 := ytTrack("t3", "ccccccccccc")

	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{t1, t2, t3}, nil)
	f.provider.last().emit(media.EventReady)

	// A later track disappears: nothing moves.
	f.driver.Reconcile([]*model.TrackEntry{t1, t2}, nil)
	snap := f.driver.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, "t1", snap.Track.ID)
	assert.Equal(t, Playing, snap.State)

	// The current track disappears: its successor takes its index.
	f.driver.Reconcile([]*model.TrackEntry{t2}, nil)
	snap = f.driver.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, "t2", snap.Track.ID)
	assert.Equal(t, []string{"t1", "t2"}, f.pointer.all())
}

func TestRemovalBeforeCurrentShiftsIndex(t *testing.T) {
	t1 := ytTrack("t1", "aaaaaaaaaaa")
	t2 := ytTrack("t2", "bbbbbbbbbbb")
	t3 := ytTrack("t3", "ccccccccccc")

	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{t1, t2, t3}, nil)
	require.NoError(t, f.driver.Select(2))
	s := f.provider.last()
	before := len(s.Calls())

	f.driver.Reconcile([]*model.TrackEntry{t2, t3}, nil)
	snap := f.driver.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, "t3", snap.Track.ID)
	assert.Len(t, s.Calls(), before, "shifting the index does not touch the backend")
}

func TestRemovalOfLastCurrentClampsToNewLast(t *testing.T) {
	t1 := ytTrack("t1", "aaaaaaaaaaa")
	t2 := ytTrack("t2", "bbbbbbbbbbb")
	t3 := ytTrack("t3", "ccccccccccc")

	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{t1, t2, t3}, nil)
	require.NoError(t, f.driver.Select(2))

	f.driver.Reconcile([]*model.TrackEntry{t1, t2}, nil)
	snap := f.driver.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, "t2", snap.Track.ID)
}

func TestClampProperty(t *testing.T) {
	for n := 0; n <= 4; n++ {
		for stale := -2; stale <= 6; stale++ {
			f := newFixture(t)
			full := make([]*model.TrackEntry, 7)
			for i := range full {
				full[i] = spotifyTrack(string(rune('a' + i)))
			}
			f.driver.Reconcile(full, nil)
			f.driver.mu.Lock()
			f.driver.index = clamp(stale, len(full))
			f.driver.mu.Unlock()

			// Drop everything including the current track.
			var remaining []*model.TrackEntry
			for i := 0; i < n; i++ {
				remaining = append(remaining, &model.TrackEntry{
					ID:         "n" + string(rune('a'+i)),
					SourceKind: model.SourceSpotify,
					Locator:    full[0].Locator,
				})
			}
			f.driver.Reconcile(remaining, nil)

			snap := f.driver.Snapshot()
			if n == 0 {
				assert.Equal(t, Idle, snap.State)
				assert.Nil(t, snap.Track)
				continue
			}
			assert.GreaterOrEqual(t, snap.Index, 0)
			assert.Less(t, snap.Index, n)
		}
	}
}

func TestEmptyQueueTearsDown(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "aaaaaaaaaaa")}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)

	f.driver.Reconcile(nil, nil)
	snap := f.driver.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, -1, snap.Index)
	assert.Contains(t, s.Calls(), "destroy")
	assert.Equal(t, "0 of 0", snap.Label())

	// Events from the destroyed surface are ignored.
	s.emit(media.EventPlaying)
	assert.Equal(t, Idle, f.driver.Snapshot().State)
}

func TestSameContentDoesNotReload(t *testing.T) {
	a := ytTrack("t1", "aaaaaaaaaaa")
	dup := ytTrack("t2", "aaaaaaaaaaa")

	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{a, dup}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)
	before := len(s.Calls())

	require.NoError(t, f.driver.Select(1))
	assert.Len(t, s.Calls(), before)
	assert.Equal(t, 1, f.provider.count())
	assert.Equal(t, Playing, f.driver.Snapshot().State)
}

func TestFamilyChangeReplacesBackend(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{
		ytTrack("t1", "aaaaaaaaaaa"),
		spotifyTrack("t2"),
		ytTrack("t3", "ccccccccccc"),
	}, nil)
	first := f.provider.last()
	first.emit(media.EventReady)

	require.True(t, f.driver.Next())
	assert.Contains(t, first.Calls(), "destroy")
	snap := f.driver.Snapshot()
	assert.Equal(t, Playing, snap.State)
	assert.False(t, snap.Interactive)
	assert.Equal(t, "https://open.spotify.com/embed/track/4uLU6hMCjMI75M1A2tKUQC?utm_source=generator", snap.EmbedURL)
	assert.Zero(t, snap.Position)

	require.True(t, f.driver.Next())
	assert.Equal(t, 2, f.provider.count())
	assert.Equal(t, Loading, f.driver.Snapshot().State)

	// The first surface is gone; its late events must not move the driver.
	first.emit(media.EventEnded)
	assert.Equal(t, Loading, f.driver.Snapshot().State)
}

func TestOpaqueControlsUnsupported(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{spotifyTrack("t1")}, nil)

	assert.ErrorIs(t, f.driver.Pause(), errs.ErrUnsupported)
	assert.ErrorIs(t, f.driver.Play(), errs.ErrUnsupported)
	assert.ErrorIs(t, f.driver.Seek(10), errs.ErrUnsupported)
	assert.ErrorIs(t, f.driver.SetVolume(10), errs.ErrUnsupported)
	assert.ErrorIs(t, f.driver.ToggleMute(), errs.ErrUnsupported)
	assert.Equal(t, DefaultVolume, f.driver.Snapshot().Volume)
}

func TestVolumeAndMute(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "aaaaaaaaaaa")}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)

	require.NoError(t, f.driver.ToggleMute())
	assert.True(t, f.driver.Snapshot().Muted)

	require.NoError(t, f.driver.SetVolume(150))
	snap := f.driver.Snapshot()
	assert.Equal(t, 100, snap.Volume)
	assert.False(t, snap.Muted)

	require.NoError(t, f.driver.Seek(-3))
	require.NoError(t, f.driver.Pause())
	assert.Equal(t, []string{"volume", "play", "mute", "volume", "unmute", "seek", "pause"}, s.Calls())
}

func TestPositionPolling(t *testing.T) {
	f := newFixture(t)
	seconds := 200
	track := ytTrack("t1", "aaaaaaaaaaa")
	track.DurationSeconds = &seconds
	f.driver.Reconcile([]*model.TrackEntry{track}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)

	s.position = 12
	require.Equal(t, 1, f.sched.fire(DefaultPositionInterval))
	snap := f.driver.Snapshot()
	assert.Equal(t, 12.0, snap.Position)
	assert.Equal(t, 200.0, snap.Duration, "falls back to the track duration")

	s.duration = 180
	require.Equal(t, 1, f.sched.fire(DefaultPositionInterval))
	assert.Equal(t, 180.0, f.driver.Snapshot().Duration)

	f.driver.Close()
	assert.Zero(t, f.sched.live(DefaultPositionInterval))
}

func TestDefaultDuration(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "aaaaaaaaaaa")}, nil)
	f.provider.last().emit(media.EventReady)
	assert.Equal(t, 300.0, f.driver.Snapshot().Duration)
}

func TestBackendFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := logger.ReplaceForTest(core)
	defer restore()

	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t1", "aaaaaaaaaaa")}, nil)
	s := f.provider.last()
	s.fail["play"] = errors.New("player not ready")
	s.emit(media.EventReady)

	entries := logs.FilterMessage("Backend call failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "play", entries[0].ContextMap()["op"])

	s.emit(media.EventPaused)
	assert.Equal(t, Paused, f.driver.Snapshot().State)
}

func TestPointerFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := logger.ReplaceForTest(core)
	defer restore()

	f := newFixture(t)
	f.pointer.err = errs.ErrNetwork
	f.driver.Reconcile([]*model.TrackEntry{spotifyTrack("t1")}, nil)

	assert.Equal(t, 1, logs.FilterMessage("Failed to publish now playing").Len())
	assert.Equal(t, Playing, f.driver.Snapshot().State)
}

func TestStartsAtPointer(t *testing.T) {
	f := newFixture(t)
	ptr := "t2"
	f.driver.Reconcile([]*model.TrackEntry{spotifyTrack("t1"), spotifyTrack("t2")}, &ptr)

	assert.Equal(t, "t2", f.driver.Snapshot().Track.ID)
	assert.Empty(t, f.pointer.all(), "pointer already names the track")
}

func TestOnViewIgnoresUnconfirmed(t *testing.T) {
	f := newFixture(t)
	f.driver.OnView(syncloop.View{Tracks: []*model.TrackEntry{spotifyTrack("temp-1")}})
	assert.Equal(t, Idle, f.driver.Snapshot().State)

	// Views arrive newest first.
	f.driver.OnView(syncloop.View{
		Tracks:    []*model.TrackEntry{spotifyTrack("t2"), spotifyTrack("t1")},
		Confirmed: true,
	})
	snap := f.driver.Snapshot()
	assert.Equal(t, "t1", snap.Track.ID)
	assert.True(t, snap.HasNext)
	assert.False(t, snap.HasPrevious)
	assert.Equal(t, "1 of 2", snap.Label())
}

func TestNavigationBounds(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.driver.Next())
	assert.False(t, f.driver.Previous())
	assert.ErrorIs(t, f.driver.Select(0), errs.ErrValidation)

	f.driver.Reconcile([]*model.TrackEntry{spotifyTrack("t1"), spotifyTrack("t2")}, nil)
	assert.False(t, f.driver.Previous())
	assert.True(t, f.driver.Next())
	assert.False(t, f.driver.HasNext())
	assert.True(t, f.driver.HasPrevious())
	assert.True(t, f.driver.Previous())

	require.NoError(t, f.driver.Select(10))
	assert.Equal(t, 1, f.driver.Snapshot().Index)
}

func TestCloseStopsEverything(t *testing.T) {
	f := newFixture(t)
	f.driver.Reconcile([]*model.TrackEntry{
		ytTrack("t1", "aaaaaaaaaaa"),
		ytTrack("t2", "bbbbbbbbbbb"),
	}, nil)
	s := f.provider.last()
	s.emit(media.EventReady)
	s.emit(media.EventEnded)

	f.driver.Close()
	assert.Contains(t, s.Calls(), "destroy")
	assert.Zero(t, f.sched.fire(DefaultSettleDelay))

	f.driver.Reconcile([]*model.TrackEntry{ytTrack("t3", "ccccccccccc")}, nil)
	assert.Equal(t, 1, f.provider.count())
	assert.Equal(t, Idle, f.driver.Snapshot().State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "state(42)", State(42).String())
}
