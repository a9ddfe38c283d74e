package media

import (
	"sync"
	"testing"
	"time"

	"VibeQ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) has(e Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.events {
		if got == e {
			return true
		}
	}
	return false
}

func TestOpen(t *testing.T) {
	provider := &SimulatedProvider{}

	t.Run("interactive", func(t *testing.T) {
		track := &model.TrackEntry{SourceKind: model.SourceYouTubeMusic, Locator: "https://music.youtube.com/watch?v=dQw4w9WgXcQ"}
		b, err := Open(track, provider, func(Event) {})
		require.NoError(t, err)
		defer b.(Interactive).Surface.Destroy()

		assert.True(t, IsInteractive(b))
		assert.Equal(t, "dQw4w9WgXcQ", b.ContentID())
	})

	t.Run("opaque", func(t *testing.T) {
		track := &model.TrackEntry{SourceKind: model.SourceSpotify, Locator: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"}
		b, err := Open(track, provider, func(Event) {})
		require.NoError(t, err)

		opaque, ok := b.(Opaque)
		require.True(t, ok)
		assert.False(t, IsInteractive(b))
		assert.Equal(t, "https://open.spotify.com/embed/track/4uLU6hMCjMI75M1A2tKUQC?utm_source=generator", opaque.EmbedURL)
	})

	t.Run("bad locator", func(t *testing.T) {
		track := &model.TrackEntry{SourceKind: model.SourceYouTubeVideo, Locator: "https://youtu.be/short"}
		_, err := Open(track, provider, func(Event) {})
		assert.Error(t, err)
	})
}

func TestSimulatedSurfaceLifecycle(t *testing.T) {
	log := &eventLog{}
	provider := &SimulatedProvider{Duration: 60 * time.Millisecond}

	surface, err := provider.Open("abc", log.emit)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return log.has(EventReady) }, time.Second, 5*time.Millisecond)

	d, err := surface.Duration()
	require.NoError(t, err)
	assert.InDelta(t, 0.06, d, 0.001)

	require.NoError(t, surface.Play())
	assert.True(t, log.has(EventPlaying))

	require.NoError(t, surface.Pause())
	assert.True(t, log.has(EventPaused))
	pos, err := surface.CurrentTime()
	require.NoError(t, err)
	assert.Less(t, pos, 0.06)

	require.NoError(t, surface.Seek(0.05))
	require.NoError(t, surface.Play())
	require.Eventually(t, func() bool { return log.has(EventEnded) }, time.Second, 5*time.Millisecond)

	require.NoError(t, surface.Destroy())
	assert.Error(t, surface.Play())
	_, err = surface.CurrentTime()
	assert.Error(t, err)
}

func TestSimulatedLoadResets(t *testing.T) {
	provider := &SimulatedProvider{Duration: time.Hour}
	surface, err := provider.Open("a", func(Event) {})
	require.NoError(t, err)
	defer surface.Destroy()

	require.NoError(t, surface.Seek(30))
	require.NoError(t, surface.Load("b"))
	pos, err := surface.CurrentTime()
	require.NoError(t, err)
	assert.Zero(t, pos)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "ended", EventEnded.String())
	assert.Equal(t, "event(9)", Event(9).String())
}
