// Package media models the external players a track can be played through.
//
// Providers come in two families. Interactive providers expose a
// ControlSurface that can be scripted and report playback events. Opaque
// providers are a plain embed URL with no control and no events.
package media

import (
	"fmt"

	"VibeQ/core/locator"
	"VibeQ/model"
)

// Event is a playback signal raised by an interactive backend.
type Event int

const (
	EventReady Event = iota
	EventPlaying
	EventPaused
	EventEnded
)

func (e Event) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventEnded:
		return "ended"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ControlSurface is the scriptable player of an interactive provider. Calls
// may fail transiently; callers treat failures as non-fatal.
type ControlSurface interface {
	Load(contentID string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	// SetVolume takes 0-100.
	SetVolume(volume int) error
	Mute() error
	Unmute() error
	CurrentTime() (float64, error)
	Duration() (float64, error)
	Destroy() error
}

// Provider creates control surfaces. The surface starts loading contentID
// immediately and reports EventReady through emit once it can play.
type Provider interface {
	Open(contentID string, emit func(Event)) (ControlSurface, error)
}

// Backend is either Interactive or Opaque; no other implementations exist.
type Backend interface {
	backend()
	// ContentID identifies what is loaded, for no-reload checks.
	ContentID() string
}

// Interactive is a backend with a control surface.
type Interactive struct {
	Surface ControlSurface
	Content string
}

func (Interactive) backend() {}

func (b Interactive) ContentID() string {
	return b.Content
}

// Opaque is a backend that can only be embedded.
type Opaque struct {
	EmbedURL string
	Content  string
}

func (Opaque) backend() {}

func (b Opaque) ContentID() string {
	return b.Content
}

// IsInteractive reports whether b has a control surface.
func IsInteractive(b Backend) bool {
	_, ok := b.(Interactive)
	return ok
}

// ResolveContent returns the content id for track and whether it plays on an
// interactive backend.
func ResolveContent(track *model.TrackEntry) (string, bool, error) {
	id, ok := locator.ContentID(track.SourceKind, track.Locator)
	if !ok {
		return "", false, fmt.Errorf("no content id in locator %q", track.Locator)
	}
	return id, track.SourceKind.Interactive(), nil
}

// Open builds the backend for track. Interactive tracks get a fresh surface
// from provider; emit receives that surface's events.
func Open(track *model.TrackEntry, provider Provider, emit func(Event)) (Backend, error) {
	id, interactive, err := ResolveContent(track)
	if err != nil {
		return nil, err
	}

	if !interactive {
		embed, ok := locator.EmbedURL(track.SourceKind, track.Locator)
		if !ok {
			return nil, fmt.Errorf("no embed url for %q", track.Locator)
		}
		return Opaque{EmbedURL: embed, Content: id}, nil
	}

	surface, err := provider.Open(id, emit)
	if err != nil {
		return nil, fmt.Errorf("failed to open player: %w", err)
	}
	return Interactive{Surface: surface, Content: id}, nil
}
