package media

import (
	"errors"
	"sync"
	"time"
)

var errDestroyed = errors.New("player destroyed")

// SimulatedProvider plays nothing but keeps time like a real player. It is
// used by the headless player command and in tests.
type SimulatedProvider struct {
	// Duration of every piece of content. Defaults to three minutes.
	Duration time.Duration
	// LoadDelay before EventReady is raised.
	LoadDelay time.Duration
}

// Open implements Provider.
func (p *SimulatedProvider) Open(contentID string, emit func(Event)) (ControlSurface, error) {
	duration := p.Duration
	if duration <= 0 {
		duration = 3 * time.Minute
	}
	s := &simulatedSurface{
		emit:     emit,
		content:  contentID,
		duration: duration,
		volume:   100,
	}
	s.readyTimer = time.AfterFunc(p.LoadDelay, func() {
		s.mu.Lock()
		destroyed := s.destroyed
		s.mu.Unlock()
		if !destroyed {
			emit(EventReady)
		}
	})
	return s, nil
}

type simulatedSurface struct {
	mu        sync.Mutex
	emit      func(Event)
	content   string
	duration  time.Duration
	position  time.Duration
	startedAt time.Time
	playing   bool
	volume    int
	muted     bool
	destroyed bool

	readyTimer *time.Timer
	endTimer   *time.Timer
}

// elapsed requires s.mu.
func (s *simulatedSurface) elapsed() time.Duration {
	pos := s.position
	if s.playing {
		pos += time.Since(s.startedAt)
	}
	if pos > s.duration {
		pos = s.duration
	}
	return pos
}

// schedule requires s.mu.
func (s *simulatedSurface) schedule() {
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
	if !s.playing {
		return
	}
	content := s.content
	s.endTimer = time.AfterFunc(s.duration-s.position, func() {
		s.mu.Lock()
		if s.destroyed || !s.playing || s.content != content {
			s.mu.Unlock()
			return
		}
		s.playing = false
		s.position = s.duration
		s.mu.Unlock()
		s.emit(EventEnded)
	})
}

func (s *simulatedSurface) Load(contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return errDestroyed
	}
	s.content = contentID
	s.position = 0
	s.playing = false
	s.schedule()
	return nil
}

func (s *simulatedSurface) Play() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errDestroyed
	}
	if s.position >= s.duration {
		s.position = 0
	}
	if !s.playing {
		s.playing = true
		s.startedAt = time.Now()
		s.schedule()
	}
	s.mu.Unlock()
	s.emit(EventPlaying)
	return nil
}

func (s *simulatedSurface) Pause() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errDestroyed
	}
	wasPlaying := s.playing
	if s.playing {
		s.position = s.elapsed()
		s.playing = false
		s.schedule()
	}
	s.mu.Unlock()
	if wasPlaying {
		s.emit(EventPaused)
	}
	return nil
}

func (s *simulatedSurface) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return errDestroyed
	}
	pos := time.Duration(seconds * float64(time.Second))
	if pos < 0 {
		pos = 0
	}
	if pos > s.duration {
		pos = s.duration
	}
	s.position = pos
	if s.playing {
		s.startedAt = time.Now()
	}
	s.schedule()
	return nil
}

func (s *simulatedSurface) SetVolume(volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return errDestroyed
	}
	s.volume = volume
	return nil
}

func (s *simulatedSurface) Mute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = true
	return nil
}

func (s *simulatedSurface) Unmute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = false
	return nil
}

func (s *simulatedSurface) CurrentTime() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0, errDestroyed
	}
	return s.elapsed().Seconds(), nil
}

func (s *simulatedSurface) Duration() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0, errDestroyed
	}
	return s.duration.Seconds(), nil
}

func (s *simulatedSurface) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.playing = false
	s.readyTimer.Stop()
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
	return nil
}
