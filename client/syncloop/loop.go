// Package syncloop keeps a client's view of the shared queue and the
// now-playing pointer in step with the server.
//
// The server is polled on a fixed interval. Local mutations are applied to
// the view before the request is sent and rolled back if it fails.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VibeQ/client/api"
	"VibeQ/logger"
	"VibeQ/model"

	"github.com/gorilla/websocket"
)

// LocalDisplayName is shown on optimistic entries until the server copy
// replaces them.
const LocalDisplayName = "You"

// Remote is the part of the server API the loop needs. *api.Client
// implements it.
type Remote interface {
	ListTracks(ctx context.Context) ([]*model.TrackEntry, error)
	NowPlaying(ctx context.Context) (*string, error)
	AppendTrack(ctx context.Context, req api.AppendRequest) (*model.TrackEntry, error)
	RemoveTrack(ctx context.Context, id, identity string) error
	SetNowPlaying(ctx context.Context, trackID string) error
}

// View is what the client currently believes. Confirmed is false while it
// contains local changes the server has not acknowledged yet.
type View struct {
	Tracks     []*model.TrackEntry
	NowPlaying *string
	Confirmed  bool
}

func (v View) clone() View {
	out := View{Confirmed: v.Confirmed}
	if v.Tracks != nil {
		out.Tracks = make([]*model.TrackEntry, len(v.Tracks))
		copy(out.Tracks, v.Tracks)
	}
	if v.NowPlaying != nil {
		id := *v.NowPlaying
		out.NowPlaying = &id
	}
	return out
}

// Mutation is one optimistic change. Apply edits a copy of the view; Commit
// sends the change to the server.
type Mutation struct {
	Name   string
	Apply  func(View) View
	Commit func(ctx context.Context) error
}

// Loop owns the view for one client.
type Loop struct {
	remote   Remote
	identity string
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	view    View
	epoch   uint64
	pending int

	notifyMu    sync.Mutex
	subscribers []func(View)
}

// New creates a loop acting as identity. interval <= 0 means three seconds.
func New(remote Remote, identity string, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Loop{
		remote:   remote,
		identity: identity,
		interval: interval,
		now:      time.Now,
		view:     View{Tracks: []*model.TrackEntry{}},
	}
}

// WithClock replaces the clock used for temporary ids.
func (l *Loop) WithClock(now func() time.Time) *Loop {
	l.now = now
	return l
}

// Identity is the token mutations are made with.
func (l *Loop) Identity() string {
	return l.identity
}

// View returns a copy of the current view.
func (l *Loop) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.clone()
}

// Subscribe registers fn to receive every view change. fn is called
// synchronously and must not call back into the loop's mutators.
func (l *Loop) Subscribe(fn func(View)) {
	l.notifyMu.Lock()
	l.subscribers = append(l.subscribers, fn)
	l.notifyMu.Unlock()
}

func (l *Loop) notify() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	v := l.View()
	for _, fn := range l.subscribers {
		fn(v)
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
// Failed refreshes are retried on the next tick.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Refresh(ctx); err != nil {
		logger.Warn("Sync refresh failed", logger.ErrorField(err))
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				logger.Warn("Sync refresh failed", logger.ErrorField(err))
			}
		}
	}
}

// Refresh fetches the queue and the pointer. Each part replaces the cached
// value only when its own fetch succeeded. A result is thrown away when a
// mutation was in flight at any point during the fetch.
func (l *Loop) Refresh(ctx context.Context) error {
	l.mu.Lock()
	startEpoch := l.epoch
	l.mu.Unlock()

	tracks, tracksErr := l.remote.ListTracks(ctx)
	pointer, pointerErr := l.remote.NowPlaying(ctx)

	l.mu.Lock()
	if l.pending > 0 || l.epoch != startEpoch {
		l.mu.Unlock()
		logger.Debug("Discarding refresh overlapping a mutation")
		return nil
	}
	changed := false
	if tracksErr == nil {
		if tracks == nil {
			tracks = []*model.TrackEntry{}
		}
		l.view.Tracks = tracks
		l.view.Confirmed = true
		changed = true
	}
	if pointerErr == nil {
		l.view.NowPlaying = pointer
		changed = true
	}
	l.mu.Unlock()

	if changed {
		l.notify()
	}

	var err error
	if tracksErr != nil {
		err = fmt.Errorf("list tracks: %w", tracksErr)
	}
	if pointerErr != nil {
		err = errors.Join(err, fmt.Errorf("now playing: %w", pointerErr))
	}
	return err
}

// Mutate applies m locally, commits it and either refreshes on success or
// restores the view exactly as it was before Apply.
func (l *Loop) Mutate(ctx context.Context, m Mutation) error {
	l.mu.Lock()
	snapshot := l.view.clone()
	l.epoch++
	l.pending++
	l.view = m.Apply(l.view.clone())
	l.view.Confirmed = false
	l.mu.Unlock()
	l.notify()

	err := m.Commit(ctx)

	l.mu.Lock()
	l.pending--
	if err != nil {
		l.view = snapshot
	}
	l.mu.Unlock()

	if err != nil {
		logger.Warn("Mutation failed, rolled back",
			logger.String("mutation", m.Name),
			logger.ErrorField(err))
		l.notify()
		return err
	}

	if rerr := l.Refresh(ctx); rerr != nil {
		logger.Warn("Refresh after mutation failed",
			logger.String("mutation", m.Name),
			logger.ErrorField(rerr))
	}
	return nil
}

// Append adds a track. The view shows a temporary entry owned by this client
// until the server's copy arrives.
func (l *Loop) Append(ctx context.Context, req api.AppendRequest) (*model.TrackEntry, error) {
	req.Identity = l.identity
	now := l.now()
	temp := &model.TrackEntry{
		ID:               fmt.Sprintf("temp-%d", now.UnixMilli()),
		Title:            req.Title,
		Performer:        req.Performer,
		SourceKind:       req.SourceKind,
		Locator:          req.Locator,
		Thumbnail:        req.Thumbnail,
		DurationSeconds:  req.DurationSeconds,
		OwnerIdentity:    l.identity,
		OwnerDisplayName: LocalDisplayName,
		CreatedAt:        now,
	}

	var created *model.TrackEntry
	err := l.Mutate(ctx, Mutation{
		Name: "append",
		Apply: func(v View) View {
			v.Tracks = append([]*model.TrackEntry{temp}, v.Tracks...)
			return v
		},
		Commit: func(ctx context.Context) error {
			var err error
			created, err = l.remote.AppendTrack(ctx, req)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Remove deletes one of this client's tracks.
func (l *Loop) Remove(ctx context.Context, id string) error {
	return l.Mutate(ctx, Mutation{
		Name: "remove",
		Apply: func(v View) View {
			kept := make([]*model.TrackEntry, 0, len(v.Tracks))
			for _, t := range v.Tracks {
				if t.ID != id {
					kept = append(kept, t)
				}
			}
			v.Tracks = kept
			return v
		},
		Commit: func(ctx context.Context) error {
			return l.remote.RemoveTrack(ctx, id, l.identity)
		},
	})
}

// SetNowPlaying moves the shared pointer.
func (l *Loop) SetNowPlaying(ctx context.Context, trackID string) error {
	return l.Mutate(ctx, Mutation{
		Name: "now-playing",
		Apply: func(v View) View {
			v.NowPlaying = &trackID
			return v
		},
		Commit: func(ctx context.Context) error {
			return l.remote.SetNowPlaying(ctx, trackID)
		},
	})
}

// Watch listens on the server's event socket and refreshes on every event.
// Dropped connections are redialed after one interval. Polling keeps running
// regardless, so Watch only shortens the time to see a change.
func (l *Loop) Watch(ctx context.Context, wsURL string) error {
	for {
		if err := l.watchOnce(ctx, wsURL); err != nil && ctx.Err() == nil {
			logger.Warn("Event stream disconnected",
				logger.String("url", wsURL),
				logger.ErrorField(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

func (l *Loop) watchOnce(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	logger.Info("Event stream connected", logger.String("url", wsURL))
	for {
		var event model.Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		logger.Debug("Event received",
			logger.String("type", string(event.Type)),
			logger.String("trackId", event.TrackID))
		if err := l.Refresh(ctx); err != nil {
			logger.Warn("Sync refresh failed", logger.ErrorField(err))
		}
	}
}
