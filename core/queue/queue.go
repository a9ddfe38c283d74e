// Package queue implements the shared, rate-limited track queue.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"VibeQ/core/errs"
	"VibeQ/core/identity"
	"VibeQ/core/locator"
	"VibeQ/core/ratelimit"
	"VibeQ/logger"
	"VibeQ/model"
	"VibeQ/repository"

	"github.com/google/uuid"
)

// Cache holds the newest-first listing between writes. Fill must not store
// the listing if Invalidate ran after Generation returned gen.
type Cache interface {
	Get(ctx context.Context) ([]*model.TrackEntry, bool, error)
	Generation(ctx context.Context) (int64, error)
	Fill(ctx context.Context, gen int64, tracks []*model.TrackEntry) (bool, error)
	Invalidate(ctx context.Context) error
}

// Publisher announces changes to connected clients.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// Metrics receives the outcome of every mutation.
type Metrics interface {
	ObserveAppend(result string)
	ObserveRemove(result string)
}

// Mutation outcomes reported to Metrics.
const (
	ResultOK          = "ok"
	ResultRateLimited = "rate_limited"
	ResultInvalid     = "invalid"
	ResultForbidden   = "forbidden"
	ResultNotFound    = "not_found"
	ResultError       = "error"
)

// AppendRequest is what a participant submits.
type AppendRequest struct {
	Title           string
	Performer       string
	SourceKind      model.SourceKind
	Locator         string
	Thumbnail       string
	DurationSeconds *int
	Identity        string
}

// Service owns the queue. Only Append and Remove change it.
type Service struct {
	tracks     repository.TrackRepository
	identities repository.IdentityRepository
	limiter    *ratelimit.Limiter
	locker     ratelimit.Locker

	cache     Cache
	publisher Publisher
	metrics   Metrics

	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocker replaces the in-process identity lock, e.g. with a Redis lock
// shared by several instances.
func WithLocker(l ratelimit.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator replaces the uuid generator, for tests.
func WithIDGenerator(gen func() string) Option { return func(s *Service) { s.newID = gen } }

// NewService wires a queue service. Without WithLocker appends are
// serialized per identity inside this process only.
func NewService(tracks repository.TrackRepository, identities repository.IdentityRepository, policy ratelimit.Policy, opts ...Option) *Service {
	s := &Service{
		tracks:     tracks,
		identities: identities,
		limiter:    ratelimit.NewLimiter(policy, identities, tracks),
		locker:     ratelimit.NewLocalLocker(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates, rate-limits and stores a new entry. The rate check, the
// insert and the lastAppendAt update run under a per-identity lock.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*model.TrackEntry, error) {
	if err := validateAppend(&req); err != nil {
		s.observeAppend(ResultInvalid)
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, req.Identity)
	if err != nil {
		s.observeAppend(ResultError)
		return nil, fmt.Errorf("failed to lock identity: %w", err)
	}
	defer unlock()

	now := s.now()
	decision, err := s.limiter.Check(ctx, req.Identity, now)
	if err != nil {
		s.observeAppend(ResultError)
		return nil, err
	}
	if !decision.Allowed {
		s.observeAppend(ResultRateLimited)
		logger.Info("append rate limited",
			logger.String("identity", req.Identity),
			logger.Int("waitMinutes", decision.WaitMinutes))
		return nil, decision.Err()
	}

	record, err := s.identities.Upsert(ctx, &model.IdentityRecord{
		Identity:    req.Identity,
		DisplayName: identity.ResolveDisplayName(req.Identity),
		CreatedAt:   now,
	})
	if err != nil {
		s.observeAppend(ResultError)
		return nil, fmt.Errorf("failed to upsert identity: %w", err)
	}

	entry := &model.TrackEntry{
		ID:               s.newID(),
		Title:            req.Title,
		Performer:        req.Performer,
		SourceKind:       req.SourceKind,
		Locator:          req.Locator,
		Thumbnail:        req.Thumbnail,
		DurationSeconds:  req.DurationSeconds,
		OwnerIdentity:    req.Identity,
		OwnerDisplayName: record.DisplayName,
		CreatedAt:        now,
	}
	if err := s.tracks.Insert(ctx, entry); err != nil {
		s.observeAppend(ResultError)
		return nil, fmt.Errorf("failed to insert track: %w", err)
	}

	if err := s.identities.TouchLastAppend(ctx, req.Identity, now); err != nil {
		// the entry is stored, so the append still succeeds
		logger.Error("failed to record last append",
			logger.String("identity", req.Identity),
			logger.ErrorField(err))
	}

	s.afterWrite(ctx, model.EventTrackAdded, entry.ID)
	s.observeAppend(ResultOK)
	logger.Info("track appended",
		logger.String("id", entry.ID),
		logger.String("identity", req.Identity),
		logger.String("sourceKind", string(entry.SourceKind)))
	return entry, nil
}

// List returns every entry, newest first.
func (s *Service) List(ctx context.Context) ([]*model.TrackEntry, error) {
	fill := false
	var gen int64
	if s.cache != nil {
		tracks, hit, err := s.cache.Get(ctx)
		if err != nil {
			logger.Warn("queue cache read failed", logger.ErrorField(err))
		} else if hit {
			return tracks, nil
		}
		if gen, err = s.cache.Generation(ctx); err != nil {
			logger.Warn("queue cache generation read failed", logger.ErrorField(err))
		} else {
			fill = true
		}
	}

	tracks, err := s.tracks.ListByRecency(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	if tracks == nil {
		tracks = []*model.TrackEntry{}
	}

	if fill {
		stored, err := s.cache.Fill(ctx, gen, tracks)
		if err != nil {
			logger.Warn("queue cache write failed", logger.ErrorField(err))
		} else if !stored {
			logger.Debug("queue cache fill skipped after concurrent write")
		}
	}
	return tracks, nil
}

// Remove deletes id if requester owns it. The now-playing pointer is left
// alone even if it points at the removed entry.
func (s *Service) Remove(ctx context.Context, id, requester string) error {
	if err := validateIdentity(requester); err != nil {
		s.observeRemove(ResultInvalid)
		return err
	}

	track, err := s.tracks.FindByID(ctx, id)
	if err != nil {
		s.observeRemove(ResultError)
		return fmt.Errorf("failed to find track: %w", err)
	}
	if track == nil {
		s.observeRemove(ResultNotFound)
		return errs.ErrNotFound
	}
	if track.OwnerIdentity != requester {
		s.observeRemove(ResultForbidden)
		return errs.ErrForbidden
	}

	deleted, err := s.tracks.DeleteByID(ctx, id)
	if err != nil {
		s.observeRemove(ResultError)
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if !deleted {
		// a concurrent remove got there first
		s.observeRemove(ResultNotFound)
		return errs.ErrNotFound
	}

	s.afterWrite(ctx, model.EventTrackRemoved, id)
	s.observeRemove(ResultOK)
	logger.Info("track removed", logger.String("id", id), logger.String("identity", requester))
	return nil
}

// Oldest returns a copy of a newest-first listing in playback order.
func Oldest(tracks []*model.TrackEntry) []*model.TrackEntry {
	return model.OldestFirst(tracks)
}

func (s *Service) afterWrite(ctx context.Context, kind model.EventType, trackID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logger.Warn("queue cache invalidation failed", logger.ErrorField(err))
		}
	}
	if s.publisher != nil {
		event := model.Event{Type: kind, TrackID: trackID, Timestamp: s.now().UnixMilli()}
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish event",
				logger.String("type", string(kind)),
				logger.ErrorField(err))
		}
	}
}

func (s *Service) observeAppend(result string) {
	if s.metrics != nil {
		s.metrics.ObserveAppend(result)
	}
}

func (s *Service) observeRemove(result string) {
	if s.metrics != nil {
		s.metrics.ObserveRemove(result)
	}
}

func validateAppend(req *AppendRequest) error {
	req.Identity = strings.TrimSpace(req.Identity)
	req.Title = strings.TrimSpace(req.Title)
	req.Locator = strings.TrimSpace(req.Locator)

	if err := validateIdentity(req.Identity); err != nil {
		return err
	}
	if req.Title == "" {
		return errs.Validation("title is required")
	}
	if req.Locator == "" {
		return errs.Validation("locator is required")
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		return errs.Validation("durationSeconds must not be negative")
	}
	return locator.Validate(req.SourceKind, req.Locator)
}

func validateIdentity(token string) error {
	if strings.TrimSpace(token) == "" {
		return errs.Validation("identity is required")
	}
	if len(token) > model.MaxIdentityLength {
		return errs.Validation("identity must be at most %d bytes", model.MaxIdentityLength)
	}
	return nil
}
