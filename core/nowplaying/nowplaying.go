// Package nowplaying manages the single shared "now playing" pointer.
package nowplaying

import (
	"context"
	"fmt"
	"strings"
	"time"

	"VibeQ/core/errs"
	"VibeQ/logger"
	"VibeQ/model"
	"VibeQ/repository"
)

// Publisher announces pointer changes.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// Service reads and writes the pointer. Writes are last-writer-wins with no
// version check.
type Service struct {
	pointer   repository.PointerRepository
	tracks    repository.TrackRepository
	publisher Publisher
	onWrite   func()
}

func NewService(pointer repository.PointerRepository, tracks repository.TrackRepository) *Service {
	return &Service{pointer: pointer, tracks: tracks}
}

// WithPublisher sets the publisher used after every write.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// OnWrite registers a hook run after every successful write.
func (s *Service) OnWrite(fn func()) *Service {
	s.onWrite = fn
	return s
}

// Get returns the current track, or nil when the pointer is unset or points
// at an entry that no longer exists.
func (s *Service) Get(ctx context.Context) (*model.TrackEntry, error) {
	id, err := s.pointer.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pointer: %w", err)
	}
	if id == nil || *id == "" {
		return nil, nil
	}

	track, err := s.tracks.FindByID(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pointer: %w", err)
	}
	return track, nil
}

// Set points at trackID, which must exist.
func (s *Service) Set(ctx context.Context, trackID string) (*model.TrackEntry, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, errs.Validation("trackId is required")
	}

	track, err := s.tracks.FindByID(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to find track: %w", err)
	}
	if track == nil {
		return nil, errs.ErrNotFound
	}

	if err := s.pointer.Set(ctx, trackID); err != nil {
		return nil, fmt.Errorf("failed to write pointer: %w", err)
	}

	if s.onWrite != nil {
		s.onWrite()
	}
	if s.publisher != nil {
		event := model.Event{Type: model.EventPointerChanged, TrackID: trackID, Timestamp: time.Now().UnixMilli()}
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish pointer change", logger.ErrorField(err))
		}
	}

	logger.Debug("now playing updated", logger.String("trackId", trackID))
	return track, nil
}
