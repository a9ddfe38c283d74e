// Package ratelimit gates queue appends per identity.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"VibeQ/core/errs"
	"VibeQ/model"
)

// Policy allows at most MaxAppends appends inside any Window, measured from
// the identity's most recent append.
type Policy struct {
	Window     time.Duration
	MaxAppends int
}

// DefaultPolicy is two appends per five minutes.
var DefaultPolicy = Policy{Window: 5 * time.Minute, MaxAppends: 2}

// Decision is the outcome of a check.
type Decision struct {
	Allowed     bool
	WaitMinutes int
}

// Err returns nil for an allowed decision and a *errs.RateLimitError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &errs.RateLimitError{WaitMinutes: d.WaitMinutes}
}

// IdentityFinder looks up the identity record, returning nil when absent.
type IdentityFinder interface {
	Find(ctx context.Context, identity string) (*model.IdentityRecord, error)
}

// TrackCounter counts entries created by an identity at or after since.
type TrackCounter interface {
	CountByOwnerSince(ctx context.Context, identity string, since time.Time) (int64, error)
}

// Limiter is a pure read decision; the caller records the append afterwards.
type Limiter struct {
	policy     Policy
	identities IdentityFinder
	tracks     TrackCounter
}

// NewLimiter creates a limiter. Zero policy fields fall back to DefaultPolicy.
func NewLimiter(policy Policy, identities IdentityFinder, tracks TrackCounter) *Limiter {
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy.Window
	}
	if policy.MaxAppends <= 0 {
		policy.MaxAppends = DefaultPolicy.MaxAppends
	}
	return &Limiter{policy: policy, identities: identities, tracks: tracks}
}

// Policy returns the effective policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Check decides whether identity may append at now.
func (l *Limiter) Check(ctx context.Context, identity string, now time.Time) (Decision, error) {
	record, err := l.identities.Find(ctx, identity)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load identity: %w", err)
	}
	if record == nil || record.LastAppendAt == nil {
		return Decision{Allowed: true}, nil
	}

	since := now.Sub(*record.LastAppendAt)
	if since >= l.policy.Window {
		return Decision{Allowed: true}, nil
	}

	count, err := l.tracks.CountByOwnerSince(ctx, identity, now.Add(-l.policy.Window))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count recent appends: %w", err)
	}
	if count < int64(l.policy.MaxAppends) {
		return Decision{Allowed: true}, nil
	}

	return Decision{Allowed: false, WaitMinutes: waitMinutes(l.policy.Window, since)}, nil
}

func waitMinutes(window, since time.Duration) int {
	wait := int(math.Ceil(window.Minutes() - since.Minutes()))
	if wait < 1 {
		wait = 1
	}
	return wait
}
