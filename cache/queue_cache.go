package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"VibeQ/model"

	"github.com/go-redis/redis/v8"
)

const (
	queueListKey    = "vibeq:queue:list" // String: JSON array, newest first
	queueGenKey     = "vibeq:queue:gen"  // String: counter bumped by every Invalidate
	defaultQueueTTL = 30 * time.Second
)

// fillScript stores the listing only if the generation is still the one the
// reader saw before querying the database.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[1])
redis.call('DEL', KEYS[2])
return 1
`)

// QueueCache caches the newest-first queue listing. Writers invalidate it;
// readers repopulate it on a miss, but only when no write happened between
// their Generation call and their Fill.
type QueueCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueueCache creates a QueueCache. A non-positive ttl uses the default.
func NewQueueCache(client *redis.Client, ttl time.Duration) *QueueCache {
	if ttl <= 0 {
		ttl = defaultQueueTTL
	}
	return &QueueCache{client: client, ttl: ttl}
}

// Get returns the cached listing and whether it was present.
func (c *QueueCache) Get(ctx context.Context) ([]*model.TrackEntry, bool, error) {
	if c.client == nil {
		return nil, false, fmt.Errorf("Redis client not initialized")
	}

	data, err := c.client.Get(ctx, queueListKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get queue cache: %w", err)
	}

	var tracks []*model.TrackEntry
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal queue cache: %w", err)
	}
	return tracks, true, nil
}

// Generation returns the current invalidation counter. Read it before
// loading the listing that will be passed to Fill.
func (c *QueueCache) Generation(ctx context.Context) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	gen, err := c.client.Get(ctx, queueGenKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get queue cache generation: %w", err)
	}
	return gen, nil
}

// Fill stores tracks if the generation still equals gen. It reports whether
// the listing was stored.
func (c *QueueCache) Fill(ctx context.Context, gen int64, tracks []*model.TrackEntry) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	if tracks == nil {
		tracks = []*model.TrackEntry{}
	}

	data, err := json.Marshal(tracks)
	if err != nil {
		return false, fmt.Errorf("failed to marshal queue cache: %w", err)
	}
	stored, err := fillScript.Run(ctx, c.client,
		[]string{queueGenKey, queueListKey},
		strconv.FormatInt(gen, 10), string(data), c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to fill queue cache: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the listing and bumps the generation so that fills
// started before this call are discarded.
func (c *QueueCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return invalidateScript.Run(ctx, c.client, []string{queueGenKey, queueListKey}).Err()
}
