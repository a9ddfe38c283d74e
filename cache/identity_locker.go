package cache

import (
	"context"
	"fmt"
	"time"

	"VibeQ/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	appendLockKey      = "vibeq:lock:append:%s" // String: holder token
	appendLockTTL      = 10 * time.Second
	appendLockInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdentityLocker serializes appends per identity across server instances.
type IdentityLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdentityLocker(client *redis.Client) *IdentityLocker {
	return &IdentityLocker{client: client, ttl: appendLockTTL}
}

// Lock polls until the lock is acquired or ctx is done. The lock expires on
// its own after the TTL if the holder dies.
func (l *IdentityLocker) Lock(ctx context.Context, identity string) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(appendLockKey, identity)
	token := uuid.NewString()

	ticker := time.NewTicker(appendLockInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire append lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// the request context may already be cancelled here
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			logger.Warn("failed to release append lock",
				logger.String("identity", identity),
				logger.ErrorField(err))
		}
	}, nil
}
