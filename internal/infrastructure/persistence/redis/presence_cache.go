package redis

import (
	"context"
	"errors"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
	"github.com/rollcall-hub/rollcall/pkg/retry"
)

// Key names and TTLs for presence caching.
const (
	// keyPresencePrefix is the prefix for per-session snapshot keys.
	keyPresencePrefix = "presence:session:"

	// TTLPresenceSnapshot keeps a snapshot around for the length of a long
	// class plus slack. A closed session's final snapshot expires on its own.
	TTLPresenceSnapshot = 6 * time.Hour
)

// PresenceCache implements attendance.SnapshotCache on Redis. The engine
// overwrites the session snapshot after every attendance transition so
// dashboards can poll it without touching the engine.
type PresenceCache struct {
	cache   *Cache
	retrier *retry.Retrier
}

// NewPresenceCache wraps a cache client.
func NewPresenceCache(cache *Cache) *PresenceCache {
	return &PresenceCache{
		cache:   cache,
		retrier: retry.CacheRetrier(),
	}
}

func presenceKey(session shared.SessionID) string {
	return keyPresencePrefix + string(session)
}

// Publish implements attendance.SnapshotCache. Failures are retried briefly;
// the cache is best-effort and callers treat a final failure as non-fatal.
func (p *PresenceCache) Publish(ctx context.Context, snapshot attendance.Snapshot) error {
	return p.retrier.Do(ctx, func(ctx context.Context) error {
		err := p.cache.Set(ctx, presenceKey(snapshot.Session), snapshot, TTLPresenceSnapshot)
		if err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

// Load implements attendance.SnapshotCache.
func (p *PresenceCache) Load(ctx context.Context, session shared.SessionID) (attendance.Snapshot, bool, error) {
	var snapshot attendance.Snapshot
	err := p.cache.Get(ctx, presenceKey(session), &snapshot)
	if errors.Is(err, ErrCacheMiss) {
		return attendance.Snapshot{}, false, nil
	}
	if err != nil {
		return attendance.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

// Invalidate implements attendance.SnapshotCache.
func (p *PresenceCache) Invalidate(ctx context.Context, session shared.SessionID) error {
	return p.cache.Delete(ctx, presenceKey(session))
}
