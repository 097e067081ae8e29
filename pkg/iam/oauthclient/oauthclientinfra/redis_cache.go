package oauthclientinfra

import (
	"context"
	"encoding/json"
	"time"

	"github.com/identra-io/identra/pkg/iam/oauthclient"
	"github.com/identra-io/identra/pkg/logx"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "oauthclient:descriptor:"

// RedisDescriptorCache is the collaborator-owned cache in front of the
// Materializer. Cache misses and redis failures both fall through to the
// Materializer; staleness is bounded by the TTL and cut short by the
// invalidation hook.
type RedisDescriptorCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDescriptorCache creates a descriptor cache with the given TTL.
func NewRedisDescriptorCache(rdb *redis.Client, ttl time.Duration) *RedisDescriptorCache {
	return &RedisDescriptorCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached descriptor for a client id, if present.
func (c *RedisDescriptorCache) Get(ctx context.Context, clientID string) (*oauthclient.ClientDescriptor, bool) {
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+clientID).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.WithError(err).WithField("client_id", clientID).Warn("descriptor cache read failed")
		}
		return nil, false
	}

	var d oauthclient.ClientDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		logx.WithError(err).WithField("client_id", clientID).Warn("descriptor cache entry corrupt")
		return nil, false
	}

	return &d, true
}

// Set stores a descriptor under its client id.
func (c *RedisDescriptorCache) Set(ctx context.Context, d *oauthclient.ClientDescriptor) {
	raw, err := json.Marshal(d)
	if err != nil {
		logx.WithError(err).WithField("client_id", d.ClientID).Warn("descriptor cache encode failed")
		return
	}

	if err := c.rdb.Set(ctx, cacheKeyPrefix+d.ClientID, raw, c.ttl).Err(); err != nil {
		logx.WithError(err).WithField("client_id", d.ClientID).Warn("descriptor cache write failed")
	}
}

// Invalidate drops the cached descriptor for a client id. Wire this to the
// Materializer's invalidation hook.
func (c *RedisDescriptorCache) Invalidate(ctx context.Context, clientID string) {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+clientID).Err(); err != nil {
		logx.WithError(err).WithField("client_id", clientID).Warn("descriptor cache invalidation failed")
	}
}
