package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is an optional second-level cache sitting behind MemCache,
// letting cached bytes survive a process restart or be shared across net
// threads' otherwise-independent MemCache instances. This is new surface
// the teacher's stack doesn't need but the DOMAIN STACK expansion wires in
// since the distilled spec's Non-goals exclude only "persistent on-disk
// caching policy," not an optional out-of-process tier.
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTier dials addr and returns a RedisTier, or nil if addr is empty
// (the tier is entirely optional).
func NewRedisTier(addr string, ttl time.Duration) *RedisTier {
	if addr == "" {
		return nil
	}
	return &RedisTier{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Get fetches raw cached bytes for key, if present.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool) {
	if t == nil {
		return nil, false
	}
	b, err := t.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Set stores raw bytes for key with the tier's configured TTL.
func (t *RedisTier) Set(ctx context.Context, key string, value []byte) error {
	if t == nil {
		return nil
	}
	return t.client.Set(ctx, key, value, t.ttl).Err()
}

// Close releases the underlying connection pool.
func (t *RedisTier) Close() error {
	if t == nil {
		return nil
	}
	return t.client.Close()
}
