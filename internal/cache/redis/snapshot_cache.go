package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache. Each symbol's encoded
// snapshot is a plain string at "snapshot:{symbol}" that expires after the
// given TTL, so a stopped aggregator does not leave stale books behind.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(symbol string) string {
	return "snapshot:" + symbol
}

// Set stores payload for symbol. A zero ttl keeps it until overwritten.
func (sc *SnapshotCache) Set(ctx context.Context, symbol string, payload []byte, ttl time.Duration) error {
	if err := sc.rdb.Set(ctx, snapshotKey(symbol), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", symbol, err)
	}
	return nil
}

// Get returns the cached payload of symbol, or domain.ErrNotFound.
func (sc *SnapshotCache) Get(ctx context.Context, symbol string) ([]byte, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: get snapshot %s: %w", symbol, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	return data, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
