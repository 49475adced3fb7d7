package domain

import (
	"context"
	"time"
)

// SnapshotCache keeps the latest encoded snapshot per symbol.
type SnapshotCache interface {
	Set(ctx context.Context, symbol string, payload []byte, ttl time.Duration) error
	Get(ctx context.Context, symbol string) ([]byte, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out and blocking stream reads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]StreamMessage, error)
}
