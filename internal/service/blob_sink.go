package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// BlobSink overwrites latest/{symbol}.json in object storage, at most once
// per MinInterval per symbol. It keeps no history.
type BlobSink struct {
	writer      domain.BlobWriter
	minInterval time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewBlobSink(writer domain.BlobWriter, minInterval time.Duration, logger *slog.Logger) *BlobSink {
	return &BlobSink{
		writer:      writer,
		minInterval: minInterval,
		logger:      logger.With(slog.String("component", "blob_sink")),
		last:        make(map[string]time.Time),
		now:         time.Now,
	}
}

func (b *BlobSink) Name() string { return "blob" }

// LatestPath returns the object path of symbol's snapshot.
func LatestPath(symbol string) string {
	return "latest/" + symbol + ".json"
}

func (b *BlobSink) Emit(ctx context.Context, symbol string, snap domain.MarketSnapshot) error {
	now := b.now()
	b.mu.Lock()
	due := now.Sub(b.last[symbol]) >= b.minInterval
	b.mu.Unlock()
	if !due {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("blob_sink: marshal %q: %w", symbol, err)
	}
	if err := b.writer.Put(ctx, LatestPath(symbol), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("blob_sink: %w", err)
	}

	b.mu.Lock()
	b.last[symbol] = now
	b.mu.Unlock()
	b.logger.DebugContext(ctx, "snapshot uploaded", slog.String("symbol", symbol), slog.Int("bytes", len(data)))
	return nil
}

var _ domain.Sink = (*BlobSink)(nil)
