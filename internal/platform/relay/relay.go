// Package relay consumes book updates that an upstream normalizer appends
// to a Redis stream. Deltas are additive.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/source"
)

// Venue is the configuration name of this adapter.
const Venue = "relay"

// Message is one stream entry.
type Message struct {
	Type string     `json:"type"` // "snapshot" or "delta"
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	Ts   int64      `json:"ts"`
}

// Stream returns the stream key of instrument.
func Stream(instrument string) string {
	return "relay:" + instrument
}

// Feed reads relay:{instrument} with blocking XREAD calls.
type Feed struct {
	bus    domain.SignalBus
	batch  int
	block  time.Duration
	logger *slog.Logger
}

func NewFeed(bus domain.SignalBus, block time.Duration, logger *slog.Logger) *Feed {
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Feed{
		bus:    bus,
		batch:  100,
		block:  block,
		logger: logger.With(slog.String("component", "relay")),
	}
}

func (f *Feed) Venue() string { return Venue }

// Stream reads entries appended after the call starts. Earlier entries are
// never replayed; a new session waits for the next snapshot.
func (f *Feed) Stream(ctx context.Context, instrument string, emit func(book.Update)) error {
	key := Stream(instrument)
	lastID := "$"
	f.logger.Debug("reading stream", slog.String("stream", key))
	for {
		msgs, err := f.bus.StreamRead(ctx, key, lastID, f.batch, f.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay: read %s: %w", key, err)
		}
		for _, m := range msgs {
			lastID = m.ID
			u, err := Decode(m.Payload)
			if err != nil {
				// Deltas are additive, so a lost entry leaves the ladder
				// wrong until the next snapshot.
				return fmt.Errorf("relay: %s entry %s: %w", key, m.ID, err)
			}
			emit(u)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Decode parses one stream payload.
func Decode(payload []byte) (book.Update, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return book.Update{}, fmt.Errorf("relay: decode: %w", err)
	}

	var u book.Update
	switch m.Type {
	case "snapshot":
		u.Kind = book.Snapshot
	case "delta":
		u.Kind = book.Incremental
		u.Mode = book.Delta
	default:
		return book.Update{}, fmt.Errorf("relay: unknown message type %q", m.Type)
	}

	bids, err := book.ParsePairs(domain.Bid, m.Bids)
	if err != nil {
		return book.Update{}, fmt.Errorf("relay: %w", err)
	}
	asks, err := book.ParsePairs(domain.Ask, m.Asks)
	if err != nil {
		return book.Update{}, fmt.Errorf("relay: %w", err)
	}
	u.Levels = append(bids, asks...)
	if m.Ts > 0 {
		u.Time = time.UnixMilli(m.Ts).UTC()
	}
	return u, nil
}

var _ source.Feed = (*Feed)(nil)
