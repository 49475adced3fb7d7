package polymarket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
)

// BookMessage is a full orderbook snapshot pushed on the "book" channel.
type BookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChangeMessage is an incremental update of one price level.
type PriceChangeMessage struct {
	EventType string        `json:"event_type"`
	AssetID   string        `json:"asset_id"`
	Market    string        `json:"market"`
	Side      string        `json:"side"` // "BUY" or "SELL"
	Price     string        `json:"price"`
	Size      string        `json:"size"` // "0" means level removed
	Changes   []PriceChange `json:"price_changes,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// PriceChange is one entry of a batched price_change message.
type PriceChange struct {
	AssetID string `json:"asset_id,omitempty"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// WSCommand is the subscription command sent to the market channel.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// --------------------------------------------------------------------------
// Conversion helpers: wire types -> book updates
// --------------------------------------------------------------------------

// BookToUpdate converts a book message into a snapshot update.
func BookToUpdate(b *BookMessage) (book.Update, error) {
	levels := make([]book.RawLevel, 0, len(b.Bids)+len(b.Asks))
	for _, lvl := range b.Bids {
		rl, err := book.ParseLevel(domain.Bid, lvl.Price, lvl.Size)
		if err != nil {
			return book.Update{}, fmt.Errorf("polymarket: book %s: %w", b.AssetID, err)
		}
		levels = append(levels, rl)
	}
	for _, lvl := range b.Asks {
		rl, err := book.ParseLevel(domain.Ask, lvl.Price, lvl.Size)
		if err != nil {
			return book.Update{}, fmt.Errorf("polymarket: book %s: %w", b.AssetID, err)
		}
		levels = append(levels, rl)
	}
	return book.Update{
		Kind:   book.Snapshot,
		Levels: levels,
		Time:   parseTimestamp(b.Timestamp),
	}, nil
}

// PriceChangeToUpdate converts a price_change message into an absolute
// incremental update. Batched changes for other assets are ignored.
func PriceChangeToUpdate(p *PriceChangeMessage, assetID string) (book.Update, error) {
	changes := p.Changes
	if len(changes) == 0 {
		changes = []PriceChange{{AssetID: p.AssetID, Side: p.Side, Price: p.Price, Size: p.Size}}
	}

	levels := make([]book.RawLevel, 0, len(changes))
	for _, c := range changes {
		if c.AssetID != "" && c.AssetID != assetID {
			continue
		}
		side, err := parseSide(c.Side)
		if err != nil {
			return book.Update{}, err
		}
		rl, err := book.ParseLevel(side, c.Price, c.Size)
		if err != nil {
			return book.Update{}, fmt.Errorf("polymarket: price_change %s: %w", assetID, err)
		}
		levels = append(levels, rl)
	}
	return book.Update{
		Kind:   book.Incremental,
		Mode:   book.Absolute,
		Levels: levels,
		Time:   parseTimestamp(p.Timestamp),
	}, nil
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "BUY", "buy":
		return domain.Bid, nil
	case "SELL", "sell":
		return domain.Ask, nil
	default:
		return 0, fmt.Errorf("polymarket: unknown side %q", s)
	}
}

// parseTimestamp reads the millisecond epoch strings the feed sends.
func parseTimestamp(ts string) time.Time {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
