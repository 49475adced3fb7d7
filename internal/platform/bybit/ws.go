// Package bybit streams the public orderbook topic of one Bybit symbol.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nhooyr.io/websocket"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/source"
)

// Venue is the configuration name of this adapter.
const Venue = "bybit"

const (
	dialTimeout  = 10 * time.Second
	readTimeout  = 30 * time.Second
	pingInterval = 15 * time.Second
	pingTimeout  = 5 * time.Second
	readLimit    = 1 << 20
)

type orderbookMsg struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Seq    int64      `json:"u"`
	} `json:"data"`
}

type subscribeResp struct {
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
	Op      string `json:"op"`
}

// Feed subscribes to orderbook.{depth}.{symbol} on a v5 public endpoint.
type Feed struct {
	endpoint string
	depth    int
	logger   *slog.Logger
}

// NewFeed creates a feed. depth must be one the endpoint offers (1, 50,
// 200 or 500 on linear).
func NewFeed(endpoint string, depth int, logger *slog.Logger) *Feed {
	if depth <= 0 {
		depth = 50
	}
	return &Feed{
		endpoint: endpoint,
		depth:    depth,
		logger:   logger.With(slog.String("component", "bybit_ws")),
	}
}

func (f *Feed) Venue() string { return Venue }

// Topic returns the orderbook topic of symbol.
func (f *Feed) Topic(symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", f.depth, symbol)
}

// Stream dials, subscribes to symbol and emits updates until the
// connection fails or ctx is cancelled.
func (f *Feed) Stream(ctx context.Context, symbol string, emit func(book.Update)) error {
	topic := f.Topic(symbol)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, f.endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("bybit/ws: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(readLimit)

	sub, _ := json.Marshal(map[string]any{"op": "subscribe", "args": []string{topic}})
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("bybit/ws: subscribe %s: %w", topic, err)
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go pingLoop(pingCtx, conn)

	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bybit/ws: read: %w", err)
		}

		u, ok, err := decode(data, topic)
		if err != nil {
			return err
		}
		if ok {
			emit(u)
		}
	}
}

// decode turns one frame into an update. Frames for other topics and
// control replies yield ok=false. Undecodable frames and a rejected
// subscription are errors.
func decode(data []byte, topic string) (book.Update, bool, error) {
	var msg orderbookMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return book.Update{}, false, fmt.Errorf("bybit/ws: decode %s: %w", topic, err)
	}
	if msg.Topic == "" {
		var resp subscribeResp
		if err := json.Unmarshal(data, &resp); err == nil && resp.Op == "subscribe" && resp.Success != nil && !*resp.Success {
			return book.Update{}, false, fmt.Errorf("bybit/ws: subscribe %s rejected: %s", topic, resp.RetMsg)
		}
		return book.Update{}, false, nil
	}
	if msg.Topic != topic {
		return book.Update{}, false, nil
	}

	var u book.Update
	switch msg.Type {
	case "snapshot":
		u.Kind = book.Snapshot
	case "delta":
		u.Kind = book.Incremental
		u.Mode = book.Absolute
	default:
		return book.Update{}, false, nil
	}

	bids, err := book.ParsePairs(domain.Bid, msg.Data.Bids)
	if err != nil {
		return book.Update{}, false, fmt.Errorf("bybit/ws: %s: %w", topic, err)
	}
	asks, err := book.ParsePairs(domain.Ask, msg.Data.Asks)
	if err != nil {
		return book.Update{}, false, fmt.Errorf("bybit/ws: %s: %w", topic, err)
	}
	u.Levels = append(bids, asks...)
	if msg.Ts > 0 {
		u.Time = time.UnixMilli(msg.Ts).UTC()
	}
	return u, true, nil
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

var _ source.Feed = (*Feed)(nil)
