// Package dydx streams the v4 indexer orderbook channel of one market.
package dydx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/source"
)

// Venue is the configuration name of this adapter.
const Venue = "dydx"

const (
	channel     = "v4_orderbook"
	writeWait   = 10 * time.Second
	readTimeout = 60 * time.Second
)

// Feed subscribes to v4_orderbook for one market id such as "BTC-USD".
type Feed struct {
	url    string
	dialer websocket.Dialer
	logger *slog.Logger
}

func NewFeed(url string, logger *slog.Logger) *Feed {
	return &Feed{
		url:    url,
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger: logger.With(slog.String("component", "dydx_ws")),
	}
}

func (f *Feed) Venue() string { return Venue }

// Stream dials the indexer, subscribes to market and emits the initial
// book followed by absolute level changes.
func (f *Feed) Stream(ctx context.Context, market string, emit func(book.Update)) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dydx/ws: connect: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	// The indexer pings periodically; every frame extends the deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCmd{Type: "subscribe", Channel: channel, ID: market}); err != nil {
		return fmt.Errorf("dydx/ws: subscribe %s: %w", market, err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("dydx/ws: read: %w", err)
		}
		u, ok, err := parseMessage(raw, market)
		if err != nil {
			return err
		}
		if ok {
			emit(u)
		}
	}
}

var _ source.Feed = (*Feed)(nil)
