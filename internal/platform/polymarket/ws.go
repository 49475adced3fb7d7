// Package polymarket streams the CLOB market channel of one asset.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/source"
)

// Venue is the configuration name of this adapter.
const Venue = "polymarket"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Feed subscribes to the "book" and "price_change" channels of one asset.
type Feed struct {
	wsURL  string
	dialer websocket.Dialer
	logger *slog.Logger
}

// NewFeed creates a feed for the given WebSocket URL.
//
// wsURL is the CLOB WebSocket endpoint, e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewFeed(wsURL string, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:  wsURL,
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger: logger.With(slog.String("component", "polymarket_ws")),
	}
}

func (f *Feed) Venue() string { return Venue }

// Stream connects, subscribes to assetID and emits updates until the
// connection fails or ctx is cancelled.
func (f *Feed) Stream(ctx context.Context, assetID string, emit func(book.Update)) error {
	conn, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// Set up pong handler for keep-alive.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for _, ch := range []string{"book", "price_change"} {
		if err := sendCommand(conn, WSCommand{Type: "subscribe", Channel: ch, Assets: []string{assetID}}); err != nil {
			return fmt.Errorf("polymarket/ws: subscribe to %s: %w", ch, err)
		}
	}
	f.logger.Debug("subscribed", slog.String("asset", assetID))

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polymarket/ws: read: %w", err)
		}
		if err := f.handleMessage(message, assetID, emit); err != nil {
			return err
		}
	}
}

func sendCommand(conn *websocket.Conn, cmd WSCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleMessage routes one frame. The feed sends either a single event or
// a JSON array of events.
func (f *Feed) handleMessage(raw []byte, assetID string, emit func(book.Update)) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return fmt.Errorf("polymarket/ws: decode batch: %w", err)
		}
		for _, item := range batch {
			if err := f.handleEvent(item, assetID, emit); err != nil {
				return err
			}
		}
		return nil
	}
	return f.handleEvent(raw, assetID, emit)
}

func (f *Feed) handleEvent(raw []byte, assetID string, emit func(book.Update)) error {
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
		AssetID string `json:"asset_id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("polymarket/ws: decode envelope: %w", err)
	}

	msgType := envelope.MsgType
	if msgType == "" {
		msgType = envelope.Event
	}

	switch msgType {
	case "book":
		if envelope.AssetID != assetID {
			return nil
		}
		var msg BookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("polymarket/ws: decode book: %w", err)
		}
		u, err := BookToUpdate(&msg)
		if err != nil {
			return err
		}
		emit(u)

	case "price_change":
		if envelope.AssetID != "" && envelope.AssetID != assetID {
			return nil
		}
		var msg PriceChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("polymarket/ws: decode price_change: %w", err)
		}
		u, err := PriceChangeToUpdate(&msg, assetID)
		if err != nil {
			return err
		}
		if len(u.Levels) > 0 {
			emit(u)
		}
	}
	return nil
}

var _ source.Feed = (*Feed)(nil)
