package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
)

const asset = "7132"

// marketServer accepts one connection, records the subscribe commands and
// writes frames before closing.
func marketServer(t *testing.T, frames []string, cmds chan<- WSCommand) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var cmd WSCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			cmds <- cmd
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamSnapshotThenChanges(t *testing.T) {
	frames := []string{
		`[{"event_type":"book","asset_id":"7132","bids":[{"price":"0.48","size":"100"}],"asks":[{"price":"0.52","size":"40"}],"timestamp":"1700000000000"}]`,
		`{"event_type":"book","asset_id":"other","bids":[{"price":"0.10","size":"1"}],"asks":[]}`,
		`{"event_type":"price_change","asset_id":"7132","side":"SELL","price":"0.52","size":"0"}`,
		`{"event_type":"price_change","price_changes":[{"asset_id":"7132","side":"BUY","price":"0.49","size":"12"},{"asset_id":"other","side":"BUY","price":"0.2","size":"1"}]}`,
		`{"event_type":"last_trade_price","asset_id":"7132","price":"0.5"}`,
	}
	cmds := make(chan WSCommand, 2)
	srv := marketServer(t, frames, cmds)
	defer srv.Close()

	f := NewFeed(wsURL(srv), slog.New(slog.NewTextHandler(io.Discard, nil)))
	var got []book.Update
	err := f.Stream(context.Background(), asset, func(u book.Update) { got = append(got, u) })
	if err == nil {
		t.Fatal("expected an error when the server closes")
	}

	for _, want := range []string{"book", "price_change"} {
		cmd := <-cmds
		if cmd.Type != "subscribe" || cmd.Channel != want || len(cmd.Assets) != 1 || cmd.Assets[0] != asset {
			t.Fatalf("subscribe command = %+v", cmd)
		}
	}

	if len(got) != 3 {
		t.Fatalf("got %d updates, want 3", len(got))
	}
	snap := got[0]
	if snap.Kind != book.Snapshot || len(snap.Levels) != 2 {
		t.Fatalf("first update = %+v", snap)
	}
	if !snap.Time.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("snapshot time = %v", snap.Time)
	}
	removal := got[1]
	if removal.Kind != book.Incremental || removal.Mode != book.Absolute ||
		removal.Levels[0].Side != domain.Ask || !removal.Levels[0].Size.IsZero() {
		t.Fatalf("removal update = %+v", removal)
	}
	batch := got[2]
	if len(batch.Levels) != 1 || batch.Levels[0].Side != domain.Bid || batch.Levels[0].Price.String() != "0.49" {
		t.Fatalf("batched update = %+v", batch)
	}
}

func TestStreamMalformedFrameFails(t *testing.T) {
	frames := []string{
		`{"event_type":"book","asset_id":"7132","bids":[{"price":"0.48","size":"100"}],"asks":[]}`,
		`not json`,
		`{"event_type":"price_change","asset_id":"7132","side":"BUY","price":"0.48","size":"0"}`,
	}
	cmds := make(chan WSCommand, 2)
	srv := marketServer(t, frames, cmds)
	defer srv.Close()

	f := NewFeed(wsURL(srv), slog.New(slog.NewTextHandler(io.Discard, nil)))
	var got []book.Update
	err := f.Stream(context.Background(), asset, func(u book.Update) { got = append(got, u) })
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("Stream err = %v, want decode error", err)
	}
	if len(got) != 1 || got[0].Kind != book.Snapshot {
		t.Fatalf("got %+v, want only the snapshot", got)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := NewFeed(wsURL(srv), slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan error, 1)
	go func() { done <- f.Stream(ctx, asset, func(book.Update) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Stream returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
}

func TestPriceChangeUnknownSide(t *testing.T) {
	msg := PriceChangeMessage{AssetID: asset, Side: "HOLD", Price: "0.5", Size: "1"}
	if _, err := PriceChangeToUpdate(&msg, asset); err == nil {
		t.Fatal("expected error for unknown side")
	}
	// Command shape the server expects.
	data, _ := json.Marshal(WSCommand{Type: "subscribe", Channel: "book", Assets: []string{asset}})
	if !strings.Contains(string(data), `"assets_ids":["7132"]`) {
		t.Fatalf("command = %s", data)
	}
}
