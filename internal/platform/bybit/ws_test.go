package bybit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nhooyr.io/websocket"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
)

func newServer(t *testing.T, frames []string, subs chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		json.Unmarshal(data, &req)
		if req.Op == "subscribe" && len(req.Args) == 1 {
			subs <- req.Args[0]
		}
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusGoingAway, "maintenance")
	}))
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStreamSnapshotAndDelta(t *testing.T) {
	frames := []string{
		`{"success":true,"ret_msg":"","op":"subscribe"}`,
		`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1700000000123,"data":{"s":"BTCUSDT","b":[["100.01","2"],["99.5","1"]],"a":[["100.5","3"]],"u":1}}`,
		`{"topic":"orderbook.50.ETHUSDT","type":"snapshot","data":{"s":"ETHUSDT","b":[["1","1"]],"a":[]}}`,
		`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1700000000200,"data":{"s":"BTCUSDT","b":[["99.5","0"]],"a":[],"u":2}}`,
	}
	subs := make(chan string, 1)
	srv := newServer(t, frames, subs)
	defer srv.Close()

	f := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), 50, discard())
	var got []book.Update
	err := f.Stream(context.Background(), "BTCUSDT", func(u book.Update) { got = append(got, u) })
	if err == nil {
		t.Fatal("expected an error after the server closes")
	}
	if topic := <-subs; topic != "orderbook.50.BTCUSDT" {
		t.Fatalf("subscribed to %q", topic)
	}
	if len(got) != 2 {
		t.Fatalf("got %d updates, want 2", len(got))
	}
	if got[0].Kind != book.Snapshot || len(got[0].Levels) != 3 || got[0].Time.UnixMilli() != 1700000000123 {
		t.Fatalf("snapshot = %+v", got[0])
	}
	d := got[1]
	if d.Kind != book.Incremental || d.Mode != book.Absolute || len(d.Levels) != 1 ||
		d.Levels[0].Side != domain.Bid || !d.Levels[0].Size.IsZero() {
		t.Fatalf("delta = %+v", d)
	}
}

func TestRejectedSubscriptionFails(t *testing.T) {
	subs := make(chan string, 1)
	srv := newServer(t, []string{`{"success":false,"ret_msg":"invalid topic","op":"subscribe"}`}, subs)
	defer srv.Close()

	f := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), 50, discard())
	err := f.Stream(context.Background(), "NOPE", func(book.Update) {})
	if err == nil || !strings.Contains(err.Error(), "invalid topic") {
		t.Fatalf("Stream err = %v, want rejected subscription", err)
	}
}

func TestMalformedFrameFails(t *testing.T) {
	frames := []string{
		`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","data":{"s":"BTCUSDT","b":[["100","1"]],"a":[]}}`,
		`{"topic":"orderbook.50.BTCUSDT","type":"delta","data":{"s":"BTCUSDT","b":[["100"`,
		`{"topic":"orderbook.50.BTCUSDT","type":"delta","data":{"s":"BTCUSDT","b":[["100","0"]],"a":[]}}`,
	}
	subs := make(chan string, 1)
	srv := newServer(t, frames, subs)
	defer srv.Close()

	f := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), 50, discard())
	var got []book.Update
	err := f.Stream(context.Background(), "BTCUSDT", func(u book.Update) { got = append(got, u) })
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("Stream err = %v, want decode error", err)
	}
	if len(got) != 1 || got[0].Kind != book.Snapshot {
		t.Fatalf("got %+v, want only the snapshot", got)
	}
}
