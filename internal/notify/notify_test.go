package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"source_down", " "}, 0, discard())

	n.Notify(context.Background(), "source_recovered", "a", "")
	n.Notify(context.Background(), "source_down", "b", "")
	if len(s.titles) != 1 || s.titles[0] != "b" {
		t.Fatalf("sent %v", s.titles)
	}
}

func TestNotifyCooldown(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, time.Minute, discard())
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	n.Notify(ctx, "source_down", "bybit BTC down", "")
	n.Notify(ctx, "source_down", "bybit BTC down", "")
	n.Notify(ctx, "source_down", "dydx BTC down", "")
	now = now.Add(2 * time.Minute)
	n.Notify(ctx, "source_down", "bybit BTC down", "")

	if len(s.titles) != 3 {
		t.Fatalf("sent %v, want 3 alerts", s.titles)
	}
}

func TestDispatchJoinsErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, 0, discard())

	err := n.Notify(context.Background(), "source_down", "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err = %v", err)
	}
	if len(ok.titles) != 1 {
		t.Fatal("healthy sender was skipped")
	}
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "down", "details"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["content"] != "**down**\ndetails" {
		t.Fatalf("content = %q", got["content"])
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		if got["chat_id"] != "42" {
			http.Error(w, `{"ok":false}`, http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "down", "x"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" || got["text"] != "*down*\nx" {
		t.Fatalf("path=%q payload=%v", path, got)
	}

	s.chatID = "7"
	if err := s.Send(context.Background(), "down", "x"); err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want status 400", err)
	}
}
