package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		query     string
		limit     int
		offset    int
		wantSince bool
		wantUntil bool
	}{
		{"", 50, 0, false, false},
		{"limit=10&offset=5", 10, 5, false, false},
		{"limit=9999", 500, 0, false, false},
		{"limit=-1&offset=-3", 50, 0, false, false},
		{"since=2026-01-02T03:04:05Z&until=bogus", 50, 0, true, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		opts := parseListOpts(r)
		if opts.Limit != tt.limit || opts.Offset != tt.offset {
			t.Errorf("%q: limit/offset = %d/%d, want %d/%d", tt.query, opts.Limit, opts.Offset, tt.limit, tt.offset)
		}
		if (opts.Since != nil) != tt.wantSince || (opts.Until != nil) != tt.wantUntil {
			t.Errorf("%q: since/until = %v/%v", tt.query, opts.Since, opts.Until)
		}
	}
}

func TestHealthDegradedWhenDependencyFails(t *testing.T) {
	h := NewHealthHandler(map[string]CheckFunc{
		"redis":    func(context.Context) error { return errors.New("connection refused") },
		"postgres": func(context.Context) error { return nil },
	}, discard())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || body.Status != "degraded" {
		t.Fatalf("code=%d status=%q", rec.Code, body.Status)
	}
	if body.Dependencies["postgres"] != "ok" || body.Dependencies["redis"] != "connection refused" {
		t.Fatalf("dependencies = %v", body.Dependencies)
	}
}

type memEvents struct {
	venue, symbol string
	opts          domain.ListOpts
	err           error
}

func (m *memEvents) Record(context.Context, domain.SourceEvent) error { return nil }

func (m *memEvents) List(_ context.Context, venue, symbol string, opts domain.ListOpts) ([]domain.SourceEvent, error) {
	m.venue, m.symbol, m.opts = venue, symbol, opts
	if m.err != nil {
		return nil, m.err
	}
	return []domain.SourceEvent{{ID: "e1", Venue: venue, Symbol: symbol, State: domain.TaskFailed, At: time.Unix(0, 0)}}, nil
}

type staticStatuses []domain.SourceStatus

func (s staticStatuses) Statuses() []domain.SourceStatus { return s }

func TestListEventsPassesFilters(t *testing.T) {
	store := &memEvents{}
	h := NewSourceHandler(staticStatuses(nil), store, discard())

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/sources/events?venue=bybit&symbol=BTC-USD&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if store.venue != "bybit" || store.symbol != "BTC-USD" || store.opts.Limit != 5 {
		t.Fatalf("store saw venue=%q symbol=%q opts=%+v", store.venue, store.symbol, store.opts)
	}

	store.err = errors.New("boom")
	rec = httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/sources/events", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code on store error = %d", rec.Code)
	}
}

func TestListEventsWithoutStore(t *testing.T) {
	h := NewSourceHandler(staticStatuses(nil), nil, discard())
	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/sources/events", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rec.Code)
	}
}

type fakeCache map[string][]byte

func (c fakeCache) Cached(_ context.Context, symbol string) ([]byte, error) {
	if b, ok := c[symbol]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("cache: get %q: %w", symbol, domain.ErrNotFound)
}

func (c fakeCache) ContentType() string { return "application/x-protobuf" }

type fakeLatest map[string]domain.MarketSnapshot

func (l fakeLatest) Get(symbol string) (domain.MarketSnapshot, bool) {
	s, ok := l[symbol]
	return s, ok
}

func (l fakeLatest) All() []domain.MarketSnapshot {
	out := make([]domain.MarketSnapshot, 0, len(l))
	for _, s := range l {
		out = append(out, s)
	}
	return out
}

func TestGetSnapshotFallsBackToCache(t *testing.T) {
	latest := fakeLatest{"BTC-USD": {Symbol: "BTC-USD", Mid: 100}}
	cache := fakeCache{"ETH-USD": []byte(`{"symbol":"ETH-USD"}`)}
	h := NewSnapshotHandler(latest, cache, discard())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshots/{symbol}", h.GetSnapshot)

	tests := []struct {
		symbol string
		code   int
		body   string
		ctype  string
	}{
		{"BTC-USD", http.StatusOK, "", "application/json"},
		{"ETH-USD", http.StatusOK, `{"symbol":"ETH-USD"}`, "application/x-protobuf"},
		{"SOL-USD", http.StatusNotFound, "", "application/json"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/"+tt.symbol, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: code = %d, want %d", tt.symbol, rec.Code, tt.code)
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("%s: body = %q", tt.symbol, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.ctype) {
			t.Errorf("%s: content type = %q, want %q", tt.symbol, ct, tt.ctype)
		}
	}
}
