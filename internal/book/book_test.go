package book

import (
	"testing"

	"github.com/jidanzai321/aggregator/internal/domain"
)

func lvl(t *testing.T, side domain.Side, price, size string) RawLevel {
	t.Helper()
	l, err := ParseLevel(side, price, size)
	if err != nil {
		t.Fatalf("parse level: %v", err)
	}
	return l
}

func newBook(t *testing.T, tick float64) *Book {
	t.Helper()
	g, err := NewGrid(tick)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	return New(g)
}

func TestSnapshotSumsCollidingPrices(t *testing.T) {
	b := newBook(t, 1)
	ok := b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{
		lvl(t, domain.Bid, "100.2", "1"),
		lvl(t, domain.Bid, "99.9", "2"),
		lvl(t, domain.Ask, "101", "4"),
	}})
	if !ok {
		t.Fatal("snapshot not applied")
	}
	l := b.Ladder()
	if l[100].Bid != 3 {
		t.Fatalf("expected bid 3 at 100, got %+v", l[100])
	}
	if l[101].Ask != 4 {
		t.Fatalf("expected ask 4 at 101, got %+v", l[101])
	}
	if len(l) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(l))
	}
}

func TestSnapshotReplacesLadder(t *testing.T) {
	b := newBook(t, 1)
	b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{lvl(t, domain.Bid, "100", "1")}})
	b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{lvl(t, domain.Ask, "105", "2")}})
	l := b.Ladder()
	if _, ok := l[100]; ok {
		t.Fatalf("stale key survived snapshot: %+v", l)
	}
	if l[105].Ask != 2 {
		t.Fatalf("unexpected ladder %+v", l)
	}
}

func TestIncrementBeforeSnapshotDropped(t *testing.T) {
	b := newBook(t, 0.01)
	if b.Apply(Update{Kind: Incremental, Mode: Delta, Levels: []RawLevel{lvl(t, domain.Bid, "100", "1")}}) {
		t.Fatal("expected increment before snapshot to be dropped")
	}
	if b.Len() != 0 || b.Synced() {
		t.Fatalf("book changed: len=%d synced=%v", b.Len(), b.Synced())
	}
}

func TestDeltaClampsAtZero(t *testing.T) {
	b := newBook(t, 0.01)
	b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{lvl(t, domain.Bid, "100.00", "2.0")}})
	b.Apply(Update{Kind: Incremental, Mode: Delta, Levels: []RawLevel{lvl(t, domain.Bid, "100.00", "-3.0")}})

	l := b.Ladder()
	got, ok := l[100]
	if !ok {
		t.Fatal("clamped key was removed")
	}
	if got.Bid != 0 || got.Ask != 0 {
		t.Fatalf("expected zero level, got %+v", got)
	}
}

func TestDeltaCreatesEntry(t *testing.T) {
	b := newBook(t, 0.01)
	b.Apply(Update{Kind: Snapshot})
	b.Apply(Update{Kind: Incremental, Mode: Delta, Levels: []RawLevel{lvl(t, domain.Ask, "101.50", "1.5")}})
	if got := b.Ladder()[101.5].Ask; got != 1.5 {
		t.Fatalf("expected ask 1.5, got %v", got)
	}
}

func TestAbsoluteIncrementTracksFoldedLevels(t *testing.T) {
	b := newBook(t, 1)
	b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{
		lvl(t, domain.Bid, "100.2", "1"),
		lvl(t, domain.Bid, "99.9", "2"),
	}})

	b.Apply(Update{Kind: Incremental, Mode: Absolute, Levels: []RawLevel{lvl(t, domain.Bid, "100.2", "5")}})
	if got := b.Ladder()[100].Bid; got != 7 {
		t.Fatalf("expected 7 after replacing one folded level, got %v", got)
	}

	b.Apply(Update{Kind: Incremental, Mode: Absolute, Levels: []RawLevel{lvl(t, domain.Bid, "99.9", "0")}})
	if got := b.Ladder()[100].Bid; got != 5 {
		t.Fatalf("expected 5 after removing one folded level, got %v", got)
	}

	b.Apply(Update{Kind: Incremental, Mode: Absolute, Levels: []RawLevel{lvl(t, domain.Bid, "100.2", "0")}})
	got, ok := b.Ladder()[100]
	if !ok || got.Bid != 0 {
		t.Fatalf("expected zero entry kept, got %+v ok=%v", got, ok)
	}
}

func TestResetUnsyncs(t *testing.T) {
	b := newBook(t, 1)
	b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{lvl(t, domain.Bid, "100", "1")}})
	b.Reset()
	if b.Len() != 0 || b.Synced() {
		t.Fatalf("reset left state: len=%d synced=%v", b.Len(), b.Synced())
	}
	if b.Apply(Update{Kind: Incremental, Mode: Absolute, Levels: []RawLevel{lvl(t, domain.Bid, "100", "1")}}) {
		t.Fatal("increment after reset should be dropped")
	}
}

func TestLadderReturnsCopy(t *testing.T) {
	b := newBook(t, 1)
	b.Apply(Update{Kind: Snapshot, Levels: []RawLevel{lvl(t, domain.Bid, "100", "1")}})
	l := b.Ladder()
	l.Set(100, domain.Bid, 42)
	l[200] = domain.Level{Ask: 1}
	if got := b.Ladder(); got[100].Bid != 1 || len(got) != 1 {
		t.Fatalf("book mutated through copy: %+v", got)
	}
}

func TestParsePairs(t *testing.T) {
	levels, err := ParsePairs(domain.Ask, [][]string{{"1.5", "2"}, {"bad"}, {"2.5", "3", "extra"}})
	if err != nil {
		t.Fatalf("parse pairs: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if _, err := ParsePairs(domain.Ask, [][]string{{"x", "1"}}); err == nil {
		t.Fatal("expected error for malformed price")
	}
}
