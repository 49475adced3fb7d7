package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Latest keeps the most recent snapshot of every symbol in memory.
type Latest struct {
	mu    sync.RWMutex
	snaps map[string]domain.MarketSnapshot
}

func NewLatest() *Latest {
	return &Latest{snaps: make(map[string]domain.MarketSnapshot)}
}

func (l *Latest) Name() string { return "latest" }

func (l *Latest) Emit(_ context.Context, symbol string, snap domain.MarketSnapshot) error {
	l.mu.Lock()
	l.snaps[symbol] = snap
	l.mu.Unlock()
	return nil
}

// Get returns the latest snapshot of symbol.
func (l *Latest) Get(symbol string) (domain.MarketSnapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap, ok := l.snaps[symbol]
	return snap, ok
}

// All returns the latest snapshot of every symbol, ordered by symbol.
func (l *Latest) All() []domain.MarketSnapshot {
	l.mu.RLock()
	out := make([]domain.MarketSnapshot, 0, len(l.snaps))
	for _, s := range l.snaps {
		out = append(out, s)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

var _ domain.Sink = (*Latest)(nil)
