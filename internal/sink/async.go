// Package sink holds the snapshot consumers that live in process and the
// Async wrapper that keeps every sink off the merge loop.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/metrics"
)

// Async delivers snapshots to a wrapped sink from its own goroutine. Each
// symbol has a one-slot mailbox: a snapshot not yet delivered is replaced
// by a newer one, so Emit never blocks and a slow sink only ever sees the
// freshest state.
type Async struct {
	sink    domain.Sink
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]domain.MarketSnapshot
	order   []string
	wake    chan struct{}
}

// NewAsync wraps s. Each delivery is bounded by timeout.
func NewAsync(s domain.Sink, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Async{
		sink:    s,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "sink"), slog.String("sink", s.Name())),
		pending: make(map[string]domain.MarketSnapshot),
		wake:    make(chan struct{}, 1),
	}
}

func (a *Async) Name() string { return a.sink.Name() }

// Emit queues snap for delivery and returns immediately.
func (a *Async) Emit(_ context.Context, symbol string, snap domain.MarketSnapshot) error {
	a.mu.Lock()
	if _, queued := a.pending[symbol]; queued {
		metrics.SinkSupersededTotal.WithLabelValues(a.sink.Name()).Inc()
	} else {
		a.order = append(a.order, symbol)
	}
	a.pending[symbol] = snap
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run delivers queued snapshots until ctx is cancelled.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.wake:
			a.drain(ctx)
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	for ctx.Err() == nil {
		a.mu.Lock()
		if len(a.order) == 0 {
			a.mu.Unlock()
			return
		}
		symbol := a.order[0]
		a.order = a.order[1:]
		snap := a.pending[symbol]
		delete(a.pending, symbol)
		a.mu.Unlock()

		ectx, cancel := context.WithTimeout(ctx, a.timeout)
		err := a.sink.Emit(ectx, symbol, snap)
		cancel()
		if err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(a.sink.Name()).Inc()
			a.logger.WarnContext(ctx, "sink emit failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

var _ domain.Sink = (*Async)(nil)
