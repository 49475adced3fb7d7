package domain

import "context"

// Sink consumes merged snapshots. Implementations may be slow or fail;
// callers wrap them so that a merge cycle never waits on a sink.
type Sink interface {
	Name() string
	Emit(ctx context.Context, symbol string, snap MarketSnapshot) error
}
