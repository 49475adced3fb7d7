package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SourceEventStore persists source lifecycle transitions. It never holds
// book state.
type SourceEventStore interface {
	Record(ctx context.Context, ev SourceEvent) error
	List(ctx context.Context, venue, symbol string, opts ListOpts) ([]SourceEvent, error)
}
