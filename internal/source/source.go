// Package source runs one venue feed for one symbol and keeps its price
// ladder current. Transport failures are absorbed here: the ladder is
// cleared, the failure is reported, and the feed is restarted after a
// cancellable backoff.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/metrics"
)

// ErrStreamEnded is reported when a feed returns without an error while
// its context is still live.
var ErrStreamEnded = errors.New("source: stream ended")

// Feed is the venue transport behind a Source. Stream connects, subscribes
// to instrument and calls emit for every decoded update in arrival order;
// emit must be called from the goroutine running Stream. Stream returns
// when the transport fails or ctx is cancelled.
type Feed interface {
	Venue() string
	Stream(ctx context.Context, instrument string, emit func(book.Update)) error
}

// Transition is a lifecycle change reported by a Source.
type Transition struct {
	Venue   string
	Symbol  string
	State   domain.TaskState
	Err     error
	Attempt int
	At      time.Time
}

// StateFunc observes transitions. It is called from the source goroutine
// and must not block.
type StateFunc func(Transition)

// Config describes one (venue, symbol) source.
type Config struct {
	Symbol string
	// Instrument is the venue's own identifier for Symbol.
	Instrument string
	Grid       book.Grid
	Backoff    Backoff
}

// Source implements domain.VenueSource on top of a Feed.
type Source struct {
	feed    Feed
	cfg     Config
	book    *book.Book
	onState StateFunc
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithStateFunc registers fn to receive lifecycle transitions.
func WithStateFunc(fn StateFunc) Option {
	return func(s *Source) { s.onState = fn }
}

// New creates a Source. It does nothing until Run is called.
func New(feed Feed, cfg Config, logger *slog.Logger, opts ...Option) *Source {
	if cfg.Instrument == "" {
		cfg.Instrument = cfg.Symbol
	}
	s := &Source{
		feed: feed,
		cfg:  cfg,
		book: book.New(cfg.Grid),
		logger: logger.With(
			slog.String("component", "source"),
			slog.String("venue", feed.Venue()),
			slog.String("symbol", cfg.Symbol),
		),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Venue() string  { return s.feed.Venue() }
func (s *Source) Symbol() string { return s.cfg.Symbol }

// Ladder returns a copy of the latest ladder. It never waits on the feed.
func (s *Source) Ladder() domain.Ladder { return s.book.Ladder() }

// Levels returns the number of grid prices currently held.
func (s *Source) Levels() int { return s.book.Len() }

// Updated returns the time of the last applied update.
func (s *Source) Updated() time.Time { return s.book.Updated() }

// Run streams from the feed until ctx is cancelled, reconnecting after
// every failure. It always returns ctx.Err().
func (s *Source) Run(ctx context.Context) error {
	s.report(domain.TaskStarting, nil, 0)

	attempt := 0
	for {
		delivered, err := s.stream(ctx)
		s.book.Reset()
		metrics.SourceLevels.WithLabelValues(s.Venue(), s.cfg.Symbol).Set(0)

		if ctx.Err() != nil {
			s.report(domain.TaskCancelled, nil, attempt)
			return ctx.Err()
		}
		if err == nil {
			err = ErrStreamEnded
		}
		if delivered {
			attempt = 0
		}
		attempt++

		s.report(domain.TaskFailed, err, attempt)
		metrics.SourceReconnectsTotal.WithLabelValues(s.Venue(), s.cfg.Symbol).Inc()

		delay := s.cfg.Backoff.Next(attempt)
		s.logger.WarnContext(ctx, "feed failed, reconnecting",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
		)
		s.report(domain.TaskRestarting, nil, attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.report(domain.TaskCancelled, nil, attempt)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// stream runs one feed session. A panic inside the feed is converted into
// an error so that it is retried like any other transport failure.
func (s *Source) stream(ctx context.Context) (delivered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source: %s feed panic: %v", s.Venue(), r)
		}
	}()

	venue, symbol := s.Venue(), s.cfg.Symbol
	err = s.feed.Stream(ctx, s.cfg.Instrument, func(u book.Update) {
		if !s.book.Apply(u) {
			metrics.SourceDroppedUpdatesTotal.WithLabelValues(venue, symbol).Inc()
			s.logger.Debug("dropping incremental update received before snapshot")
			return
		}
		metrics.SourceUpdatesTotal.WithLabelValues(venue, symbol).Inc()
		metrics.SourceLevels.WithLabelValues(venue, symbol).Set(float64(s.book.Len()))
		if !delivered {
			delivered = true
			s.report(domain.TaskRunning, nil, 0)
		}
	})
	return delivered, err
}

func (s *Source) report(state domain.TaskState, err error, attempt int) {
	metrics.SetSourceState(s.Venue(), s.cfg.Symbol, state)
	if state == domain.TaskRunning {
		s.logger.Info("source running",
			slog.Float64("tick", s.book.Grid().Tick()),
			slog.Int("levels", s.book.Len()),
		)
	}
	if s.onState == nil {
		return
	}
	s.onState(Transition{
		Venue:   s.Venue(),
		Symbol:  s.cfg.Symbol,
		State:   state,
		Err:     err,
		Attempt: attempt,
		At:      time.Now().UTC(),
	})
}

var _ domain.VenueSource = (*Source)(nil)
