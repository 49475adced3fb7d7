// Package supervisor runs every venue source and one merge loop per symbol,
// forwards the resulting snapshots to the sinks and tracks source health.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jidanzai321/aggregator/internal/aggregate"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/metrics"
	"github.com/jidanzai321/aggregator/internal/sink"
	"github.com/jidanzai321/aggregator/internal/source"
)

// Notification event names.
const (
	EventSourceDown      = "source_down"
	EventSourceRecovered = "source_recovered"
)

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the supervisor.
type Config struct {
	MergeInterval time.Duration
	ShutdownGrace time.Duration
	SinkTimeout   time.Duration
	// RestartBackoff paces restarts of a source whose Run returned while
	// the supervisor was still running.
	RestartBackoff source.Backoff
	// FailureThreshold is the number of consecutive failures after which
	// a source is reported down. Zero disables alerts.
	FailureThreshold int
}

// Symbol groups the sources of one aggregated market.
type Symbol struct {
	Name    string
	Window  aggregate.Window
	Sources []domain.VenueSource
}

type pendingEvent struct {
	tr    source.Transition
	alert string
	cur   domain.SourceStatus
}

// Supervisor owns the task group of the engine.
type Supervisor struct {
	cfg      Config
	symbols  []Symbol
	sinks    []domain.Sink
	registry *Registry
	events   domain.SourceEventStore
	alerter  Alerter
	runID    string
	pending  chan pendingEvent
	base     *slog.Logger
	logger   *slog.Logger

	activeMu sync.Mutex
	active   map[string]struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithEventStore persists source transitions to store.
func WithEventStore(store domain.SourceEventStore) Option {
	return func(s *Supervisor) { s.events = store }
}

// WithAlerter sends source_down and source_recovered notifications.
func WithAlerter(a Alerter) Option {
	return func(s *Supervisor) { s.alerter = a }
}

// New creates a Supervisor that delivers to sinks.
func New(cfg Config, sinks []domain.Sink, logger *slog.Logger, opts ...Option) *Supervisor {
	if cfg.MergeInterval <= 0 {
		cfg.MergeInterval = time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	s := &Supervisor{
		cfg:      cfg,
		sinks:    sinks,
		registry: NewRegistry(),
		runID:    uuid.NewString(),
		pending:  make(chan pendingEvent, 1024),
		active:   make(map[string]struct{}),
		base:     logger,
		logger:   logger.With(slog.String("component", "supervisor")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add registers a symbol. It must be called before Run.
func (s *Supervisor) Add(sym Symbol) error {
	if err := sym.Window.Validate(); err != nil {
		return fmt.Errorf("supervisor: add %s: %w", sym.Name, err)
	}
	for _, src := range sym.Sources {
		if _, ok := s.registry.Get(src.Venue(), sym.Name); !ok {
			s.registry.Touch(src.Venue(), sym.Name, 0, time.Time{})
		}
	}
	s.symbols = append(s.symbols, sym)
	return nil
}

// RunID identifies this process run in recorded events.
func (s *Supervisor) RunID() string { return s.runID }

// Statuses returns the health of every source.
func (s *Supervisor) Statuses() []domain.SourceStatus { return s.registry.Statuses() }

// Observe is the source.StateFunc the sources report to. It never blocks.
func (s *Supervisor) Observe(tr source.Transition) {
	prev, cur := s.registry.Observe(tr)

	ev := pendingEvent{tr: tr, cur: cur}
	if th := s.cfg.FailureThreshold; th > 0 {
		switch {
		case tr.State == domain.TaskFailed && cur.Failures == th:
			ev.alert = EventSourceDown
		case tr.State == domain.TaskRunning && prev.Failures >= th:
			ev.alert = EventSourceRecovered
		}
	}

	select {
	case s.pending <- ev:
	default:
		s.logger.Warn("event queue full, dropping transition",
			slog.String("venue", tr.Venue),
			slog.String("symbol", tr.Symbol),
			slog.String("state", string(tr.State)),
		)
	}
}

// Run starts every task and blocks until ctx is cancelled. Tasks get
// ShutdownGrace to stop; the ones that don't are logged and abandoned.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting",
		slog.String("run_id", s.runID),
		slog.Int("symbols", len(s.symbols)),
		slog.Int("sinks", len(s.sinks)),
	)

	g, gctx := errgroup.WithContext(ctx)

	sinks := make([]domain.Sink, 0, len(s.sinks))
	for _, sk := range s.sinks {
		a := sink.NewAsync(sk, s.cfg.SinkTimeout, s.base)
		sinks = append(sinks, a)
		s.spawn(g, "sink:"+sk.Name(), func() error { return a.Run(gctx) })
	}

	s.spawn(g, "events", func() error { return s.dispatch(gctx) })

	for _, sym := range s.symbols {
		for _, src := range sym.Sources {
			s.spawn(g, "source:"+src.Venue()+":"+sym.Name, func() error { return s.runSource(gctx, src) })
		}
		s.spawn(g, "merge:"+sym.Name, func() error { return s.runMerge(gctx, sym, sinks) })
	}

	<-gctx.Done()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	timer := time.NewTimer(s.cfg.ShutdownGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		s.logger.Info("supervisor stopped")
	case <-timer.C:
		s.logger.Warn("shutdown grace elapsed, abandoning tasks",
			slog.Duration("grace", s.cfg.ShutdownGrace),
			slog.Any("tasks", s.unfinished()),
		)
	}
	return ctx.Err()
}

func (s *Supervisor) spawn(g *errgroup.Group, name string, fn func() error) {
	s.activeMu.Lock()
	s.active[name] = struct{}{}
	s.activeMu.Unlock()

	g.Go(func() error {
		defer func() {
			s.activeMu.Lock()
			delete(s.active, name)
			s.activeMu.Unlock()
		}()
		return fn()
	})
}

func (s *Supervisor) unfinished() []string {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	out := make([]string, 0, len(s.active))
	for name := range s.active {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// runSource keeps src running until ctx is cancelled.
func (s *Supervisor) runSource(ctx context.Context, src domain.VenueSource) error {
	attempt := 0
	for {
		err := safeRun(ctx, src)
		if ctx.Err() != nil {
			return nil
		}
		attempt++
		delay := s.cfg.RestartBackoff.Next(attempt)
		if err == nil {
			err = source.ErrStreamEnded
		}
		s.logger.Error("source task exited, restarting",
			slog.String("venue", src.Venue()),
			slog.String("symbol", src.Symbol()),
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		s.Observe(source.Transition{
			Venue:   src.Venue(),
			Symbol:  src.Symbol(),
			State:   domain.TaskRestarting,
			Err:     err,
			Attempt: attempt,
			At:      time.Now().UTC(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func safeRun(ctx context.Context, src domain.VenueSource) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("supervisor: %s/%s panic: %v", src.Venue(), src.Symbol(), r)
		}
	}()
	return src.Run(ctx)
}

func (s *Supervisor) runMerge(ctx context.Context, sym Symbol, sinks []domain.Sink) error {
	ticker := time.NewTicker(s.cfg.MergeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cycle(ctx, sym, sinks)
		}
	}
}

type updatedReporter interface {
	Updated() time.Time
}

// cycle merges the current ladders of sym and hands the snapshot to sinks.
// It reports whether a snapshot was produced.
func (s *Supervisor) cycle(ctx context.Context, sym Symbol, sinks []domain.Sink) (domain.MarketSnapshot, bool) {
	start := time.Now()

	ladders := make([]domain.Ladder, 0, len(sym.Sources))
	var venues []string
	for _, src := range sym.Sources {
		l := src.Ladder()
		var updated time.Time
		if u, ok := src.(updatedReporter); ok {
			updated = u.Updated()
		}
		s.registry.Touch(src.Venue(), sym.Name, len(l), updated)
		if len(l) == 0 {
			continue
		}
		ladders = append(ladders, l)
		venues = append(venues, src.Venue())
	}

	merged := aggregate.Merge(ladders...)
	snap, ok := aggregate.Summarize(sym.Name, merged, sym.Window)
	metrics.MergeDurationSeconds.WithLabelValues(sym.Name).Observe(time.Since(start).Seconds())
	if !ok {
		metrics.SnapshotsSkippedTotal.WithLabelValues(sym.Name).Inc()
		s.logger.Debug("no two-sided market, skipping cycle", slog.String("symbol", sym.Name))
		return domain.MarketSnapshot{}, false
	}
	snap.Sources = venues

	for _, sk := range sinks {
		if err := sk.Emit(ctx, sym.Name, snap); err != nil {
			s.logger.Warn("sink emit failed",
				slog.String("sink", sk.Name()),
				slog.String("symbol", sym.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	metrics.SnapshotsEmittedTotal.WithLabelValues(sym.Name).Inc()
	return snap, true
}

// dispatch records transitions and sends alerts off the source goroutines.
func (s *Supervisor) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.pending:
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev pendingEvent) {
	tr := ev.tr
	if s.events != nil {
		rec := domain.SourceEvent{
			ID:     uuid.NewString(),
			RunID:  s.runID,
			Venue:  tr.Venue,
			Symbol: tr.Symbol,
			State:  tr.State,
			At:     tr.At,
		}
		if tr.Err != nil {
			rec.Error = tr.Err.Error()
		}
		if err := s.events.Record(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "record source event failed",
				slog.String("venue", tr.Venue),
				slog.String("symbol", tr.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	if ev.alert == "" || s.alerter == nil {
		return
	}
	var title, msg string
	switch ev.alert {
	case EventSourceDown:
		title = fmt.Sprintf("%s %s down", tr.Venue, tr.Symbol)
		msg = fmt.Sprintf("%d consecutive failures, last error: %s", ev.cur.Failures, ev.cur.LastError)
	case EventSourceRecovered:
		title = fmt.Sprintf("%s %s recovered", tr.Venue, tr.Symbol)
		msg = "source is streaming again"
	}
	if err := s.alerter.Notify(ctx, ev.alert, title, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", ev.alert),
			slog.String("error", err.Error()),
		)
	}
}
