package supervisor

import (
	"sort"
	"sync"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/source"
)

type sourceKey struct {
	venue  string
	symbol string
}

// Registry holds the current status of every supervised source. It is safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	status map[sourceKey]domain.SourceStatus
}

func NewRegistry() *Registry {
	return &Registry{status: make(map[sourceKey]domain.SourceStatus)}
}

// Observe applies tr and returns the status before and after it.
// Consecutive failures accumulate until the source runs again.
func (r *Registry) Observe(tr source.Transition) (prev, cur domain.SourceStatus) {
	k := sourceKey{tr.Venue, tr.Symbol}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.status[k]
	if !ok {
		prev = domain.SourceStatus{Venue: tr.Venue, Symbol: tr.Symbol}
	}
	cur = prev
	cur.State = tr.State
	switch tr.State {
	case domain.TaskRunning:
		cur.Failures = 0
		cur.LastError = ""
	case domain.TaskFailed:
		cur.Failures++
		if tr.Err != nil {
			cur.LastError = tr.Err.Error()
		}
	case domain.TaskRestarting:
		if tr.Err != nil {
			cur.LastError = tr.Err.Error()
		}
	}
	r.status[k] = cur
	return prev, cur
}

// Touch records the ladder depth and last update time seen by a merge cycle.
func (r *Registry) Touch(venue, symbol string, levels int, updated time.Time) {
	k := sourceKey{venue, symbol}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.status[k]
	if !ok {
		st = domain.SourceStatus{Venue: venue, Symbol: symbol, State: domain.TaskStarting}
	}
	st.Levels = levels
	if !updated.IsZero() {
		st.LastUpdate = updated
	}
	r.status[k] = st
}

// Get returns the status of one source.
func (r *Registry) Get(venue, symbol string) (domain.SourceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.status[sourceKey{venue, symbol}]
	return st, ok
}

// Statuses returns every known status ordered by symbol, then venue.
func (r *Registry) Statuses() []domain.SourceStatus {
	r.mu.RLock()
	out := make([]domain.SourceStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, st)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Venue < out[j].Venue
	})
	return out
}
