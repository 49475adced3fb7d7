package domain

import (
	"context"
	"time"
)

// TaskState is the lifecycle state of a supervised task.
type TaskState string

const (
	TaskStarting   TaskState = "starting"
	TaskRunning    TaskState = "running"
	TaskFailed     TaskState = "failed"
	TaskRestarting TaskState = "restarting"
	TaskCancelled  TaskState = "cancelled"
)

// VenueSource maintains the price ladder of one symbol on one venue.
// Run blocks until ctx is cancelled; transport failures are handled
// inside it. Ladder may be called concurrently with Run and returns a
// copy of the most recent state.
type VenueSource interface {
	Venue() string
	Symbol() string
	Run(ctx context.Context) error
	Ladder() Ladder
}

// SourceStatus is the externally visible health of one source.
type SourceStatus struct {
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	State      TaskState `json:"state"`
	Failures   int       `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
	LastUpdate time.Time `json:"last_update"`
	Levels     int       `json:"levels"`
}

// SourceEvent records one state transition of a source.
type SourceEvent struct {
	ID     string    `json:"id"`
	RunID  string    `json:"run_id"`
	Venue  string    `json:"venue"`
	Symbol string    `json:"symbol"`
	State  TaskState `json:"state"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}
