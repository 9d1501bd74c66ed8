// Package jobqueue implements C5: a priority FIFO of caption jobs with a
// bounded worker pool, retries, and progress reporting. The priority-queue
// and worker-semaphore shape is grounded on xg2g's internal/gpu.Queue; the
// explicit state-transition table is grounded on xg2g's
// internal/domain/session/lifecycle pattern of naming every legal edge
// instead of scattering "if" checks.
package jobqueue

import (
	"time"

	"github.com/google/uuid"

	"github.com/flexcoop/archivist/internal/errs"
)

// State is one of spec.md §4.5's Caption Job states.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// transitions enumerates every legal edge from spec.md §4.5's state
// machine diagram, grounded on xg2g's lifecycle.transitions_table.go.
var transitions = map[State]map[State]bool{
	StateQueued:  {StateRunning: true, StateCancelled: true},
	StateRunning: {StateSucceeded: true, StateFailed: true, StateCancelled: true, StatePaused: true},
	StatePaused:  {StateRunning: true, StateCancelled: true},
}

func canTransition(from, to State) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Priority levels; lower numeric value runs sooner (spec.md §3).
const (
	PriorityHigh   = 0
	PriorityNormal = 10
	PriorityLow    = 20
)

// Metadata carries caller-supplied context for a job (e.g. city id) that
// isn't itself part of queue bookkeeping.
type Metadata map[string]string

// Job is spec.md §3's "Caption Job" entity.
type Job struct {
	ID             string
	VideoPath      string
	CityID         string
	Priority       int
	EnqueuedAt     time.Time
	Attempt        int
	State          State
	Progress       int
	LastError      *errs.Error
	AssignedWorker string
	NotBefore      time.Time // retry backoff: not eligible for claim before this time
	Metadata       Metadata
}

func newJob(videoPath string, priority int, meta Metadata) *Job {
	return &Job{
		ID:         uuid.NewString(),
		VideoPath:  videoPath,
		CityID:     meta["city_id"],
		Priority:   priority,
		EnqueuedAt: time.Now(),
		State:      StateQueued,
		Metadata:   meta,
	}
}

// transition moves the job to `to`, returning a StateConflict error if the
// edge isn't legal (spec.md §7 "StateConflict").
func (j *Job) transition(to State) error {
	if !canTransition(j.State, to) {
		return errs.New(errs.KindStateConflict, string(j.State)+" -> "+string(to)+" is not a legal transition")
	}
	j.State = to
	if to == StateRunning {
		j.Progress = 0 // progress resets on retry (spec.md §3 invariant)
	}
	return nil
}

func (j *Job) clone() *Job {
	cp := *j
	return &cp
}
