package jobqueue

import (
	"sort"
	"sync"
	"time"

	"github.com/flexcoop/archivist/internal/errs"
)

// Queue holds Caption Job records and enforces single-in-flight-per-path
// semantics (spec.md §4.5, §5). It exclusively owns job records: workers
// hold a claim for the duration of a job, never a second mutable reference.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	byPath  map[string]string // video path -> job id, present only while non-terminal
	wakeCh  chan struct{}      // best-effort wake signal for idle workers
}

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{
		jobs:   make(map[string]*Job),
		byPath: make(map[string]string),
		wakeCh: make(chan struct{}, 1),
	}
}

func (q *Queue) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

// Wake returns a channel a worker can select on to be notified that new
// work may be available.
func (q *Queue) Wake() <-chan struct{} { return q.wakeCh }

// Enqueue inserts a new job for videoPath, or returns the id of the
// existing non-terminal job for that path (spec.md §4.5, §5 "enqueue
// atomicity": check-not-already-queued-and-insert is one critical section).
func (q *Queue) Enqueue(videoPath string, priority int, meta Metadata) (jobID string, alreadyQueued bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byPath[videoPath]; ok {
		return existing, true
	}
	j := newJob(videoPath, priority, meta)
	q.jobs[j.ID] = j
	q.byPath[videoPath] = j.ID
	q.wake()
	return j.ID, false
}

// Get returns a snapshot copy of the job, or false if unknown.
func (q *Queue) Get(jobID string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Filter selects jobs for List.
type Filter struct {
	States []State
	CityID string
}

func (f Filter) matches(j *Job) bool {
	if f.CityID != "" && j.CityID != f.CityID {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if j.State == s {
			return true
		}
	}
	return false
}

// List returns snapshots of jobs matching filter, ordered by priority then
// enqueue time.
func (q *Queue) List(filter Filter) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		if filter.matches(j) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Priority != out[k].Priority {
			return out[i].Priority < out[k].Priority
		}
		return out[i].EnqueuedAt.Before(out[k].EnqueuedAt)
	})
	return out
}

func (q *Queue) releasePath(j *Job) {
	if id, ok := q.byPath[j.VideoPath]; ok && id == j.ID {
		delete(q.byPath, j.VideoPath)
	}
}

// Cancel transitions a queued/running/paused job to cancelled.
func (q *Queue) Cancel(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return errs.New(errs.KindStateConflict, "job not found")
	}
	if err := j.transition(StateCancelled); err != nil {
		return err
	}
	q.releasePath(j)
	return nil
}

// Pause transitions a running job to paused (spec.md §5 "Shutdown").
func (q *Queue) Pause(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return errs.New(errs.KindStateConflict, "job not found")
	}
	return j.transition(StatePaused)
}

// Resume transitions a paused job back to running-eligible (queued semantics:
// we move it back to queued so a worker re-claims it).
func (q *Queue) Resume(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return errs.New(errs.KindStateConflict, "job not found")
	}
	if j.State != StatePaused {
		return errs.New(errs.KindStateConflict, "only paused jobs can be resumed")
	}
	j.State = StateQueued
	q.wake()
	return nil
}

// Reorder changes a queued job's priority to newPriority (lower = sooner).
func (q *Queue) Reorder(jobID string, newPriority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return errs.New(errs.KindStateConflict, "job not found")
	}
	if j.State != StateQueued {
		return errs.New(errs.KindStateConflict, "only queued jobs can be reordered")
	}
	j.Priority = newPriority
	return nil
}

// Remove deletes a terminal job record.
func (q *Queue) Remove(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return errs.New(errs.KindStateConflict, "job not found")
	}
	if !j.State.IsTerminal() {
		return errs.New(errs.KindStateConflict, "only terminal jobs can be removed")
	}
	delete(q.jobs, jobID)
	return nil
}

// Retry creates a new job for a failed job's video path with an
// incremented attempt count, per spec.md §4.5's "failed -> queued (on
// retry()): produces new job id".
func (q *Queue) Retry(jobID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return "", errs.New(errs.KindStateConflict, "job not found")
	}
	if j.State != StateFailed {
		return "", errs.New(errs.KindStateConflict, "only failed jobs can be retried")
	}
	nj := newJob(j.VideoPath, j.Priority, j.Metadata)
	nj.Attempt = j.Attempt + 1
	nj.CityID = j.CityID
	q.jobs[nj.ID] = nj
	q.byPath[nj.VideoPath] = nj.ID
	q.wake()
	return nj.ID, nil
}

// Cleanup evicts terminal jobs older than maxAge.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	evicted := 0
	for id, j := range q.jobs {
		if j.State.IsTerminal() && j.EnqueuedAt.Before(cutoff) {
			delete(q.jobs, id)
			evicted++
		}
	}
	return evicted
}

// Stats summarizes queue health per spec.md §4.5.
type Stats struct {
	CountByState      map[State]int
	AverageWait       time.Duration
	SuccessRate       float64
	JobsPerHour       float64
	AverageProcessing time.Duration
}

// Stats computes aggregate statistics across all known jobs.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{CountByState: make(map[State]int)}
	var waitSum time.Duration
	var waitN int
	var terminalCount, succeededCount int
	var oldestTerminal time.Time

	now := time.Now()
	for _, j := range q.jobs {
		st.CountByState[j.State]++
		if j.State == StateQueued {
			waitSum += now.Sub(j.EnqueuedAt)
			waitN++
		}
		if j.State.IsTerminal() {
			terminalCount++
			if j.State == StateSucceeded {
				succeededCount++
			}
			if oldestTerminal.IsZero() || j.EnqueuedAt.Before(oldestTerminal) {
				oldestTerminal = j.EnqueuedAt
			}
		}
	}
	if waitN > 0 {
		st.AverageWait = waitSum / time.Duration(waitN)
	}
	if terminalCount > 0 {
		st.SuccessRate = float64(succeededCount) / float64(terminalCount)
	}
	if terminalCount > 0 && !oldestTerminal.IsZero() {
		elapsed := now.Sub(oldestTerminal).Hours()
		if elapsed > 0 {
			st.JobsPerHour = float64(terminalCount) / elapsed
		}
	}
	return st
}

// claimNext atomically picks the highest-priority, earliest-enqueued
// queued job whose NotBefore has passed, transitions it to running, and
// returns it. Returns nil if nothing is eligible.
func (q *Queue) claimNext(workerID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *Job
	now := time.Now()
	for _, j := range q.jobs {
		if j.State != StateQueued {
			continue
		}
		if j.NotBefore.After(now) {
			continue
		}
		if best == nil ||
			j.Priority < best.Priority ||
			(j.Priority == best.Priority && j.EnqueuedAt.Before(best.EnqueuedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil
	}
	_ = best.transition(StateRunning)
	best.AssignedWorker = workerID
	best.Attempt++
	return best.clone()
}

// setProgress updates a running job's progress milestone (spec.md §4.5).
func (q *Queue) setProgress(jobID string, progress int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[jobID]; ok && j.State == StateRunning {
		j.Progress = progress
	}
}

// finish transitions a running job to a terminal state (or reschedules it
// as queued with a backoff NotBefore for a retriable failure).
func (q *Queue) finish(jobID string, outcome State, jobErr *errs.Error, retryAfter time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return
	}
	j.LastError = jobErr

	if outcome == StateFailed && retryAfter > 0 {
		// Automatic retry: stay addressable under the same id in "queued"
		// rather than minting a new id — operator-triggered Retry() (which
		// does mint a new id) is reserved for post-terminal-failure retries.
		j.State = StateQueued
		j.NotBefore = time.Now().Add(retryAfter)
		j.AssignedWorker = ""
		return
	}

	_ = j.transition(outcome)
	if outcome != StatePaused {
		q.releasePath(j)
	}
}
