package jobqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexcoop/archivist/internal/errs"
)

func TestEnqueue_SingleInFlightPerPath(t *testing.T) {
	q := New()

	const n = 50
	ids := make([]string, n)
	already := make([]bool, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i], already[i] = q.Enqueue("/mnt/flex-1/show.mp4", PriorityNormal, nil)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "all concurrent enqueues for the same path must resolve to one job id")
	}

	jobs := q.List(Filter{})
	require.Len(t, jobs, 1, "only one job record should exist for the shared path")
}

func TestEnqueue_DistinctPathsGetDistinctJobs(t *testing.T) {
	q := New()
	id1, already1 := q.Enqueue("/mnt/flex-1/a.mp4", PriorityNormal, nil)
	id2, already2 := q.Enqueue("/mnt/flex-1/b.mp4", PriorityNormal, nil)

	assert.False(t, already1)
	assert.False(t, already2)
	assert.NotEqual(t, id1, id2)
}

func TestClaimNext_PriorityThenAge(t *testing.T) {
	q := New()
	lowID, _ := q.Enqueue("/a.mp4", PriorityLow, nil)
	time.Sleep(time.Millisecond)
	highID, _ := q.Enqueue("/b.mp4", PriorityHigh, nil)
	time.Sleep(time.Millisecond)
	_, _ = q.Enqueue("/c.mp4", PriorityNormal, nil)

	claimed := q.claimNext("worker-0")
	require.NotNil(t, claimed)
	assert.Equal(t, highID, claimed.ID, "highest priority (lowest number) job must be claimed first")

	j, ok := q.Get(highID)
	require.True(t, ok)
	assert.Equal(t, StateRunning, j.State)
	assert.Equal(t, 1, j.Attempt)

	_, stillQueued := q.Get(lowID)
	require.True(t, stillQueued)
}

func TestClaimNext_RespectsNotBefore(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)
	q.mu.Lock()
	q.jobs[id].NotBefore = time.Now().Add(time.Hour)
	q.mu.Unlock()

	claimed := q.claimNext("worker-0")
	assert.Nil(t, claimed, "a job whose NotBefore is in the future must not be claimable")
}

func TestTransitions_IllegalEdgeRejected(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)

	err := q.Cancel(id)
	require.NoError(t, err)

	err = q.Cancel(id)
	require.Error(t, err)
	var jobErr *errs.Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, errs.KindStateConflict, jobErr.Kind)
}

func TestFinish_RetriableFailureRequeuesSameID(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)
	_ = q.claimNext("worker-0")

	q.finish(id, StateFailed, errs.New(errs.KindTranscribeFailed, "boom"), 30*time.Second)

	j, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateQueued, j.State, "a retriable failure requeues under the same job id")
	assert.True(t, j.NotBefore.After(time.Now()))
	assert.Equal(t, "", j.AssignedWorker)
}

func TestFinish_TerminalFailureReleasesPath(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)
	_ = q.claimNext("worker-0")

	q.finish(id, StateFailed, errs.New(errs.KindInputUnreadable, "nope"), 0)

	j, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateFailed, j.State)

	newID, already := q.Enqueue("/a.mp4", PriorityNormal, nil)
	assert.False(t, already, "path must be re-enqueueable once the prior job reaches a terminal state")
	assert.NotEqual(t, id, newID)
}

func TestRetry_MintsNewJobIDWithIncrementedAttempt(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)
	_ = q.claimNext("worker-0")
	q.finish(id, StateFailed, errs.New(errs.KindInputUnreadable, "nope"), 0)

	newID, err := q.Retry(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)

	nj, ok := q.Get(newID)
	require.True(t, ok)
	assert.Equal(t, StateQueued, nj.State)
	assert.Equal(t, 1, nj.Attempt)

	_, err = q.Retry(id)
	assert.Error(t, err, "retrying an already-retried (no longer failed) job must be rejected")
}

func TestReorder_OnlyAffectsQueuedJobs(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)
	require.NoError(t, q.Reorder(id, PriorityHigh))

	j, _ := q.Get(id)
	assert.Equal(t, PriorityHigh, j.Priority)

	_ = q.claimNext("worker-0")
	err := q.Reorder(id, PriorityLow)
	assert.Error(t, err, "a running job cannot be reordered")
}

func TestCleanup_EvictsOldTerminalJobsOnly(t *testing.T) {
	q := New()
	id, _ := q.Enqueue("/a.mp4", PriorityNormal, nil)
	q.mu.Lock()
	q.jobs[id].EnqueuedAt = time.Now().Add(-48 * time.Hour)
	q.mu.Unlock()
	_ = q.claimNext("worker-0")
	q.finish(id, StateSucceeded, nil, 0)

	keepID, _ := q.Enqueue("/b.mp4", PriorityNormal, nil)

	evicted := q.Cleanup(24 * time.Hour)
	assert.Equal(t, 1, evicted)

	_, stillThere := q.Get(keepID)
	assert.True(t, stillThere)
	_, gone := q.Get(id)
	assert.False(t, gone)
}
