package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimer is a manually-fired Timer used by fakeClock.
type fakeTimer struct {
	ch chan time.Time
}

func (f *fakeTimer) C() <-chan time.Time        { return f.ch }
func (f *fakeTimer) Stop() bool                 { return true }
func (f *fakeTimer) Reset(d time.Duration) bool  { return true }

// fakeClock hands out fakeTimers the test can fire directly, avoiding real
// sleeps (grounded on dvr.Scheduler's own injectable-clock test style).
type fakeClock struct {
	timers chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{timers: make(chan *fakeTimer, 8)}
}

func (f *fakeClock) Now() time.Time { return time.Unix(0, 0) }

func (f *fakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{ch: make(chan time.Time, 1)}
	f.timers <- t
	return t
}

func TestScheduler_RunsTaskOnEachFire(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock)

	var runs int32
	s.AddTask(Task{
		Name:     "sweep",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	timer := <-clock.timers
	timer.ch <- time.Unix(1, 0)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_TaskErrorDoesNotStopLoop(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock)

	var runs int32
	s.AddTask(Task{
		Name:     "audit",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&runs, 1)
			if n == 1 {
				return assertErr{}
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	timer := <-clock.timers
	timer.ch <- time.Unix(1, 0)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, 5*time.Millisecond)

	timer.ch <- time.Unix(2, 0)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, 5*time.Millisecond)
}

type assertErr struct{}

func (assertErr) Error() string { return "injected failure" }

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock)

	var runs int32
	s.AddTask(Task{
		Name:     "sweep",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestNextDailyAnchor_RollsToTomorrowWhenPast(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, loc)

	anchor, err := NextDailyAnchor(now, "03:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 2026, anchor.Year())
	assert.Equal(t, time.July, anchor.Month())
	assert.Equal(t, 30, anchor.Day())
	assert.Equal(t, 3, anchor.Hour())
}

func TestNextDailyAnchor_SameDayWhenFuture(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 7, 29, 1, 0, 0, 0, loc)

	anchor, err := NextDailyAnchor(now, "03:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 29, anchor.Day())
}
