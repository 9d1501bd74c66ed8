// Package scheduler implements C6: the autopriority sweep, HELO sync, and
// caption-audit cadences, grounded on xg2g's internal/dvr.Scheduler
// (injectable Clock/Timer for deterministic tests, jittered interval loop).
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flexcoop/archivist/internal/log"
)

// Clock abstracts time for testability, grounded verbatim on dvr.Clock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer abstracts time.Timer for testability.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time             { return time.Now() }
func (RealClock) NewTimer(d time.Duration) Timer { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Task is one periodic unit of work the Scheduler drives. Name is used in
// logs; Run should return quickly-failing errors (they're logged and the
// loop continues, per spec.md §7 "Scheduler ... log and continue").
type Task struct {
	Name     string
	Interval time.Duration
	Jitter   time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a set of independent periodic Tasks, each on its own
// jittered interval loop, grounded on dvr.Scheduler.loop.
type Scheduler struct {
	clock  Clock
	logger zerolog.Logger

	mu    sync.Mutex
	tasks []Task
}

// New constructs a Scheduler using the real wall clock.
func New() *Scheduler {
	return &Scheduler{clock: RealClock{}, logger: log.WithComponent("scheduler")}
}

// WithClock overrides the clock (for tests).
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// AddTask registers a periodic task. Call before Start.
func (s *Scheduler) AddTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

// Start launches one goroutine per registered task. It returns immediately;
// tasks stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		go s.loop(ctx, t)
	}
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	logger := s.logger.With().Str("task", t.Name).Logger()
	timer := s.clock.NewTimer(s.nextDelay(t))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			if err := t.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("scheduled task failed; continuing")
			}
			timer.Reset(s.nextDelay(t))
		}
	}
}

func (s *Scheduler) nextDelay(t Task) time.Duration {
	if t.Jitter <= 0 {
		return t.Interval
	}
	// #nosec G404 -- jitter does not need cryptographic randomness.
	offset := time.Duration(rand.Int63n(int64(t.Jitter)))
	return t.Interval + offset
}

// NextDailyAnchor computes the next occurrence of hh:mm in the named
// location relative to now, used for the "daily anchor at a configured
// local time" cadence (spec.md §4.6).
func NextDailyAnchor(now time.Time, hhmm string, location *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, location)
	if err != nil {
		return time.Time{}, err
	}
	nowInLoc := now.In(location)
	anchor := time.Date(nowInLoc.Year(), nowInLoc.Month(), nowInLoc.Day(), t.Hour(), t.Minute(), 0, 0, location)
	if !anchor.After(nowInLoc) {
		anchor = anchor.AddDate(0, 0, 1)
	}
	return anchor, nil
}
