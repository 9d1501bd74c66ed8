// Package monitor implements C12: health probe aggregation and the queue
// depth surface, grounded on xg2g's internal/health.Manager (checker
// registry, liveness vs. aggregate status, cached probe fan-out).
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/flexcoop/archivist/internal/log"
)

// Status is the aggregate or per-probe health state (spec.md §4.12).
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// CheckResult is one probe's outcome.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker is one named health probe. Required probes drive the aggregate
// to critical once they've failed continuously for longer than the
// Manager's grace window (spec.md §4.12: "critical iff a required probe
// has failed for > grace window").
type Checker interface {
	Name() string
	Required() bool
	Check(ctx context.Context) CheckResult
}

// Report is the full aggregate health response.
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Manager runs registered Checkers and aggregates their results, tracking
// how long each required probe has been continuously failing so a
// transient blip degrades rather than immediately flips to critical.
type Manager struct {
	grace time.Duration

	mu           sync.Mutex
	checkers     []Checker
	failingSince map[string]time.Time
}

// NewManager constructs a Manager. grace is the continuous-failure window
// a required probe must exceed before the aggregate status becomes
// critical; spec.md §4.12 leaves the exact value to deployment, so callers
// supply it explicitly.
func NewManager(grace time.Duration) *Manager {
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	return &Manager{grace: grace, failingSince: make(map[string]time.Time)}
}

// Register adds a Checker to the managed set.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Run executes every registered checker and returns the aggregate Report.
func (m *Manager) Run(ctx context.Context) Report {
	logger := log.WithComponent("monitor")

	m.mu.Lock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.Unlock()

	now := time.Now()
	checks := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy

	for _, c := range checkers {
		res := c.Check(ctx)
		checks[c.Name()] = res

		m.mu.Lock()
		if res.Status != StatusHealthy {
			if _, failing := m.failingSince[c.Name()]; !failing {
				m.failingSince[c.Name()] = now
			}
		} else {
			delete(m.failingSince, c.Name())
		}
		since, failing := m.failingSince[c.Name()]
		m.mu.Unlock()

		if res.Status == StatusHealthy {
			continue
		}
		if c.Required() && failing && now.Sub(since) > m.grace {
			overall = StatusCritical
			logger.Error().Str("probe", c.Name()).Dur("failing_for", now.Sub(since)).Msg("required probe past grace window")
			continue
		}
		if overall != StatusCritical {
			overall = StatusDegraded
		}
	}

	return Report{Status: overall, Timestamp: now, Checks: checks}
}

// FuncChecker adapts a plain function into a Checker, grounded on
// health.ReceiverChecker's callback-wrapping shape.
type FuncChecker struct {
	name     string
	required bool
	fn       func(ctx context.Context) error
}

// NewFuncChecker builds a Checker from fn: fn returning nil is healthy,
// any error is unhealthy.
func NewFuncChecker(name string, required bool, fn func(ctx context.Context) error) FuncChecker {
	return FuncChecker{name: name, required: required, fn: fn}
}

func (f FuncChecker) Name() string     { return f.name }
func (f FuncChecker) Required() bool   { return f.required }
func (f FuncChecker) Check(ctx context.Context) CheckResult {
	if err := f.fn(ctx); err != nil {
		return CheckResult{Status: StatusCritical, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// HeartbeatChecker reports degraded once a scheduler task hasn't ticked
// within maxAge (spec.md §4.12 "scheduler heartbeat within threshold").
type HeartbeatChecker struct {
	name      string
	required  bool
	maxAge    time.Duration
	lastBeat  func() time.Time
}

// NewHeartbeatChecker builds a Checker from a function returning the last
// observed tick time for a scheduled task.
func NewHeartbeatChecker(name string, required bool, maxAge time.Duration, lastBeat func() time.Time) HeartbeatChecker {
	return HeartbeatChecker{name: name, required: required, maxAge: maxAge, lastBeat: lastBeat}
}

func (h HeartbeatChecker) Name() string   { return h.name }
func (h HeartbeatChecker) Required() bool { return h.required }

func (h HeartbeatChecker) Check(ctx context.Context) CheckResult {
	last := h.lastBeat()
	if last.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no heartbeat observed yet"}
	}
	age := time.Since(last)
	if age > h.maxAge {
		return CheckResult{Status: StatusDegraded, Message: "heartbeat stale"}
	}
	return CheckResult{Status: StatusHealthy}
}
