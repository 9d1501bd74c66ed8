package helo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flexcoop/archivist/internal/errs"
	"github.com/flexcoop/archivist/internal/log"
	"github.com/flexcoop/archivist/internal/scheduler"
	"github.com/flexcoop/archivist/internal/upstream"
)

// EntryState is a ScheduleEntry's lifecycle state (spec.md §4.11 step 5).
type EntryState string

const (
	EntryScheduled EntryState = "scheduled"
	EntryQueued    EntryState = "queued"
	EntryCompleted EntryState = "completed"
	EntryFailed    EntryState = "failed"
)

// Action is the device action pair a schedule entry drives.
type Action string

const (
	ActionRecordStream Action = "record+stream"
	ActionRecordOnly   Action = "record"
	ActionStreamOnly   Action = "stream"
)

// ScheduleEntry is spec.md §4.11's SchedulePlan once upserted into the
// scheduler's tracked state.
type ScheduleEntry struct {
	DeviceID  string
	ShowID    string
	Start     time.Time
	End       time.Time
	Action    Action
	State     EntryState
	LastError string

	startAttempted bool
}

func entryKey(deviceID, showID string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%d|%d", deviceID, showID, start.Unix(), end.Unix())
}

// RunLister fetches scheduled runs from upstream (C9).
type RunLister interface {
	GetRuns(ctx context.Context, start, end time.Time, channel, location string) ([]upstream.RunEntry, error)
}

// CityResolver maps a run to a city id by spec.md §4.11 step 2's
// precedence: channel->city, then location->city, then alias match in show
// title, then single-device fallback.
type CityResolver struct {
	ChannelToCity  map[string]string
	LocationToCity map[string]string
	CityAliases    map[string][]string // cityID -> substrings to match in a show title
	SingleDeviceID string              // used only if exactly one device is configured
}

// Resolve returns the city id a run should be scheduled against.
func (r CityResolver) Resolve(run upstream.RunEntry, showTitle string) (string, bool) {
	if city, ok := r.ChannelToCity[run.Channel]; ok {
		return city, true
	}
	if run.LocationID != "" {
		if city, ok := r.LocationToCity[run.LocationID]; ok {
			return city, true
		}
	}
	lowerTitle := strings.ToLower(showTitle)
	for city, aliases := range r.CityAliases {
		for _, alias := range aliases {
			if alias != "" && strings.Contains(lowerTitle, strings.ToLower(alias)) {
				return city, true
			}
		}
	}
	if r.SingleDeviceID != "" {
		return r.SingleDeviceID, true
	}
	return "", false
}

// Scheduler translates upstream run schedules into per-device capture
// actions (spec.md §4.11).
type Scheduler struct {
	runs     RunLister
	devices  map[string]*DeviceClient
	resolver CityResolver

	lookahead    time.Duration
	preroll      time.Duration
	clock        scheduler.Clock

	mu      sync.Mutex
	entries map[string]*ScheduleEntry
}

// NewScheduler constructs a Scheduler. lookahead and preroll default to
// spec.md §4.11's 120 minutes and 60 seconds when zero.
func NewScheduler(runs RunLister, devices map[string]*DeviceClient, resolver CityResolver, lookahead, preroll time.Duration) *Scheduler {
	if lookahead <= 0 {
		lookahead = 120 * time.Minute
	}
	if preroll < 0 {
		preroll = 60 * time.Second
	}
	return &Scheduler{
		runs:      runs,
		devices:   devices,
		resolver:  resolver,
		lookahead: lookahead,
		preroll:   preroll,
		clock:     scheduler.RealClock{},
		entries:   make(map[string]*ScheduleEntry),
	}
}

// Tick runs one full scheduling pass: fetch runs, upsert schedule entries,
// then drive start/stop transitions for entries whose time has come
// (spec.md §4.11 steps 1-5).
func (s *Scheduler) Tick(ctx context.Context) error {
	logger := log.WithComponent("helo.scheduler")
	now := s.clock.Now()

	runs, err := s.runs.GetRuns(ctx, now, now.Add(s.lookahead), "", "")
	if err != nil {
		return errs.Wrap(errs.KindUpstreamUnavailable, "fetch runs", err)
	}

	for _, run := range runs {
		// upstream.RunEntry carries no show title, so the alias step
		// matches against the run's show id rather than a title.
		cityID, ok := s.resolver.Resolve(run, run.ShowID)
		if !ok {
			logger.Warn().Str("run_id", run.ID).Msg("could not resolve city for run; skipping")
			continue
		}
		if _, known := s.devices[cityID]; !known {
			logger.Warn().Str("city", cityID).Str("run_id", run.ID).Msg("no HELO device configured for resolved city")
			continue
		}
		s.upsertEntry(cityID, run)
	}

	return s.runTriggerPass(ctx, now)
}

func (s *Scheduler) upsertEntry(deviceID string, run upstream.RunEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := run.Start.Add(-s.preroll)
	key := entryKey(deviceID, run.ShowID, start, run.End)
	if _, exists := s.entries[key]; exists {
		return
	}
	s.entries[key] = &ScheduleEntry{
		DeviceID: deviceID,
		ShowID:   run.ShowID,
		Start:    start,
		End:      run.End,
		Action:   ActionRecordStream,
		State:    EntryScheduled,
	}
}

// runTriggerPass implements spec.md §4.11 step 5: start actions for entries
// whose start has passed, stop actions for entries whose end has passed,
// each transitioning state on success and recording LastError on failure.
// The invariant "no stop without a preceding start attempt" is enforced via
// ScheduleEntry.startAttempted.
func (s *Scheduler) runTriggerPass(ctx context.Context, now time.Time) error {
	logger := log.WithComponent("helo.scheduler")

	s.mu.Lock()
	entries := make([]*ScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		device, ok := s.devices[e.DeviceID]
		if !ok {
			continue
		}

		if e.State == EntryScheduled && !now.Before(e.Start) {
			if err := s.start(ctx, device, e); err != nil {
				logger.Error().Str("device", e.DeviceID).Err(err).Msg("start action failed")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}

		if (e.State == EntryScheduled || e.State == EntryQueued) && !now.Before(e.End) {
			if err := s.stop(ctx, device, e); err != nil {
				logger.Error().Str("device", e.DeviceID).Err(err).Msg("stop action failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func (s *Scheduler) start(ctx context.Context, device *DeviceClient, e *ScheduleEntry) error {
	e.startAttempted = true
	if err := device.StartRecord(ctx); err != nil {
		e.State = EntryFailed
		e.LastError = err.Error()
		return err
	}
	if e.Action == ActionRecordStream || e.Action == ActionStreamOnly {
		if err := device.StartStream(ctx); err != nil {
			e.State = EntryFailed
			e.LastError = err.Error()
			return err
		}
	}
	e.State = EntryQueued
	return nil
}

func (s *Scheduler) stop(ctx context.Context, device *DeviceClient, e *ScheduleEntry) error {
	if !e.startAttempted {
		// Invariant: never issue a stop that wasn't preceded by a start attempt.
		e.State = EntryCompleted
		return nil
	}
	if err := device.StopRecord(ctx); err != nil {
		e.State = EntryFailed
		e.LastError = err.Error()
		return err
	}
	if e.Action == ActionRecordStream || e.Action == ActionStreamOnly {
		if err := device.StopStream(ctx); err != nil {
			e.State = EntryFailed
			e.LastError = err.Error()
			return err
		}
	}
	e.State = EntryCompleted
	return nil
}

// WithClock overrides the scheduler's time source (for tests).
func (s *Scheduler) WithClock(c scheduler.Clock) *Scheduler {
	s.clock = c
	return s
}

// Entries returns a snapshot of all tracked schedule entries, for tests and
// diagnostics.
func (s *Scheduler) Entries() []ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}
