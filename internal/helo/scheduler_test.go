package helo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexcoop/archivist/internal/scheduler"
	"github.com/flexcoop/archivist/internal/upstream"
)

func TestCityResolver_PrecedenceOrder(t *testing.T) {
	r := CityResolver{
		ChannelToCity:  map[string]string{"CH1": "flex-1"},
		LocationToCity: map[string]string{"LOC2": "flex-2"},
		CityAliases:    map[string][]string{"flex-3": {"budget workshop"}},
		SingleDeviceID: "flex-9",
	}

	city, ok := r.Resolve(upstream.RunEntry{Channel: "CH1", LocationID: "LOC2"}, "Budget Workshop")
	require.True(t, ok)
	assert.Equal(t, "flex-1", city, "channel mapping wins over location/alias")

	city, ok = r.Resolve(upstream.RunEntry{LocationID: "LOC2"}, "Budget Workshop")
	require.True(t, ok)
	assert.Equal(t, "flex-2", city, "location mapping wins over alias when channel is unmapped")

	city, ok = r.Resolve(upstream.RunEntry{}, "Budget Workshop Session")
	require.True(t, ok)
	assert.Equal(t, "flex-3", city, "alias match wins when channel/location don't resolve")

	city, ok = r.Resolve(upstream.RunEntry{}, "Unrelated Title")
	require.True(t, ok)
	assert.Equal(t, "flex-9", city, "falls back to the single configured device")
}

func TestCityResolver_NoMatchReturnsFalse(t *testing.T) {
	r := CityResolver{}
	_, ok := r.Resolve(upstream.RunEntry{}, "anything")
	assert.False(t, ok)
}

type fakeRunLister struct {
	runs []upstream.RunEntry
}

func (f fakeRunLister) GetRuns(ctx context.Context, start, end time.Time, channel, location string) ([]upstream.RunEntry, error) {
	return f.runs, nil
}

func newRecordingDevice(t *testing.T) (*DeviceClient, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	c := NewDeviceClient(DeviceOptions{RetryBase: time.Millisecond})
	c.base = srv.URL
	return c, &calls
}

func TestScheduler_Tick_UpsertsAndStartsOnSchedule(t *testing.T) {
	device, calls := newRecordingDevice(t)

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	runs := fakeRunLister{runs: []upstream.RunEntry{
		{ID: "r1", ShowID: "show-1", Channel: "CH1", Start: now.Add(-30 * time.Second), End: now.Add(time.Hour)},
	}}
	resolver := CityResolver{ChannelToCity: map[string]string{"CH1": "flex-1"}}

	sched := NewScheduler(runs, map[string]*DeviceClient{"flex-1": device}, resolver, time.Hour, time.Minute)
	sched.WithClock(fixedClock{t: now})

	require.NoError(t, sched.Tick(context.Background()))

	entries := sched.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryQueued, entries[0].State)
	assert.Contains(t, *calls, "/control/record/start")
	assert.Contains(t, *calls, "/control/stream/start")
}

func TestScheduler_Tick_StopsAfterEnd(t *testing.T) {
	device, calls := newRecordingDevice(t)

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	runs := fakeRunLister{runs: []upstream.RunEntry{
		{ID: "r1", ShowID: "show-1", Channel: "CH1", Start: now.Add(-time.Hour), End: now.Add(-time.Minute)},
	}}
	resolver := CityResolver{ChannelToCity: map[string]string{"CH1": "flex-1"}}

	sched := NewScheduler(runs, map[string]*DeviceClient{"flex-1": device}, resolver, time.Hour, 0)
	sched.WithClock(fixedClock{t: now})

	require.NoError(t, sched.Tick(context.Background()))

	entries := sched.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryCompleted, entries[0].State)
	assert.Contains(t, *calls, "/control/record/start", "stop must be preceded by a start attempt even within one tick")
	assert.Contains(t, *calls, "/control/record/stop")
}

func TestScheduler_Tick_SkipsRunsWithNoResolvableCity(t *testing.T) {
	device, _ := newRecordingDevice(t)
	now := time.Now()
	runs := fakeRunLister{runs: []upstream.RunEntry{
		{ID: "r1", ShowID: "show-1", Start: now, End: now.Add(time.Hour)},
	}}
	sched := NewScheduler(runs, map[string]*DeviceClient{"flex-1": device}, CityResolver{}, time.Hour, 0)

	require.NoError(t, sched.Tick(context.Background()))
	assert.Empty(t, sched.Entries())
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }
func (f fixedClock) NewTimer(d time.Duration) scheduler.Timer {
	panic("not used by scheduler.Tick")
}
