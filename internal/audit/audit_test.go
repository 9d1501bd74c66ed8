package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexcoop/archivist/internal/config"
)

type fakeShows struct {
	show Show
	ok   bool
	err  error
}

func (f fakeShows) LatestShowForLocation(ctx context.Context, location string) (Show, bool, error) {
	return f.show, f.ok, f.err
}

type fakeVODs struct {
	vodID string
	ok    bool
	err   error
}

func (f fakeVODs) LatestVODForShow(ctx context.Context, showID string) (string, bool, error) {
	return f.vodID, f.ok, f.err
}

type fakePresence struct {
	has bool
	err error
}

func (f fakePresence) HasCaptions(ctx context.Context, vodID string) (bool, error) {
	return f.has, f.err
}

type fakeDedup struct {
	alerted   map[string]bool
	recorded  []string
}

func newFakeDedup() *fakeDedup { return &fakeDedup{alerted: map[string]bool{}} }

func (f *fakeDedup) AlertedToday(ctx context.Context, cityID, vodID, day string) (bool, error) {
	return f.alerted[cityID+vodID+day], nil
}

func (f *fakeDedup) RecordAlert(ctx context.Context, cityID, vodID, day string) error {
	f.recorded = append(f.recorded, cityID+vodID+day)
	f.alerted[cityID+vodID+day] = true
	return nil
}

type fakeAlerter struct {
	alerts []Alert
	err    error
}

func (f *fakeAlerter) Alert(ctx context.Context, a Alert) error {
	f.alerts = append(f.alerts, a)
	return f.err
}

func servers() map[string]config.FlexServer {
	return map[string]config.FlexServer{
		"flex-1": {CityID: "flex-1", ChannelID: "5"},
	}
}

func TestAuditor_MissingCaptionsEmitsAlertOnce(t *testing.T) {
	shows := fakeShows{show: Show{ID: "42", Date: time.Now()}, ok: true}
	vods := fakeVODs{vodID: "vod-7", ok: true}
	present := fakePresence{has: false}
	dedup := newFakeDedup()
	alerter := &fakeAlerter{}

	a := New(shows, vods, present, dedup, alerter, servers())

	r1 := a.Run(context.Background())
	require.Len(t, r1.Cities, 1)
	assert.True(t, r1.Cities[0].Alerted)
	assert.Len(t, alerter.alerts, 1)

	r2 := a.Run(context.Background())
	assert.False(t, r2.Cities[0].Alerted, "a second alert on the same day must be deduped")
	assert.Len(t, alerter.alerts, 1)
}

func TestAuditor_CaptionsPresentNoAlert(t *testing.T) {
	shows := fakeShows{show: Show{ID: "42"}, ok: true}
	vods := fakeVODs{vodID: "vod-7", ok: true}
	present := fakePresence{has: true}
	alerter := &fakeAlerter{}

	a := New(shows, vods, present, newFakeDedup(), alerter, servers())
	r := a.Run(context.Background())

	assert.True(t, r.Cities[0].HasCaptions)
	assert.False(t, r.Cities[0].Alerted)
	assert.Empty(t, alerter.alerts)
}

func TestAuditor_UpstreamFailureIsInconclusiveNotError(t *testing.T) {
	shows := fakeShows{err: errors.New("network down")}
	a := New(shows, fakeVODs{}, fakePresence{}, newFakeDedup(), &fakeAlerter{}, servers())

	r := a.Run(context.Background())
	require.Len(t, r.Cities, 1)
	assert.True(t, r.Cities[0].Inconclusive)
	assert.False(t, r.Cities[0].Alerted)
}

func TestAuditor_NoShowFoundIsInconclusive(t *testing.T) {
	a := New(fakeShows{ok: false}, fakeVODs{}, fakePresence{}, newFakeDedup(), &fakeAlerter{}, servers())
	r := a.Run(context.Background())
	assert.True(t, r.Cities[0].Inconclusive)
}
