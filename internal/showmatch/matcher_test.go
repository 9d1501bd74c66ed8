package showmatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	shows []Show
	calls int32
}

func (s *staticLister) ListShows(ctx context.Context) ([]Show, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.shows, nil
}

func TestMatcher_BestMatch_AboveThreshold(t *testing.T) {
	lister := &staticLister{shows: []Show{
		{ID: "42", Title: "Council", Date: date(2024, 1, 15), DurationS: 5400},
	}}
	m := New(lister)

	match, ok, err := m.BestMatch(context.Background(), "2024-01-15 Council.mp4", 5400*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", match.Show.ID)
	assert.GreaterOrEqual(t, match.Score, AutoLinkThreshold)
}

func TestMatcher_BestMatch_BelowThresholdReturnsFalse(t *testing.T) {
	lister := &staticLister{shows: []Show{
		{ID: "1", Title: "Unrelated Topic", Date: date(1999, 1, 1), DurationS: 60},
	}}
	m := New(lister)

	_, ok, err := m.BestMatch(context.Background(), "2024-01-15 Council.mp4", 5400*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatcher_Suggest_TopKAndThreshold(t *testing.T) {
	lister := &staticLister{shows: []Show{
		{ID: "1", Title: "Council", Date: date(2024, 1, 15), DurationS: 5400},
		{ID: "2", Title: "Council Workshop", Date: date(2024, 1, 15), DurationS: 3600},
		{ID: "3", Title: "Nothing Alike", Date: date(1990, 5, 5), DurationS: 1},
	}}
	m := New(lister)

	matches, err := m.Suggest(context.Background(), "council_20240115.mp4", 5398*time.Second, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "1", matches[0].Show.ID, "best score should sort first")
}

func TestMatcher_TieBreak_MostRecentDateThenID(t *testing.T) {
	lister := &staticLister{shows: []Show{
		{ID: "20", Title: "Zzz", Date: date(2024, 1, 1), DurationS: 0},
		{ID: "10", Title: "Zzz", Date: date(2024, 1, 1), DurationS: 0},
	}}
	m := New(lister)

	matches, err := m.Suggest(context.Background(), "zzz.mp4", 0, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "10", matches[0].Show.ID, "equal score+date ties break by lower upstream id")
}

func TestMatcher_CachesShowListWithinTTL(t *testing.T) {
	lister := &staticLister{shows: []Show{{ID: "1", Title: "Council", Date: date(2024, 1, 15)}}}
	m := New(lister)

	_, _, err := m.BestMatch(context.Background(), "2024-01-15 Council.mp4", 0)
	require.NoError(t, err)
	_, _, err = m.BestMatch(context.Background(), "2024-01-15 Council.mp4", 0)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&lister.calls), "a second lookup within the TTL must not refetch the show list")
}
