package counters

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSink(client)
}

func TestSink_Record_MirrorsCityTotalsToRedis(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	s.Record(ctx, SweepResult{
		Scanned:  10,
		Enqueued: 3,
		EnqueuedByCity: map[string]int{
			"flex-1": 2,
			"flex-2": 1,
		},
	})

	totals, err := s.CityTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, totals["flex-1"])
	assert.Equal(t, 1, totals["flex-2"])
}

func TestSink_Record_AccumulatesAcrossCalls(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	s.Record(ctx, SweepResult{EnqueuedByCity: map[string]int{"flex-1": 1}})
	s.Record(ctx, SweepResult{EnqueuedByCity: map[string]int{"flex-1": 4}})

	totals, err := s.CityTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, totals["flex-1"])
}

func TestSink_NilRedisIsSafe(t *testing.T) {
	s := NewSink(nil)
	s.Record(context.Background(), SweepResult{Scanned: 1})
	totals, err := s.CityTotals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, totals)
}
