// Package counters implements spec.md §4.6/§4.12's sweep counters:
// Prometheus gauges/counters for process-local observability, mirrored
// best-effort into a per-city Redis hash for cross-process visibility.
// Grounded on xg2g's internal/metrics package (promauto registration style)
// and xg2g's Redis-backed cache usage for the mirrored hash.
package counters

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/flexcoop/archivist/internal/log"
)

var (
	scannedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivist_scanned_total",
		Help: "Total video assets observed across all sweeps.",
	})
	enqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivist_enqueued_total",
		Help: "Total caption jobs enqueued across all sweeps.",
	})
	skippedCaptionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivist_skipped_captioned_total",
		Help: "Total assets skipped because a caption file already exists.",
	})
	skippedAlreadyQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivist_skipped_already_queued_total",
		Help: "Total assets skipped because they were already present in Seen-Set or already held by the job queue.",
	})
	cityEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivist_city_enqueued_total",
		Help: "Total caption jobs enqueued, partitioned by city.",
	}, []string{"city"})
)

// Sink records sweep outcomes to Prometheus and (best-effort) to a
// Redis-mirrored per-city hash. Metric emission errors never propagate
// (spec.md §4.12: "incremented best-effort").
type Sink struct {
	redis *redis.Client
}

// NewSink constructs a Sink. redisClient may be nil, in which case only the
// in-process Prometheus counters are updated.
func NewSink(redisClient *redis.Client) *Sink {
	return &Sink{redis: redisClient}
}

// SweepResult is the set of counters one scheduler sweep (or one-shot CLI
// invocation) produces.
type SweepResult struct {
	Scanned             int
	Enqueued            int
	SkippedCaptioned    int
	SkippedAlreadyQueued int
	EnqueuedByCity       map[string]int
}

// Record applies r to the Prometheus counters and mirrors per-city counts
// into Redis.
func (s *Sink) Record(ctx context.Context, r SweepResult) {
	scannedTotal.Add(float64(r.Scanned))
	enqueuedTotal.Add(float64(r.Enqueued))
	skippedCaptionedTotal.Add(float64(r.SkippedCaptioned))
	skippedAlreadyQueuedTotal.Add(float64(r.SkippedAlreadyQueued))

	for city, n := range r.EnqueuedByCity {
		cityEnqueuedTotal.WithLabelValues(city).Add(float64(n))
	}

	if s.redis == nil {
		return
	}
	logger := log.WithComponent("counters")
	for city, n := range r.EnqueuedByCity {
		if err := s.redis.HIncrBy(ctx, "archivist:city_enqueued_total", city, int64(n)).Err(); err != nil {
			logger.Warn().Str("city", city).Err(err).Msg("failed to mirror city counter to redis")
		}
	}
	if err := s.redis.IncrBy(ctx, "archivist:scanned_total", int64(r.Scanned)).Err(); err != nil {
		logger.Warn().Err(err).Msg("failed to mirror scanned_total to redis")
	}
	if err := s.redis.IncrBy(ctx, "archivist:enqueued_total", int64(r.Enqueued)).Err(); err != nil {
		logger.Warn().Err(err).Msg("failed to mirror enqueued_total to redis")
	}
}

// CityTotals reads the mirrored per-city enqueue counts back from Redis.
func (s *Sink) CityTotals(ctx context.Context) (map[string]int, error) {
	if s.redis == nil {
		return map[string]int{}, nil
	}
	raw, err := s.redis.HGetAll(ctx, "archivist:city_enqueued_total").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for city, v := range raw {
		n, _ := strconv.Atoi(v)
		out[city] = n
	}
	return out, nil
}
