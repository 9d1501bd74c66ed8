// Package seenset implements C2: a cross-process "already enqueued" set of
// video paths with TTL, grounded on xg2g's internal/cache (Redis-backed
// primary, graceful fallback) and its jobs.writeXMLTV atomic-write pattern
// for the local JSON fallback file.
package seenset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/redis/go-redis/v9"

	"github.com/flexcoop/archivist/internal/log"
)

// DefaultTTL is spec.md §4.2's default TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the seen-set contract from spec.md §4.2.
type Store interface {
	Contains(ctx context.Context, path string) bool
	Mark(ctx context.Context, path string, ttl time.Duration)
	PurgeExpired(ctx context.Context) error
}

// RedisStore is the primary backing: external key-value membership with
// per-key TTL, grounded on cache.RedisCache's dial-and-ping-once pattern.
type RedisStore struct {
	client *redis.Client
}

// redisKey namespaces seen-set entries in the shared Redis keyspace.
func redisKey(path string) string { return "archivist:seenset:" + path }

// NewRedisStore dials Redis and verifies connectivity with a short timeout,
// mirroring cache.NewRedisCache.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Contains(ctx context.Context, path string) bool {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := r.client.Exists(cctx, redisKey(path)).Result()
	if err != nil {
		log.WithComponent("seenset").Warn().Err(err).Str("path", path).Msg("redis exists failed")
		return false
	}
	return n > 0
}

// Mark is best-effort and non-failing per spec.md §4.2: errors are logged
// and swallowed, never returned.
func (r *RedisStore) Mark(ctx context.Context, path string, ttl time.Duration) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := r.client.Set(cctx, redisKey(path), time.Now().Unix(), ttl).Err(); err != nil {
		log.WithComponent("seenset").Warn().Err(err).Str("path", path).Msg("redis mark failed")
	}
}

// PurgeExpired is a no-op for RedisStore: TTL expiry is handled server-side.
func (r *RedisStore) PurgeExpired(ctx context.Context) error { return nil }

// LocalFileStore is the secondary, best-effort fallback: a local JSON file
// of path -> last-seen epoch, written atomically via renameio the way
// jobs.writeXMLTV guarantees readers never observe a partial file.
type LocalFileStore struct {
	path string
	mu   sync.Mutex
}

// NewLocalFileStore opens (without requiring existence of) the given path.
func NewLocalFileStore(path string) *LocalFileStore {
	return &LocalFileStore{path: path}
}

type localRecord struct {
	LastSeenEpoch int64 `json:"last_seen_epoch"`
	TTLSeconds    int64 `json:"ttl_seconds"`
}

func (l *LocalFileStore) load() (map[string]localRecord, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return map[string]localRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[string]localRecord{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]localRecord{}, nil // corrupt file: treat as empty, don't fail
	}
	return out, nil
}

func (l *LocalFileStore) save(records map[string]localRecord) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(l.path)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()
	if _, err := pending.Write(data); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}

func (l *LocalFileStore) Contains(ctx context.Context, path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load()
	if err != nil {
		log.WithComponent("seenset").Warn().Err(err).Msg("local seen-set load failed")
		return false
	}
	rec, ok := records[path]
	if !ok {
		return false
	}
	expiry := time.Unix(rec.LastSeenEpoch, 0).Add(time.Duration(rec.TTLSeconds) * time.Second)
	return time.Now().Before(expiry)
}

func (l *LocalFileStore) Mark(ctx context.Context, path string, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	records, err := l.load()
	if err != nil {
		log.WithComponent("seenset").Warn().Err(err).Msg("local seen-set load failed")
		records = map[string]localRecord{}
	}
	records[path] = localRecord{LastSeenEpoch: time.Now().Unix(), TTLSeconds: int64(ttl / time.Second)}
	if err := l.save(records); err != nil {
		log.WithComponent("seenset").Warn().Err(err).Msg("local seen-set save failed")
	}
}

func (l *LocalFileStore) PurgeExpired(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load()
	if err != nil {
		return err
	}
	now := time.Now()
	changed := false
	for k, rec := range records {
		expiry := time.Unix(rec.LastSeenEpoch, 0).Add(time.Duration(rec.TTLSeconds) * time.Second)
		if now.After(expiry) {
			delete(records, k)
			changed = true
		}
	}
	if changed {
		return l.save(records)
	}
	return nil
}

// Composite queries every backing store and ORs membership, biasing toward
// safety (no duplicate work) per spec.md §4.2. Mark fans out to all stores.
type Composite struct {
	Stores []Store
}

func (c *Composite) Contains(ctx context.Context, path string) bool {
	for _, s := range c.Stores {
		if s.Contains(ctx, path) {
			return true
		}
	}
	return false
}

func (c *Composite) Mark(ctx context.Context, path string, ttl time.Duration) {
	for _, s := range c.Stores {
		s.Mark(ctx, path, ttl)
	}
}

func (c *Composite) PurgeExpired(ctx context.Context) error {
	var firstErr error
	for _, s := range c.Stores {
		if err := s.PurgeExpired(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
