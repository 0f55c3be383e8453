package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrThreadNotFound is returned for unknown thread ids.
var ErrThreadNotFound = errors.New("thread not found")

// Index keeps gallery metadata for fast listing, newest first.
type Index interface {
	Put(ctx context.Context, meta Meta) error
	Get(ctx context.Context, id string) (Meta, error)
	List(ctx context.Context, offset, limit int) ([]Meta, int, error)
}

const (
	redisMetaKey = "detailsmatter:gallery:meta"
	redisTimeKey = "detailsmatter:gallery:by_time"
)

// RedisIndex stores metadata in a hash and orders it with a sorted set
// scored by publish time.
type RedisIndex struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Index = (*RedisIndex)(nil)

func NewRedisIndex(client *redis.Client, logger *zap.Logger) *RedisIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisIndex{client: client, logger: logger.Named("gallery_index")}
}

func (r *RedisIndex) Put(ctx context.Context, meta Meta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode thread meta: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, redisMetaKey, meta.ID, raw)
	pipe.ZAdd(ctx, redisTimeKey, redis.Z{Score: float64(meta.Timestamp.UnixMilli()), Member: meta.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("failed to index thread", zap.String("id", meta.ID), zap.Error(err))
		return fmt.Errorf("failed to index thread: %w", err)
	}
	return nil
}

func (r *RedisIndex) Get(ctx context.Context, id string) (Meta, error) {
	raw, err := r.client.HGet(ctx, redisMetaKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return Meta{}, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read thread meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return Meta{}, fmt.Errorf("failed to decode thread meta: %w", err)
	}
	return meta, nil
}

func (r *RedisIndex) List(ctx context.Context, offset, limit int) ([]Meta, int, error) {
	total, err := r.client.ZCard(ctx, redisTimeKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count threads: %w", err)
	}

	ids, err := r.client.ZRevRange(ctx, redisTimeKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list threads: %w", err)
	}
	if len(ids) == 0 {
		return nil, int(total), nil
	}

	vals, err := r.client.HMGet(ctx, redisMetaKey, ids...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read thread meta: %w", err)
	}

	out := make([]Meta, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.logger.Warn("indexed thread without meta", zap.String("id", ids[i]))
			continue
		}
		var meta Meta
		if err := json.Unmarshal([]byte(s), &meta); err != nil {
			r.logger.Warn("skipping unreadable thread meta", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, meta)
	}
	return out, int(total), nil
}

// MemoryIndex is an in-process Index.
type MemoryIndex struct {
	metas map[string]Meta
	mu    sync.RWMutex
}

var _ Index = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{metas: make(map[string]Meta)}
}

func (m *MemoryIndex) Put(ctx context.Context, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[meta.ID] = meta
	return nil
}

func (m *MemoryIndex) Get(ctx context.Context, id string) (Meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.metas[id]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return meta, nil
}

func (m *MemoryIndex) List(ctx context.Context, offset, limit int) ([]Meta, int, error) {
	m.mu.RLock()
	all := make([]Meta, 0, len(m.metas))
	for _, meta := range m.metas {
		all = append(all, meta)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID > all[j].ID
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}
