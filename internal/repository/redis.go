package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teachhub/telemetry/internal/config"
)

// RedisStore is the shared telemetry store: record values under plain keys
// with a TTL, time indexes as sorted sets, daily-active users as sets.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore builds the client and checks the connection once. A failed
// ping is returned alongside a usable store: go-redis redials on demand, so
// callers may keep the store and let per-call failures drive fallback.
func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	store := &RedisStore{Client: rdb}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return store, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return store, nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func (r *RedisStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisStore) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	pipe := r.Client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	values := make([]string, len(keys))
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[i] = val
	}
	return values, nil
}

func (r *RedisStore) SortedInsert(ctx context.Context, collection, member string, score float64) error {
	return r.Client.ZAdd(ctx, collection, redis.Z{Score: score, Member: member}).Err()
}

// SortedRangeByScore returns members with min <= score <= max, highest
// score first. A non-positive limit means no limit.
func (r *RedisStore) SortedRangeByScore(ctx context.Context, collection string, max, min float64, offset, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.Client.ZRevRangeByScore(ctx, collection, &redis.ZRangeBy{
		Max:    formatScore(max),
		Min:    formatScore(min),
		Offset: offset,
		Count:  limit,
	}).Result()
}

func (r *RedisStore) SortedRangeByRank(ctx context.Context, collection string, start, stop int64) ([]string, error) {
	return r.Client.ZRevRange(ctx, collection, start, stop).Result()
}

func (r *RedisStore) SortedRemoveByScore(ctx context.Context, collection string, min, max float64) (int64, error) {
	return r.Client.ZRemRangeByScore(ctx, collection, formatScore(min), formatScore(max)).Result()
}

func (r *RedisStore) SetAdd(ctx context.Context, collection, member string) error {
	return r.Client.SAdd(ctx, collection, member).Err()
}

func (r *RedisStore) SetCardinality(ctx context.Context, collection string) (int64, error) {
	return r.Client.SCard(ctx, collection).Result()
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.Client.Expire(ctx, key, ttl).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// OpenConnections reports the client's pooled connections.
func (r *RedisStore) OpenConnections() int {
	return int(r.Client.PoolStats().TotalConns)
}

func (r *RedisStore) Close() error {
	return r.Client.Close()
}

func formatScore(score float64) string {
	switch {
	case math.IsInf(score, 1):
		return "+inf"
	case math.IsInf(score, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(score, 'f', -1, 64)
	}
}
