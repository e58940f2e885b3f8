package service

import (
	"context"
	"time"

	"github.com/teachhub/telemetry/internal/model"
)

// TelemetryStore is the shared durable store the trackers write through to.
// All sorted ranges are returned highest score first.
type TelemetryStore interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ok=false when the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// MultiGet returns one entry per key; missing keys yield "".
	MultiGet(ctx context.Context, keys []string) ([]string, error)

	SortedInsert(ctx context.Context, collection, member string, score float64) error
	SortedRangeByScore(ctx context.Context, collection string, max, min float64, offset, limit int64) ([]string, error)
	SortedRangeByRank(ctx context.Context, collection string, start, stop int64) ([]string, error)
	SortedRemoveByScore(ctx context.Context, collection string, min, max float64) (int64, error)

	SetAdd(ctx context.Context, collection, member string) error
	SetCardinality(ctx context.Context, collection string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Ping(ctx context.Context) error
}

// ErrorArchive keeps critical errors beyond the store's reach (Postgres).
type ErrorArchive interface {
	Insert(ctx context.Context, entry *model.ErrorRecord) error
	Cleanup(ctx context.Context, olderThan time.Duration) error
	Ping(ctx context.Context) error
}
