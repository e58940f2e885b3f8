package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/teachhub/telemetry/internal/pkg/metrics"
)

var errStoreDisabled = errors.New("telemetry store not configured")

const windowPageSize = 5000

// durable wraps every store call with a bounded timeout and the failure
// accounting shared by the trackers.
type durable struct {
	tracker string
	store   TelemetryStore
	timeout time.Duration
	log     *slog.Logger
}

func (d *durable) call(ctx context.Context, op string, fn func(ctx context.Context, s TelemetryStore) error) error {
	if d.store == nil {
		return errStoreDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeoutOrDefault())
	defer cancel()
	if err := fn(ctx, d.store); err != nil {
		metrics.StoreFailures.WithLabelValues(d.tracker, op).Inc()
		d.log.Warn("store operation failed", "op", op, "error", err)
		return err
	}
	return nil
}

func (d *durable) timeoutOrDefault() time.Duration {
	if d.timeout <= 0 {
		return 2 * time.Second
	}
	return d.timeout
}

// fallback records that a read was served from the buffer.
func (d *durable) fallback(op string, err error) {
	metrics.FallbackReads.WithLabelValues(d.tracker).Inc()
	if !errors.Is(err, errStoreDisabled) {
		d.log.Debug("serving read from buffer", "op", op)
	}
}

// resolve loads the records behind index members. Members that have
// expired or fail to parse are skipped.
func resolve[T any](ctx context.Context, d *durable, prefix string, ids []string) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefix + id
	}
	var raws []string
	err := d.call(ctx, "mget", func(ctx context.Context, s TelemetryStore) error {
		var err error
		raws, err = s.MultiGet(ctx, keys)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T](d, raws), nil
}

func decodeAll[T any](d *durable, raws []string) []*T {
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		if raw == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			metrics.DecodeFailures.WithLabelValues(d.tracker).Inc()
			d.log.Debug("skipping malformed record", "error", err)
			continue
		}
		out = append(out, &rec)
	}
	return out
}

// rangeWindow reads index members scored within [from, to], newest first.
func (d *durable) rangeWindow(ctx context.Context, collection string, from, to time.Time, limit int64) ([]string, error) {
	var ids []string
	err := d.call(ctx, "zrange", func(ctx context.Context, s TelemetryStore) error {
		var err error
		ids, err = s.SortedRangeByScore(ctx, collection, scoreOf(to), scoreOf(from), 0, limit)
		return err
	})
	return ids, err
}

// windowRecords resolves every member of collection scored within
// [from, to], newest first, paging through the index so no window is
// truncated.
func windowRecords[T any](ctx context.Context, d *durable, collection, prefix string, from, to time.Time) ([]*T, error) {
	out := []*T{}
	for offset := int64(0); ; offset += windowPageSize {
		var ids []string
		err := d.call(ctx, "zrange", func(ctx context.Context, s TelemetryStore) error {
			var err error
			ids, err = s.SortedRangeByScore(ctx, collection, scoreOf(to), scoreOf(from), offset, windowPageSize)
			return err
		})
		if err != nil {
			return nil, err
		}
		page, err := resolve[T](ctx, d, prefix, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(ids) < windowPageSize {
			return out, nil
		}
	}
}

// persist stores value under key with ttl and adds it to every index.
func (d *durable) persist(ctx context.Context, key, id, value string, ttl time.Duration, score float64, indexes ...string) {
	err := d.call(ctx, "set", func(ctx context.Context, s TelemetryStore) error {
		return s.SetWithExpiry(ctx, key, value, ttl)
	})
	if err != nil {
		return
	}
	for _, index := range indexes {
		_ = d.call(ctx, "zadd", func(ctx context.Context, s TelemetryStore) error {
			return s.SortedInsert(ctx, index, id, score)
		})
	}
}

// prune removes index entries scored before cutoff.
func (d *durable) prune(ctx context.Context, collection string, cutoff time.Time) (int64, error) {
	var removed int64
	err := d.call(ctx, "zremrange", func(ctx context.Context, s TelemetryStore) error {
		var err error
		removed, err = s.SortedRemoveByScore(ctx, collection, negInf, scoreOf(cutoff)-1)
		return err
	})
	return removed, err
}
