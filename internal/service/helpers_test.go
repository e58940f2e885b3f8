package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/repository"
)

var errUnavailable = errors.New("connection refused")

func newRedisStore(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := repository.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// brokenStore fails every operation, like a Redis that went away.
type brokenStore struct {
	mu    sync.Mutex
	calls int
}

func (b *brokenStore) fail() error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return errUnavailable
}

func (b *brokenStore) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *brokenStore) SetWithExpiry(context.Context, string, string, time.Duration) error {
	return b.fail()
}

func (b *brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, b.fail()
}

func (b *brokenStore) MultiGet(context.Context, []string) ([]string, error) {
	return nil, b.fail()
}

func (b *brokenStore) SortedInsert(context.Context, string, string, float64) error {
	return b.fail()
}

func (b *brokenStore) SortedRangeByScore(context.Context, string, float64, float64, int64, int64) ([]string, error) {
	return nil, b.fail()
}

func (b *brokenStore) SortedRangeByRank(context.Context, string, int64, int64) ([]string, error) {
	return nil, b.fail()
}

func (b *brokenStore) SortedRemoveByScore(context.Context, string, float64, float64) (int64, error) {
	return 0, b.fail()
}

func (b *brokenStore) SetAdd(context.Context, string, string) error { return b.fail() }

func (b *brokenStore) SetCardinality(context.Context, string) (int64, error) {
	return 0, b.fail()
}

func (b *brokenStore) Expire(context.Context, string, time.Duration) error { return b.fail() }

func (b *brokenStore) Ping(context.Context) error { return b.fail() }

// manualClock is a settable time source for the trackers.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeArchive records what the error tracker archives.
type fakeArchive struct {
	mu       sync.Mutex
	inserted []string
	cleaned  []time.Duration
	pingErr  error
}

func (f *fakeArchive) Insert(_ context.Context, rec *model.ErrorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, rec.ID)
	return nil
}

func (f *fakeArchive) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, olderThan)
	return nil
}

func (f *fakeArchive) Ping(context.Context) error { return f.pingErr }

func (f *fakeArchive) Inserted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inserted...)
}

// seedRecord writes a record and its index entries straight into miniredis,
// bypassing the tracker's write queue.
func seedRecord(t *testing.T, mr *miniredis.Miniredis, key string, rec any, ts time.Time, indexes ...string) {
	t.Helper()
	payload, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal %s: %v", key, err)
	}
	if err := mr.Set(key, string(payload)); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
	id := key[strings.IndexByte(key, ':')+1:]
	for _, index := range indexes {
		if _, err := mr.ZAdd(index, scoreOf(ts), id); err != nil {
			t.Fatalf("zadd %s: %v", index, err)
		}
	}
}
