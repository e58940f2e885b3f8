package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teachhub/telemetry/internal/model"
)

var testStart = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func TestTrackErrorFillsDefaults(t *testing.T) {
	store, mr := newRedisStore(t)
	tracker := NewErrorTracker(store, nil, nil, ErrorTrackerOptions{})
	defer tracker.Close()

	before := time.Now().Truncate(time.Millisecond)
	rec := tracker.TrackError(context.Background(), model.ErrorRecord{Message: "Simple error"})
	after := time.Now()
	tracker.Flush()

	assert.Equal(t, model.LevelError, rec.Level)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.Before(before))
	assert.False(t, rec.Timestamp.After(after))

	assert.True(t, mr.Exists(errorKeyPrefix+rec.ID))
	assert.Equal(t, 30*24*time.Hour, mr.TTL(errorKeyPrefix+rec.ID))

	recent := tracker.GetRecentErrors(context.Background(), 10, 0)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.ID, recent[0].ID)
	assert.Equal(t, "Simple error", recent[0].Message)
	assert.True(t, recent[0].Timestamp.Equal(rec.Timestamp))
}

func TestTrackErrorEmptyMessage(t *testing.T) {
	tracker := NewErrorTracker(nil, nil, nil, ErrorTrackerOptions{})
	defer tracker.Close()

	rec := tracker.TrackError(context.Background(), model.ErrorRecord{Level: model.LevelWarn})
	assert.Equal(t, model.DefaultErrorMessage, rec.Message)
	assert.Equal(t, model.LevelWarn, rec.Level)
}

func TestErrorBufferKeepsMostRecent(t *testing.T) {
	tracker := NewErrorTracker(nil, nil, nil, ErrorTrackerOptions{BufferSize: 5, AlertThreshold: 1000})
	defer tracker.Close()

	for i := 0; i < 12; i++ {
		tracker.TrackError(context.Background(), model.ErrorRecord{Message: fmt.Sprintf("err-%d", i)})
	}
	assert.Equal(t, 5, tracker.BufferLen())

	recent := tracker.GetRecentErrors(context.Background(), 10, 0)
	require.Len(t, recent, 5)
	for i, rec := range recent {
		assert.Equal(t, fmt.Sprintf("err-%d", 11-i), rec.Message)
	}
}

func TestRecentErrorsFallbackMatchesBuffer(t *testing.T) {
	broken := &brokenStore{}
	tracker := NewErrorTracker(broken, nil, nil, ErrorTrackerOptions{BufferSize: 20, AlertThreshold: 1000})
	defer tracker.Close()

	for i := 0; i < 30; i++ {
		tracker.TrackError(context.Background(), model.ErrorRecord{Message: fmt.Sprintf("err-%d", i)})
	}
	tracker.Flush()

	for _, tc := range []struct{ limit, offset int }{{5, 0}, {5, 3}, {50, 0}, {10, 15}, {10, 25}} {
		got := tracker.GetRecentErrors(context.Background(), tc.limit, tc.offset)
		want := tracker.buffer.Slice(tc.offset, tc.limit)
		require.Len(t, got, len(want), "limit=%d offset=%d", tc.limit, tc.offset)
		for i := range want {
			assert.Equal(t, want[i].ID, got[i].ID)
		}
	}
	assert.Greater(t, broken.Calls(), 0)
}

func TestRecentErrorsPaginatesStore(t *testing.T) {
	store, mr := newRedisStore(t)
	clock := newManualClock(testStart)
	tracker := NewErrorTracker(store, nil, nil, ErrorTrackerOptions{AlertThreshold: 1000, Now: clock.Now})
	defer tracker.Close()

	for i := 0; i < 5; i++ {
		tracker.TrackError(context.Background(), model.ErrorRecord{Message: fmt.Sprintf("err-%d", i)})
		clock.Advance(time.Second)
	}
	tracker.Flush()

	_, err := mr.ZAdd(errorTimeline, model.Score(clock.Now()), "broken")
	require.NoError(t, err)
	require.NoError(t, mr.Set(errorKeyPrefix+"broken", "{not json"))

	page := tracker.GetRecentErrors(context.Background(), 2, 1)
	require.Len(t, page, 2)
	assert.Equal(t, "err-4", page[0].Message)
	assert.Equal(t, "err-3", page[1].Message)

	head := tracker.GetRecentErrors(context.Background(), 3, 0)
	require.Len(t, head, 2)
	assert.Equal(t, "err-4", head[0].Message)
}

func TestErrorStatsTrendSumsToTotal(t *testing.T) {
	store, _ := newRedisStore(t)
	clock := newManualClock(testStart)
	tracker := NewErrorTracker(store, nil, nil, ErrorTrackerOptions{AlertThreshold: 1000, Now: clock.Now})
	defer tracker.Close()

	ctx := context.Background()
	tracker.TrackError(ctx, model.ErrorRecord{Message: "old", Endpoint: "/api/posts", StatusCode: 500})
	clock.Advance(2 * time.Hour)
	for i := 0; i < 6; i++ {
		level := model.LevelError
		if i%3 == 0 {
			level = model.LevelWarn
		}
		tracker.TrackError(ctx, model.ErrorRecord{
			Message:    "boom",
			Level:      level,
			Endpoint:   "/api/comments",
			StatusCode: 400 + i,
		})
		clock.Advance(7 * time.Minute)
	}
	tracker.Flush()

	stats := tracker.GetErrorStats(ctx, model.WindowHour)
	assert.Equal(t, 6, stats.Total)
	assert.Len(t, stats.Trend, 12)
	sum := 0
	for _, c := range stats.Trend {
		sum += c
	}
	assert.Equal(t, stats.Total, sum)
	assert.Equal(t, 2, stats.ByLevel["warn"])
	assert.Equal(t, 4, stats.ByLevel["error"])
	assert.Equal(t, 6, stats.ByEndpoint["/api/comments"])
	assert.Equal(t, 1, stats.ByStatusCode["402"])

	day := tracker.GetErrorStats(ctx, model.WindowDay)
	assert.Equal(t, 7, day.Total)
	assert.Len(t, day.Trend, 24)
}

func TestErrorAlerts(t *testing.T) {
	hub := NewAlertHub(8)
	alerts, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	archive := &fakeArchive{}
	tracker := NewErrorTracker(nil, archive, hub, ErrorTrackerOptions{AlertThreshold: 3, AlertWindow: time.Minute})
	defer tracker.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		tracker.TrackError(ctx, model.ErrorRecord{Message: "slow", Level: model.LevelWarn})
	}
	select {
	case a := <-alerts:
		t.Fatalf("unexpected alert %v", a)
	default:
	}

	tracker.TrackError(ctx, model.ErrorRecord{Message: "slow", Level: model.LevelWarn})
	a := <-alerts
	assert.Equal(t, AlertHighErrorRate, a.Kind)
	assert.Equal(t, 4, a.Count)

	critical := tracker.TrackError(ctx, model.ErrorRecord{Message: "db down", StatusCode: 503, Endpoint: "/api/posts"})
	assert.Equal(t, AlertHighErrorRate, (<-alerts).Kind)
	a = <-alerts
	assert.Equal(t, AlertCriticalError, a.Kind)
	assert.Equal(t, critical.ID, a.ErrorID)
	assert.Equal(t, "/api/posts", a.Endpoint)

	tracker.Flush()
	assert.Equal(t, []string{critical.ID}, archive.Inserted())
}

func TestErrorCleanup(t *testing.T) {
	store, mr := newRedisStore(t)
	clock := newManualClock(testStart)
	archive := &fakeArchive{}
	tracker := NewErrorTracker(store, archive, nil, ErrorTrackerOptions{
		Retention:      time.Hour,
		AlertThreshold: 1000,
		Now:            clock.Now,
	})
	defer tracker.Close()

	ctx := context.Background()
	tracker.TrackError(ctx, model.ErrorRecord{Message: "a"})
	tracker.TrackError(ctx, model.ErrorRecord{Message: "b"})
	clock.Advance(2 * time.Hour)
	kept := tracker.TrackError(ctx, model.ErrorRecord{Message: "c"})
	tracker.Flush()

	tracker.Cleanup(ctx)
	assert.Equal(t, 1, tracker.BufferLen())
	members, err := mr.ZMembers(errorTimeline)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, members)
	assert.Equal(t, []time.Duration{time.Hour}, archive.cleaned)
}

func TestTrackErrorRedactsMetadata(t *testing.T) {
	store, _ := newRedisStore(t)
	tracker := NewErrorTracker(store, nil, nil, ErrorTrackerOptions{})
	defer tracker.Close()

	meta := map[string]any{"password": "hunter2", "community": "math"}
	rec := tracker.TrackError(context.Background(), model.ErrorRecord{Message: "login failed", Metadata: meta})
	tracker.Flush()

	assert.Equal(t, "hunter2", meta["password"])
	assert.Equal(t, "***", rec.Metadata["password"])

	recent := tracker.GetRecentErrors(context.Background(), 1, 0)
	require.Len(t, recent, 1)
	assert.Equal(t, "***", recent[0].Metadata["password"])
	assert.Equal(t, "math", recent[0].Metadata["community"])
}

func TestTrackErrorReturnsCopy(t *testing.T) {
	tracker := NewErrorTracker(nil, nil, nil, ErrorTrackerOptions{})
	defer tracker.Close()

	rec := tracker.TrackError(context.Background(), model.ErrorRecord{
		Message: "boom", Metadata: map[string]any{"component": "feed"},
	})
	rec.Message = "changed"
	rec.Metadata["component"] = "changed"

	buffered := tracker.buffer.Snapshot()
	require.Len(t, buffered, 1)
	assert.Equal(t, "boom", buffered[0].Message)
	assert.Equal(t, "feed", buffered[0].Metadata["component"])
}
