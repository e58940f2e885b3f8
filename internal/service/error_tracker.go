package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/logger"
	"github.com/teachhub/telemetry/internal/pkg/metrics"
)

const (
	errorKeyPrefix = "error:"
	errorTimeline  = "errors:timeline"
	statsFetchSize = 1000
)

type ErrorTrackerOptions struct {
	BufferSize     int
	Retention      time.Duration
	StoreTimeout   time.Duration
	WriteQueueSize int
	// More than AlertThreshold errors inside AlertWindow raises a
	// high-rate alert.
	AlertThreshold int
	AlertWindow    time.Duration
	Now            func() time.Time
}

func (o *ErrorTrackerOptions) applyDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.Retention <= 0 {
		o.Retention = 30 * 24 * time.Hour
	}
	if o.AlertThreshold <= 0 {
		o.AlertThreshold = 10
	}
	if o.AlertWindow <= 0 {
		o.AlertWindow = 5 * time.Minute
	}
	if o.Now == nil {
		o.Now = model.Now
	}
}

// ErrorTracker records failures in a bounded buffer and in the shared
// store, and answers recent-error and statistics queries.
type ErrorTracker struct {
	opts    ErrorTrackerOptions
	buffer  *RingBuffer[*model.ErrorRecord]
	store   *durable
	archive ErrorArchive
	alerts  *AlertHub
	writer  *asyncWriter
	log     *slog.Logger
}

// NewErrorTracker wires the tracker. store, archive and alerts may be nil.
func NewErrorTracker(store TelemetryStore, archive ErrorArchive, alerts *AlertHub, opts ErrorTrackerOptions) *ErrorTracker {
	opts.applyDefaults()
	log := logger.Component("error_tracker")
	return &ErrorTracker{
		opts:    opts,
		buffer:  NewRingBuffer[*model.ErrorRecord](opts.BufferSize),
		store:   &durable{tracker: "errors", store: store, timeout: opts.StoreTimeout, log: log},
		archive: archive,
		alerts:  alerts,
		writer:  newAsyncWriter("errors", opts.WriteQueueSize, log),
		log:     log,
	}
}

func (t *ErrorTracker) Name() string { return "errors" }

// TrackError fills defaults, buffers the record and schedules the durable
// write. It never fails; the returned record is the one that was stored.
func (t *ErrorTracker) TrackError(ctx context.Context, partial model.ErrorRecord) *model.ErrorRecord {
	rec := partial
	rec.ID = uuid.NewString()
	rec.Timestamp = t.opts.Now()
	if rec.Level == "" {
		rec.Level = model.LevelError
	}
	if rec.Message == "" {
		rec.Message = model.DefaultErrorMessage
	}
	rec.Metadata = RedactMetadata(rec.Metadata)

	t.buffer.Push(&rec)
	metrics.RecordsTracked.WithLabelValues("errors").Inc()
	metrics.BufferSize.WithLabelValues("errors").Set(float64(t.buffer.Len()))

	stored := rec
	t.writer.Enqueue(func(ctx context.Context) {
		t.persist(ctx, &stored)
	})

	t.checkAlerts(&rec)
	out := rec
	out.Metadata = maps.Clone(rec.Metadata)
	return &out
}

func (t *ErrorTracker) persist(ctx context.Context, rec *model.ErrorRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		t.log.Warn("failed to encode error record", "id", rec.ID, "error", err)
		return
	}
	t.store.persist(ctx, errorKeyPrefix+rec.ID, rec.ID, string(payload), t.opts.Retention, scoreOf(rec.Timestamp), errorTimeline)

	if t.archive != nil && rec.IsCritical() {
		actx, cancel := context.WithTimeout(ctx, t.store.timeoutOrDefault())
		defer cancel()
		if err := t.archive.Insert(actx, rec); err != nil {
			metrics.StoreFailures.WithLabelValues("errors", "archive").Inc()
			t.log.Warn("failed to archive critical error", "id", rec.ID, "error", err)
		}
	}
}

func (t *ErrorTracker) checkAlerts(rec *model.ErrorRecord) {
	since := rec.Timestamp.Add(-t.opts.AlertWindow)
	recent := t.buffer.Count(func(r *model.ErrorRecord) bool {
		return !r.Timestamp.Before(since)
	})
	if recent > t.opts.AlertThreshold {
		metrics.Alerts.WithLabelValues(string(AlertHighErrorRate)).Inc()
		t.log.Warn("high error rate detected", "count", recent, "window", t.opts.AlertWindow.String())
		t.alerts.Publish(Alert{
			Kind:      AlertHighErrorRate,
			Message:   fmt.Sprintf("%d errors in the last %s", recent, t.opts.AlertWindow),
			Count:     recent,
			Timestamp: rec.Timestamp,
		})
	}
	if rec.IsCritical() {
		metrics.Alerts.WithLabelValues(string(AlertCriticalError)).Inc()
		t.log.Error("critical error", "id", rec.ID, "status_code", rec.StatusCode, "endpoint", rec.Endpoint, "message", rec.Message)
		t.alerts.Publish(Alert{
			Kind:      AlertCriticalError,
			Message:   rec.Message,
			ErrorID:   rec.ID,
			Endpoint:  rec.Endpoint,
			Timestamp: rec.Timestamp,
		})
	}
}

// GetRecentErrors returns errors newest first in [offset, offset+limit).
func (t *ErrorTracker) GetRecentErrors(ctx context.Context, limit, offset int) []*model.ErrorRecord {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	err := t.store.call(ctx, "zrevrange", func(ctx context.Context, s TelemetryStore) error {
		var err error
		ids, err = s.SortedRangeByRank(ctx, errorTimeline, int64(offset), int64(offset+limit-1))
		return err
	})
	if err == nil {
		var records []*model.ErrorRecord
		records, err = resolve[model.ErrorRecord](ctx, t.store, errorKeyPrefix, ids)
		if err == nil {
			return records
		}
	}
	t.store.fallback("recent", err)
	return t.buffer.Slice(offset, limit)
}

// GetErrorStats tallies the most recent errors that fall inside w.
func (t *ErrorTracker) GetErrorStats(ctx context.Context, w model.Window) model.ErrorStats {
	w = w.Normalize()
	now := t.opts.Now()
	stats := model.ErrorStats{
		ByLevel:      make(map[string]int),
		ByEndpoint:   make(map[string]int),
		ByStatusCode: make(map[string]int),
	}
	var times []time.Time
	for _, rec := range t.GetRecentErrors(ctx, statsFetchSize, 0) {
		if !inWindow(rec.Timestamp, now, w) {
			continue
		}
		stats.Total++
		stats.ByLevel[string(rec.Level)]++
		if rec.Endpoint != "" {
			stats.ByEndpoint[rec.Endpoint]++
		}
		if rec.StatusCode != 0 {
			stats.ByStatusCode[strconv.Itoa(rec.StatusCode)]++
		}
		times = append(times, rec.Timestamp)
	}
	stats.Trend = trendBuckets(times, now, w)
	return stats
}

// Cleanup drops errors older than the retention horizon from the index,
// the archive and the buffer.
func (t *ErrorTracker) Cleanup(ctx context.Context) {
	cutoff := t.opts.Now().Add(-t.opts.Retention)
	if removed, err := t.store.prune(ctx, errorTimeline, cutoff); err == nil {
		metrics.RetentionRemoved.WithLabelValues("errors").Add(float64(removed))
	}
	if t.archive != nil {
		if err := t.archive.Cleanup(ctx, t.opts.Retention); err != nil {
			t.log.Warn("archive cleanup failed", "error", err)
		}
	}
	dropped := t.buffer.Retain(func(r *model.ErrorRecord) bool {
		return !r.Timestamp.Before(cutoff)
	})
	metrics.BufferSize.WithLabelValues("errors").Set(float64(t.buffer.Len()))
	t.log.Info("error cleanup finished", "cutoff", cutoff, "buffer_dropped", dropped)
}

// BufferLen reports how many records the in-process buffer holds.
func (t *ErrorTracker) BufferLen() int {
	return t.buffer.Len()
}

// Flush waits for scheduled durable writes to complete.
func (t *ErrorTracker) Flush() {
	t.writer.Flush()
}

func (t *ErrorTracker) Close() {
	t.writer.Close()
}
