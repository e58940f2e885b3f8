package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/logger"
	"github.com/teachhub/telemetry/internal/pkg/metrics"
)

const (
	metricKeyPrefix   = "metric:"
	metricTimeline    = "metrics:timeline"
	metricTypePrefix  = "metrics:type:"
	customMetricType  = model.MetricType("custom")
	maxMetricsListed  = 10000
	slowestEndpointsN = 10
)

type PerformanceMonitorOptions struct {
	BufferSize     int
	Retention      time.Duration
	StoreTimeout   time.Duration
	WriteQueueSize int
	HealthCacheTTL time.Duration
	Now            func() time.Time
}

func (o *PerformanceMonitorOptions) applyDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.Retention <= 0 {
		o.Retention = 7 * 24 * time.Hour
	}
	if o.HealthCacheTTL <= 0 {
		o.HealthCacheTTL = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = model.Now
	}
}

// ResourceSampler reports host resource usage for the health snapshot.
type ResourceSampler interface {
	Sample(ctx context.Context) model.ResourceMetrics
}

// PerformanceMonitor records measured metrics, computes latency statistics
// and maintains a short-lived system health snapshot.
type PerformanceMonitor struct {
	opts    PerformanceMonitorOptions
	buffer  *RingBuffer[*model.MetricRecord]
	store   *durable
	writer  *asyncWriter
	probes  []HealthProbe
	sampler ResourceSampler
	log     *slog.Logger

	seenTypes sync.Map

	healthMu     sync.Mutex
	health       *model.SystemHealth
	healthExpiry time.Time
}

func NewPerformanceMonitor(store TelemetryStore, probes []HealthProbe, sampler ResourceSampler, opts PerformanceMonitorOptions) *PerformanceMonitor {
	opts.applyDefaults()
	log := logger.Component("performance_monitor")
	return &PerformanceMonitor{
		opts:    opts,
		buffer:  NewRingBuffer[*model.MetricRecord](opts.BufferSize),
		store:   &durable{tracker: "metrics", store: store, timeout: opts.StoreTimeout, log: log},
		writer:  newAsyncWriter("metrics", opts.WriteQueueSize, log),
		probes:  probes,
		sampler: sampler,
		log:     log,
	}
}

func (m *PerformanceMonitor) Name() string { return "metrics" }

func (m *PerformanceMonitor) RecordMetric(ctx context.Context, partial model.MetricRecord) *model.MetricRecord {
	rec := partial
	rec.ID = uuid.NewString()
	rec.Timestamp = m.opts.Now()
	if rec.Type == "" {
		rec.Type = customMetricType
	}
	if rec.Unit == "" {
		rec.Unit = rec.Type.DefaultUnit()
	}
	rec.Metadata = RedactMetadata(rec.Metadata)
	m.seenTypes.Store(rec.Type, struct{}{})

	m.buffer.Push(&rec)
	metrics.RecordsTracked.WithLabelValues("metrics").Inc()
	metrics.BufferSize.WithLabelValues("metrics").Set(float64(m.buffer.Len()))

	stored := rec
	m.writer.Enqueue(func(ctx context.Context) {
		payload, err := json.Marshal(&stored)
		if err != nil {
			m.log.Warn("failed to encode metric", "id", stored.ID, "error", err)
			return
		}
		m.store.persist(ctx, metricKeyPrefix+stored.ID, stored.ID, string(payload), m.opts.Retention,
			scoreOf(stored.Timestamp), metricTimeline, metricTypePrefix+string(stored.Type))
	})
	out := rec
	out.Metadata = maps.Clone(rec.Metadata)
	return &out
}

// GetMetrics returns metrics of one type (all types when empty) recorded
// inside w, newest first.
func (m *PerformanceMonitor) GetMetrics(ctx context.Context, metricType model.MetricType, w model.Window, limit int) []*model.MetricRecord {
	if limit <= 0 || limit > maxMetricsListed {
		limit = maxMetricsListed
	}
	w = w.Normalize()
	now := m.opts.Now()
	collection := metricTimeline
	if metricType != "" {
		collection = metricTypePrefix + string(metricType)
	}

	ids, err := m.store.rangeWindow(ctx, collection, windowStart(now, w), now, int64(limit))
	if err == nil {
		var records []*model.MetricRecord
		records, err = resolve[model.MetricRecord](ctx, m.store, metricKeyPrefix, ids)
		if err == nil {
			return records
		}
	}
	m.store.fallback("metrics", err)
	out := m.buffer.Filter(func(r *model.MetricRecord) bool {
		return (metricType == "" || r.Type == metricType) && inWindow(r.Timestamp, now, w)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *PerformanceMonitor) GetPerformanceStats(ctx context.Context, w model.Window) model.PerformanceStats {
	w = w.Normalize()
	stats := model.PerformanceStats{SlowestEndpoints: []model.EndpointLatency{}}

	var (
		latencies []float64
		failures  int
		memory    []float64
		cpu       []float64
		dbQuery   []float64
		cacheHit  []float64
	)
	type endpointAgg struct {
		sum   float64
		count int
	}
	endpoints := make(map[string]*endpointAgg)
	var order []string

	for _, rec := range m.windowMetrics(ctx, w, statsMetricTypes) {
		switch rec.Type {
		case model.MetricResponseTime:
			latencies = append(latencies, rec.Value)
			if rec.StatusCode >= 400 {
				failures++
			}
			if rec.Endpoint != "" {
				agg, ok := endpoints[rec.Endpoint]
				if !ok {
					agg = &endpointAgg{}
					endpoints[rec.Endpoint] = agg
					order = append(order, rec.Endpoint)
				}
				agg.sum += rec.Value
				agg.count++
			}
		case model.MetricMemoryUsage:
			memory = append(memory, rec.Value)
		case model.MetricCPUUsage:
			cpu = append(cpu, rec.Value)
		case model.MetricDatabaseQueryTime:
			dbQuery = append(dbQuery, rec.Value)
		case model.MetricCacheHitRate:
			cacheHit = append(cacheHit, rec.Value)
		}
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)
	stats.ResponseTime = model.ResponseTimeStats{
		Avg: mean(sorted),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
	stats.Throughput = float64(len(latencies)) / w.Minutes()
	if len(latencies) > 0 {
		stats.ErrorRate = float64(failures) / float64(len(latencies))
	}

	for _, name := range order {
		agg := endpoints[name]
		stats.SlowestEndpoints = append(stats.SlowestEndpoints, model.EndpointLatency{
			Endpoint: name,
			AvgTime:  agg.sum / float64(agg.count),
			Count:    agg.count,
		})
	}
	sort.SliceStable(stats.SlowestEndpoints, func(i, j int) bool {
		return stats.SlowestEndpoints[i].AvgTime > stats.SlowestEndpoints[j].AvgTime
	})
	if len(stats.SlowestEndpoints) > slowestEndpointsN {
		stats.SlowestEndpoints = stats.SlowestEndpoints[:slowestEndpointsN]
	}

	stats.SystemMetrics = model.SystemMetricsSummary{
		MemoryUsage:       mean(memory),
		CPUUsage:          mean(cpu),
		DatabaseQueryTime: mean(dbQuery),
		CacheHitRate:      mean(cacheHit),
	}
	return stats
}

// statsMetricTypes are the types GetPerformanceStats aggregates.
var statsMetricTypes = []model.MetricType{
	model.MetricResponseTime,
	model.MetricMemoryUsage,
	model.MetricCPUUsage,
	model.MetricDatabaseQueryTime,
	model.MetricCacheHitRate,
}

// windowMetrics reads every metric of the given types inside w from the
// per-type indexes. Any store failure serves the whole read from the buffer.
func (m *PerformanceMonitor) windowMetrics(ctx context.Context, w model.Window, types []model.MetricType) []*model.MetricRecord {
	now := m.opts.Now()
	from := windowStart(now, w)
	var out []*model.MetricRecord
	for _, t := range types {
		records, err := windowRecords[model.MetricRecord](ctx, m.store, metricTypePrefix+string(t), metricKeyPrefix, from, now)
		if err != nil {
			m.store.fallback("stats", err)
			wanted := make(map[model.MetricType]bool, len(types))
			for _, t := range types {
				wanted[t] = true
			}
			return m.buffer.Filter(func(r *model.MetricRecord) bool {
				return wanted[r.Type] && inWindow(r.Timestamp, now, w)
			})
		}
		out = append(out, records...)
	}
	return out
}

// GetSystemHealth returns the cached snapshot while it is fresh; callers
// inside the cache window share the same instance.
func (m *PerformanceMonitor) GetSystemHealth(ctx context.Context) *model.SystemHealth {
	m.healthMu.Lock()
	defer m.healthMu.Unlock()

	now := m.opts.Now()
	if m.health != nil && now.Before(m.healthExpiry) {
		return m.health
	}

	snapshot := &model.SystemHealth{
		Timestamp: now,
		Services:  make(map[string]model.DependencyStatus, len(m.probes)),
	}
	for _, probe := range m.probes {
		snapshot.Services[probe.Name()] = probe.Probe(ctx)
	}
	if m.sampler != nil {
		snapshot.Metrics = m.sampler.Sample(ctx)
	}
	snapshot.Metrics.ResponseTime = m.recentResponseTime(now)
	snapshot.Status = model.OverallStatus(snapshot.Services)

	m.health = snapshot
	m.healthExpiry = now.Add(m.opts.HealthCacheTTL)
	return snapshot
}

// recentResponseTime averages response-time metrics buffered in the last
// five minutes.
func (m *PerformanceMonitor) recentResponseTime(now time.Time) float64 {
	since := now.Add(-5 * time.Minute)
	recent := m.buffer.Filter(func(r *model.MetricRecord) bool {
		return r.Type == model.MetricResponseTime && !r.Timestamp.Before(since)
	})
	values := make([]float64, len(recent))
	for i, r := range recent {
		values[i] = r.Value
	}
	return mean(values)
}

// SampleHealth feeds the health snapshot's resource figures back in as
// metrics. Run periodically by the scheduler.
func (m *PerformanceMonitor) SampleHealth(ctx context.Context) *model.SystemHealth {
	snapshot := m.GetSystemHealth(ctx)
	meta := map[string]any{"source": "health_check"}
	m.RecordMetric(ctx, model.MetricRecord{Type: model.MetricMemoryUsage, Value: snapshot.Metrics.MemoryUsage, Metadata: meta})
	m.RecordMetric(ctx, model.MetricRecord{Type: model.MetricCPUUsage, Value: snapshot.Metrics.CPUUsage, Metadata: meta})
	if snapshot.Status != model.StatusHealthy {
		m.log.Warn("system health degraded", "status", snapshot.Status, "services", snapshot.Services)
	}
	return snapshot
}

func (m *PerformanceMonitor) Cleanup(ctx context.Context) {
	cutoff := m.opts.Now().Add(-m.opts.Retention)
	collections := []string{metricTimeline}
	seen := make(map[model.MetricType]bool)
	for _, t := range model.KnownMetricTypes {
		seen[t] = true
		collections = append(collections, metricTypePrefix+string(t))
	}
	m.seenTypes.Range(func(key, _ any) bool {
		if t := key.(model.MetricType); !seen[t] {
			collections = append(collections, metricTypePrefix+string(t))
		}
		return true
	})

	for _, collection := range collections {
		removed, err := m.store.prune(ctx, collection, cutoff)
		if err != nil {
			break
		}
		if collection == metricTimeline {
			metrics.RetentionRemoved.WithLabelValues("metrics").Add(float64(removed))
		}
	}
	dropped := m.buffer.Retain(func(r *model.MetricRecord) bool {
		return !r.Timestamp.Before(cutoff)
	})
	metrics.BufferSize.WithLabelValues("metrics").Set(float64(m.buffer.Len()))
	m.log.Info("metric cleanup finished", "cutoff", cutoff, "buffer_dropped", dropped)
}

func (m *PerformanceMonitor) BufferLen() int {
	return m.buffer.Len()
}

func (m *PerformanceMonitor) Flush() {
	m.writer.Flush()
}

func (m *PerformanceMonitor) Close() {
	m.writer.Close()
}
