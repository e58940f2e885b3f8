package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsTracked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_records_tracked_total",
		Help: "Records accepted by a tracker",
	}, []string{"tracker"})

	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_store_failures_total",
		Help: "Durable store operations that failed or timed out",
	}, []string{"tracker", "op"})

	FallbackReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_fallback_reads_total",
		Help: "Reads served from the in-process buffer because the store failed",
	}, []string{"tracker"})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_decode_failures_total",
		Help: "Stored records skipped because they could not be parsed",
	}, []string{"tracker"})

	DroppedWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_dropped_writes_total",
		Help: "Durable writes dropped because the write queue was full",
	}, []string{"tracker"})

	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_alerts_total",
		Help: "Alert signals emitted by the error tracker",
	}, []string{"kind"})

	RetentionRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_retention_removed_total",
		Help: "Index entries removed by retention cleanup",
	}, []string{"tracker"})

	BufferSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "telemetry_buffer_size",
		Help: "Current number of records held in a tracker's in-process buffer",
	}, []string{"tracker"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)
