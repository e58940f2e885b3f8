package model

import (
	"encoding/json"
	"time"
)

type MetricType string

const (
	MetricResponseTime      MetricType = "response_time"
	MetricMemoryUsage       MetricType = "memory_usage"
	MetricCPUUsage          MetricType = "cpu_usage"
	MetricDatabaseQueryTime MetricType = "database_query_time"
	MetricCacheHitRate      MetricType = "cache_hit_rate"
)

// KnownMetricTypes lists the types that get a dedicated index. Other types
// are accepted and stored on the global timeline only.
var KnownMetricTypes = []MetricType{
	MetricResponseTime,
	MetricMemoryUsage,
	MetricCPUUsage,
	MetricDatabaseQueryTime,
	MetricCacheHitRate,
}

// DefaultUnit returns the unit recorded when the caller leaves it empty.
func (t MetricType) DefaultUnit() string {
	switch t {
	case MetricResponseTime, MetricDatabaseQueryTime:
		return "ms"
	case MetricMemoryUsage, MetricCPUUsage, MetricCacheHitRate:
		return "%"
	default:
		return ""
	}
}

func (t MetricType) Known() bool {
	for _, k := range KnownMetricTypes {
		if k == t {
			return true
		}
	}
	return false
}

type MetricRecord struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       MetricType     `json:"type"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Method     string         `json:"method,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (r MetricRecord) MarshalJSON() ([]byte, error) {
	type alias MetricRecord
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias(r), FormatTimestamp(r.Timestamp)})
}

func (r *MetricRecord) UnmarshalJSON(data []byte) error {
	type alias MetricRecord
	aux := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	r.Timestamp = ts
	return nil
}
