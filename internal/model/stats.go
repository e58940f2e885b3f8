package model

type ErrorStats struct {
	Total        int            `json:"total"`
	ByLevel      map[string]int `json:"by_level"`
	ByEndpoint   map[string]int `json:"by_endpoint"`
	ByStatusCode map[string]int `json:"by_status_code"`
	Trend        []int          `json:"trend"`
}

type ResponseTimeStats struct {
	Avg float64 `json:"avg"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type EndpointLatency struct {
	Endpoint string  `json:"endpoint"`
	AvgTime  float64 `json:"avg_time"`
	Count    int     `json:"count"`
}

type SystemMetricsSummary struct {
	MemoryUsage       float64 `json:"memory_usage"`
	CPUUsage          float64 `json:"cpu_usage"`
	DatabaseQueryTime float64 `json:"database_query_time"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
}

type PerformanceStats struct {
	ResponseTime     ResponseTimeStats    `json:"response_time"`
	Throughput       float64              `json:"throughput"`
	ErrorRate        float64              `json:"error_rate"`
	SlowestEndpoints []EndpointLatency    `json:"slowest_endpoints"`
	SystemMetrics    SystemMetricsSummary `json:"system_metrics"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type UserEngagement struct {
	// AverageSessionDuration is in milliseconds.
	AverageSessionDuration float64 `json:"average_session_duration"`
	AverageEventsPerUser   float64 `json:"average_events_per_user"`
	BounceRate             float64 `json:"bounce_rate"`
}

type AnalyticsSummary struct {
	TotalEvents       int            `json:"total_events"`
	UniqueUsers       int            `json:"unique_users"`
	TopEvents         []NamedCount   `json:"top_events"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	PlatformBreakdown map[string]int `json:"platform_breakdown"`
	UserEngagement    UserEngagement `json:"user_engagement"`
	Trends            []int          `json:"trends"`
}

type DailyActiveUsers struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// FunnelSteps are counted by presence, not by order of traversal.
var FunnelSteps = []string{"page_view", "search", "resource_view", "download", "share"}

type UserJourney struct {
	Events []*BehaviorEvent `json:"events"`
	// Duration is in milliseconds.
	Duration         int64          `json:"duration"`
	Pages            []string       `json:"pages"`
	Actions          []string       `json:"actions"`
	ConversionFunnel map[string]int `json:"conversion_funnel"`
}
