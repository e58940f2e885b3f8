package service

import (
	"context"
	"time"

	"github.com/teachhub/telemetry/internal/model"
)

// HealthProbe checks one dependency for the system health snapshot.
type HealthProbe interface {
	Name() string
	Probe(ctx context.Context) model.DependencyStatus
}

// PingProbe reports a dependency as down when ping fails and as degraded
// when it answers slower than the slow threshold.
type PingProbe struct {
	name    string
	ping    func(ctx context.Context) error
	timeout time.Duration
	slow    time.Duration
}

func NewPingProbe(name string, ping func(ctx context.Context) error, timeout, slow time.Duration) *PingProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if slow <= 0 {
		slow = time.Second
	}
	return &PingProbe{name: name, ping: ping, timeout: timeout, slow: slow}
}

func NewStoreProbe(store TelemetryStore, timeout, slow time.Duration) *PingProbe {
	return NewPingProbe("redis", store.Ping, timeout, slow)
}

func NewArchiveProbe(archive ErrorArchive, timeout, slow time.Duration) *PingProbe {
	return NewPingProbe("database", archive.Ping, timeout, slow)
}

func (p *PingProbe) Name() string { return p.name }

func (p *PingProbe) Probe(ctx context.Context) model.DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	latency := time.Since(start)

	status := model.DependencyStatus{Status: model.ServiceUp, LatencyMs: latency.Milliseconds()}
	switch {
	case err != nil:
		status.Status = model.ServiceDown
		status.Message = err.Error()
	case latency > p.slow:
		status.Status = model.ServiceDegraded
		status.Message = "slow response"
	}
	return status
}
