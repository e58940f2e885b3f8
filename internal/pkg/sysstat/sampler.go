// Package sysstat reads host resource usage for health snapshots.
package sysstat

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/logger"
)

// Sampler implements service.ResourceSampler on top of gopsutil. Individual
// probes that fail report 0 instead of failing the whole sample.
type Sampler struct {
	diskPath    string
	cpuInterval time.Duration
	connections func() int
	log         *slog.Logger

	// overridable in tests
	memoryPercent func(ctx context.Context) (float64, error)
	cpuPercent    func(ctx context.Context, interval time.Duration) (float64, error)
	diskPercent   func(ctx context.Context, path string) (float64, error)
}

// NewSampler builds a sampler for the filesystem mounted at diskPath.
// connections may be nil; it reports open store connections.
func NewSampler(diskPath string, connections func() int) *Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{
		diskPath:      diskPath,
		cpuInterval:   200 * time.Millisecond,
		connections:   connections,
		log:           logger.Component("sysstat"),
		memoryPercent: memoryPercent,
		cpuPercent:    cpuPercent,
		diskPercent:   diskPercent,
	}
}

func (s *Sampler) Sample(ctx context.Context) model.ResourceMetrics {
	var out model.ResourceMetrics

	if v, err := s.memoryPercent(ctx); err != nil {
		s.log.Debug("memory sample failed", "error", err)
	} else {
		out.MemoryUsage = round2(v)
	}
	if v, err := s.cpuPercent(ctx, s.cpuInterval); err != nil {
		s.log.Debug("cpu sample failed", "error", err)
	} else {
		out.CPUUsage = round2(v)
	}
	if v, err := s.diskPercent(ctx, s.diskPath); err != nil {
		s.log.Debug("disk sample failed", "path", s.diskPath, "error", err)
	} else {
		out.DiskUsage = round2(v)
	}
	if s.connections != nil {
		out.ActiveConnections = s.connections()
	}
	return out
}

func memoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func cpuPercent(ctx context.Context, interval time.Duration) (float64, error) {
	values, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return values[0], nil
}

func diskPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
