package service

import (
	"math"
	"sort"
	"time"

	"github.com/teachhub/telemetry/internal/model"
)

var negInf = math.Inf(-1)

func scoreOf(t time.Time) float64 {
	return model.Score(t)
}

// windowStart returns the inclusive lower bound of w ending at now.
func windowStart(now time.Time, w model.Window) time.Time {
	return now.Add(-w.Normalize().Duration())
}

func inWindow(t, now time.Time, w model.Window) bool {
	return !t.Before(windowStart(now, w)) && !t.After(now)
}

// percentile indexes the ascending values at floor(n*p); an index past the
// end yields 0.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx < 0 || idx >= len(sorted) {
		return 0
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// trendBuckets splits the window into w.Buckets() equal intervals, oldest
// first, and counts timestamps per interval. Timestamps outside the window
// are ignored, so the buckets always sum to the in-window count.
func trendBuckets(times []time.Time, now time.Time, w model.Window) []int {
	w = w.Normalize()
	n := w.Buckets()
	buckets := make([]int, n)
	start := windowStart(now, w)
	size := w.Duration() / time.Duration(n)
	for _, t := range times {
		if !inWindow(t, now, w) {
			continue
		}
		idx := int(t.Sub(start) / size)
		if idx >= n {
			idx = n - 1
		}
		buckets[idx]++
	}
	return buckets
}

// orderedCounter tallies names and remembers first-encounter order so that
// ties in Top keep that order.
type orderedCounter struct {
	index map[string]int
	items []model.NamedCount
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{index: make(map[string]int)}
}

func (c *orderedCounter) Add(name string) {
	if i, ok := c.index[name]; ok {
		c.items[i].Count++
		return
	}
	c.index[name] = len(c.items)
	c.items = append(c.items, model.NamedCount{Name: name, Count: 1})
}

func (c *orderedCounter) Top(n int) []model.NamedCount {
	out := make([]model.NamedCount, len(c.items))
	copy(out, c.items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
