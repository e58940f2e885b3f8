package model

import (
	"fmt"
	"strings"
	"time"
)

// Window is a named relative time range ending now.
type Window string

const (
	WindowHour Window = "hour"
	WindowDay  Window = "day"
	WindowWeek Window = "week"
)

func ParseWindow(raw string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(raw))); w {
	case WindowHour, WindowDay, WindowWeek:
		return w, nil
	case "":
		return WindowDay, nil
	default:
		return "", fmt.Errorf("invalid window %q (expected hour, day or week)", raw)
	}
}

// Normalize maps unknown values to WindowDay.
func (w Window) Normalize() Window {
	switch w {
	case WindowHour, WindowDay, WindowWeek:
		return w
	default:
		return WindowDay
	}
}

func (w Window) Duration() time.Duration {
	switch w.Normalize() {
	case WindowHour:
		return time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (w Window) Minutes() float64 {
	return w.Duration().Minutes()
}

// Buckets is the trend resolution: 5-minute buckets for an hour, hourly
// buckets for a day or a week.
func (w Window) Buckets() int {
	switch w.Normalize() {
	case WindowHour:
		return 12
	case WindowWeek:
		return 168
	default:
		return 24
	}
}
