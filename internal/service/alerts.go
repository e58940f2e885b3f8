package service

import (
	"sync"
	"time"
)

type AlertKind string

const (
	AlertHighErrorRate AlertKind = "high_error_rate"
	AlertCriticalError AlertKind = "critical_error"
)

type Alert struct {
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Count     int       `json:"count,omitempty"`
	ErrorID   string    `json:"error_id,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertHub fans alerts out to live subscribers. Publishing never blocks; a
// subscriber that falls behind misses alerts.
type AlertHub struct {
	mu     sync.RWMutex
	subs   map[int]chan Alert
	nextID int
	size   int
}

func NewAlertHub(subscriberBuffer int) *AlertHub {
	if subscriberBuffer <= 0 {
		subscriberBuffer = 32
	}
	return &AlertHub{subs: make(map[int]chan Alert), size: subscriberBuffer}
}

// Subscribe returns a channel of alerts and a function that ends the
// subscription and closes the channel.
func (h *AlertHub) Subscribe() (<-chan Alert, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Alert, h.size)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *AlertHub) Publish(a Alert) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

func (h *AlertHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
