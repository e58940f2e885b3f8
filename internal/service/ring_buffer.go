package service

import "sync"

// RingBuffer is a bounded in-process list. Once full, each Push overwrites
// the oldest entry. Reads return entries most recent first.
type RingBuffer[T any] struct {
	mu        sync.RWMutex
	maxSize   int
	records   []T
	nextIndex int
}

func NewRingBuffer[T any](maxSize int) *RingBuffer[T] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &RingBuffer[T]{
		maxSize: maxSize,
		records: make([]T, 0, maxSize),
	}
}

func (b *RingBuffer[T]) Push(entry T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *RingBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

func (b *RingBuffer[T]) Cap() int {
	return b.maxSize
}

// at returns the i-th most recent entry. nextIndex stays 0 until the
// buffer first fills. Caller holds the lock.
func (b *RingBuffer[T]) at(i int) T {
	total := len(b.records)
	return b.records[(b.nextIndex+total-1-i)%total]
}

// Slice returns up to limit entries starting offset entries back from the
// most recent one.
func (b *RingBuffer[T]) Slice(offset, limit int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := len(b.records)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= total {
		return []T{}
	}
	end := min(offset+limit, total)
	out := make([]T, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, b.at(i))
	}
	return out
}

func (b *RingBuffer[T]) Snapshot() []T {
	return b.Slice(0, b.maxSize)
}

// Filter returns matching entries, most recent first.
func (b *RingBuffer[T]) Filter(keep func(T) bool) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, 0)
	for i := 0; i < len(b.records); i++ {
		if entry := b.at(i); keep(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// Count returns the number of matching entries.
func (b *RingBuffer[T]) Count(match func(T) bool) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, entry := range b.records {
		if match(entry) {
			n++
		}
	}
	return n
}

// Retain drops every entry for which keep returns false and returns how
// many were removed. Relative order of the survivors is preserved.
func (b *RingBuffer[T]) Retain(keep func(T) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := len(b.records)
	kept := make([]T, 0, b.maxSize)
	for i := total - 1; i >= 0; i-- {
		if entry := b.at(i); keep(entry) {
			kept = append(kept, entry)
		}
	}
	b.records = kept
	b.nextIndex = 0
	return total - len(kept)
}
