package service

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestRingBufferNewestFirst(t *testing.T) {
	b := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{5, 4, 3}, b.Snapshot())
	assert.Equal(t, []int{4}, b.Slice(1, 1))
	assert.Equal(t, []int{}, b.Slice(3, 10))
	assert.Equal(t, []int{}, b.Slice(0, 0))
}

func TestRingBufferFilterAndCount(t *testing.T) {
	b := NewRingBuffer[int](4)
	for i := 1; i <= 6; i++ {
		b.Push(i)
	}
	even := func(v int) bool { return v%2 == 0 }
	assert.Equal(t, []int{6, 4}, b.Filter(even))
	assert.Equal(t, 2, b.Count(even))
}

func TestRingBufferRetainKeepsOrder(t *testing.T) {
	b := NewRingBuffer[int](4)
	for i := 1; i <= 6; i++ {
		b.Push(i)
	}
	removed := b.Retain(func(v int) bool { return v != 4 })
	assert.Equal(t, 1, removed)
	assert.Equal(t, []int{6, 5, 3}, b.Snapshot())

	b.Push(7)
	b.Push(8)
	assert.Equal(t, []int{8, 7, 6, 5}, b.Snapshot())
}

func TestRingBufferDefaultsCapacity(t *testing.T) {
	b := NewRingBuffer[string](0)
	assert.Equal(t, 1000, b.Cap())
}

func TestRingBufferBounded_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("holds the last min(n, cap) pushes, newest first", prop.ForAll(
		func(capacity, n int) bool {
			b := NewRingBuffer[int](capacity)
			for i := 0; i < n; i++ {
				b.Push(i)
			}
			want := min(n, capacity)
			if b.Len() != want {
				return false
			}
			snap := b.Snapshot()
			for i, v := range snap {
				if v != n-1-i {
					return false
				}
			}
			return len(snap) == want
		},
		gen.IntRange(1, 64),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}
