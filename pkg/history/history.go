package history

import (
	"sync"
	"time"
)

// Sample is one recorded point of the rolling window. A nil percentage means
// the value could not be read when the sample was taken.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    *float64  `json:"cpuPercent"`
	MemoryPercent *float64  `json:"memoryPercent"`
}

// Buffer keeps the most recent samples in insertion order, evicting the
// oldest once more than capacity entries are held.
type Buffer struct {
	mu       sync.RWMutex
	samples  []Sample
	capacity int
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

func (b *Buffer) Append(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, s)
	if over := len(b.samples) - b.capacity; over > 0 {
		copy(b.samples, b.samples[over:])
		b.samples = b.samples[:b.capacity]
	}
}

// Samples returns a copy of the window, oldest first.
func (b *Buffer) Samples() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

func (b *Buffer) Cap() int {
	return b.capacity
}

// Span is the wall time the full window covers at the given sampling interval.
func (b *Buffer) Span(interval time.Duration) time.Duration {
	return time.Duration(b.capacity) * interval
}
