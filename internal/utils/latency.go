package utils

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent end-to-end investigation durations
// in a fixed-size ring and reports nearest-rank percentiles over that
// window. A long-lived server never grows its sample memory.
type LatencyTracker struct {
	mu     sync.Mutex
	window []time.Duration
	next   int
	seen   int
}

// NewLatencyTracker creates a tracker whose window holds up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{window: make([]time.Duration, 0, size)}
}

// Observe records one investigation duration, evicting the oldest sample
// once the window is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seen++
	if len(l.window) < cap(l.window) {
		l.window = append(l.window, d)
		return
	}
	l.window[l.next] = d
	l.next = (l.next + 1) % len(l.window)
}

// Count returns the total number of durations observed, including samples
// already evicted from the window.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen
}

// Percentile computes the nearest-rank percentile over the current window.
// It returns zero when nothing has been observed or p is outside (0, 100].
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := append([]time.Duration(nil), l.window...)
	l.mu.Unlock()

	if len(sorted) == 0 || p <= 0 || p > 100 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p / 100.0 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
