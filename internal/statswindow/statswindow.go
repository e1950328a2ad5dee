// Package statswindow implements fixed-capacity rolling-average windows
// for the three latency series the worker pool feeds: cache-lookup time,
// uncached (upstream-forwarded) response time, and cached response time.
package statswindow

import "sync"

// DefaultCapacity is the window size used unless a caller asks for a
// different one.
const DefaultCapacity = 500

// Window is a circular buffer of float64 samples with a running sum, so
// Average is O(1) regardless of how many samples have been added.
type Window struct {
	mu       sync.Mutex
	values   []float64
	index    int
	count    int
	sum      float64
	capacity int
}

// New creates a Window with the given capacity. A non-positive capacity
// produces a degenerate window where Add is a no-op and Average is always
// zero, mirroring the reference implementation's disabled-window case.
func New(capacity int) *Window {
	if capacity <= 0 {
		return &Window{}
	}
	return &Window{values: make([]float64, capacity), capacity: capacity}
}

// Add records a new sample, evicting the oldest once the window is full.
func (w *Window) Add(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.capacity == 0 {
		return
	}
	if w.count < w.capacity {
		w.values[w.index] = v
		w.sum += v
		w.count++
	} else {
		w.index %= w.capacity
		w.sum -= w.values[w.index]
		w.sum += v
		w.values[w.index] = v
	}
	w.index = (w.index + 1) % w.capacity
}

// Average returns the arithmetic mean of the last min(samples, capacity)
// values, or zero if nothing has been added yet.
func (w *Window) Average() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// Windows bundles the three named latency series the spec calls for.
type Windows struct {
	CacheLookupLatency      *Window
	UncachedResponseLatency *Window
	CachedResponseLatency   *Window
}

// NewWindows builds all three windows with the same capacity.
func NewWindows(capacity int) *Windows {
	return &Windows{
		CacheLookupLatency:      New(capacity),
		UncachedResponseLatency: New(capacity),
		CachedResponseLatency:   New(capacity),
	}
}
