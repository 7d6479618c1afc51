package costguard

import "sync"

// Window is the bounded rolling sample history. Append evicts the oldest
// sample once the window exceeds its capacity.
type Window struct {
	mu      sync.RWMutex
	cap     int
	samples []Sample
}

// NewWindow creates a window with the given capacity.
// A non-positive capacity falls back to WindowCap.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = WindowCap
	}
	return &Window{cap: capacity}
}

// Append adds a sample, evicting the oldest when full.
func (w *Window) Append(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)
	if len(w.samples) > w.cap {
		w.samples = w.samples[len(w.samples)-w.cap:]
	}
}

// Len returns the current number of samples.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Last returns the n most recent samples, oldest first. Fewer are returned
// if the window holds fewer.
func (w *Window) Last(n int) []Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if n > len(w.samples) {
		n = len(w.samples)
	}
	out := make([]Sample, n)
	copy(out, w.samples[len(w.samples)-n:])
	return out
}

// Restore replaces the window contents, keeping at most cap samples
// (the newest ones). Used to reload persisted history on startup.
func (w *Window) Restore(samples []Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(samples) > w.cap {
		samples = samples[len(samples)-w.cap:]
	}
	w.samples = append(w.samples[:0], samples...)
}

func meanDailyCost(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.DailyCost
	}
	return sum / float64(len(samples))
}
