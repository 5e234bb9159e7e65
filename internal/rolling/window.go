// Package rolling maintains the in-memory per-agent and per-provider
// performance state: bounded response-time windows, running counters, and a
// cross-agent ring of recent metrics for low-latency queries that never
// touch durable storage.
package rolling

// Window is a fixed-capacity ring of float64 samples. Pushing beyond
// capacity silently evicts the oldest sample. The mean is recomputed over
// the buffer at read time; at window sizes around 100 that is cheaper than
// maintaining an incremental average worth auditing.
//
// Window is not safe for concurrent use; the Tracker's lock guards it.
type Window struct {
	buf  []float64
	next int
	full bool
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]float64, 0, capacity)}
}

// Push adds a sample, evicting the oldest when the window is full.
func (w *Window) Push(v float64) {
	if !w.full && len(w.buf) < cap(w.buf) {
		w.buf = append(w.buf, v)
		if len(w.buf) == cap(w.buf) {
			w.full = true
		}
		return
	}
	w.buf[w.next] = v
	w.next = (w.next + 1) % cap(w.buf)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return len(w.buf)
}

// Mean returns the arithmetic mean over the held samples, 0 when empty.
func (w *Window) Mean() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(len(w.buf))
}

// Seed pre-fills the window with a single representative value, used when
// rebuilding from a durable summary that only kept the average.
func (w *Window) Seed(mean float64, n int) {
	if n <= 0 || mean <= 0 {
		return
	}
	if n > cap(w.buf) {
		n = cap(w.buf)
	}
	for range n {
		w.Push(mean)
	}
}
