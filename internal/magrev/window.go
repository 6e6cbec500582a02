package magrev

// SampleWindow is a fixed-capacity sliding window over baseline-corrected
// field vectors. The oldest sample is evicted on overflow. It is not safe
// for concurrent use; the owning detector serialises access.
type SampleWindow struct {
	buf   []Vec3
	start int
	count int
}

// NewSampleWindow creates a window holding at most capacity samples.
// Capacity must be positive.
func NewSampleWindow(capacity int) *SampleWindow {
	if capacity <= 0 {
		panic("magrev: sample window capacity must be positive")
	}
	return &SampleWindow{buf: make([]Vec3, capacity)}
}

// Push appends v, evicting the oldest sample when the window is full.
func (w *SampleWindow) Push(v Vec3) {
	idx := (w.start + w.count) % len(w.buf)
	w.buf[idx] = v
	if w.count < len(w.buf) {
		w.count++
	} else {
		w.start = (w.start + 1) % len(w.buf)
	}
}

// Len returns the number of samples currently held.
func (w *SampleWindow) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *SampleWindow) Cap() int {
	return len(w.buf)
}

// Snapshot returns the windowed samples in arrival order. The returned
// slice is freshly allocated and safe to retain.
func (w *SampleWindow) Snapshot() []Vec3 {
	out := make([]Vec3, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Reset discards all samples.
func (w *SampleWindow) Reset() {
	w.start = 0
	w.count = 0
}
