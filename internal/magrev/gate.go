package magrev

import "math"

// motionSample is one magnitude reading in a time-windowed history.
type motionSample struct {
	unixNanos int64
	magnitude float64
}

// motionHistory is a bounded time-windowed buffer of magnitude samples,
// pruned on insert.
type motionHistory struct {
	windowNanos int64
	samples     []motionSample
}

func newMotionHistory(windowNanos int64) *motionHistory {
	return &motionHistory{windowNanos: windowNanos}
}

func (h *motionHistory) push(unixNanos int64, magnitude float64) {
	h.samples = append(h.samples, motionSample{unixNanos, magnitude})
	h.prune(unixNanos)
}

func (h *motionHistory) prune(nowNanos int64) {
	cutoff := nowNanos - h.windowNanos
	i := 0
	for i < len(h.samples) && h.samples[i].unixNanos < cutoff {
		i++
	}
	if i > 0 {
		h.samples = h.samples[i:]
	}
}

// max returns the largest magnitude in the window, or 0 when empty.
func (h *motionHistory) max() float64 {
	m := 0.0
	for _, s := range h.samples {
		if s.magnitude > m {
			m = s.magnitude
		}
	}
	return m
}

// stddev returns the standard deviation of magnitudes in the window.
func (h *motionHistory) stddev() float64 {
	n := len(h.samples)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, s := range h.samples {
		mean += s.magnitude
	}
	mean /= float64(n)
	variance := 0.0
	for _, s := range h.samples {
		d := s.magnitude - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(n))
}

func (h *motionHistory) reset() {
	h.samples = h.samples[:0]
}

// MotionGate decides, per field sample, whether the phase increment is
// trustworthy. Validity requires adequate planarity (or a recent valid
// sample within the grace window), a still host device as judged by the
// gyro and accelerometer histories, and evidence that the wheel is actually
// rotating.
type MotionGate struct {
	minPlanarity     float64
	gyroMax          float64
	accelStddevMax   float64
	graceNanos       int64
	livenessNanos    int64
	minPhaseDelta    float64
	gyroHistory      *motionHistory
	accelHistory     *motionHistory
	lastValidNanos   int64
	lastMotionNanos  int64
	haveValidSample  bool
	haveRecentMotion bool
}

// NewMotionGate creates a gate from the detector configuration.
func NewMotionGate(cfg DetectorConfig) *MotionGate {
	window := cfg.MotionWindow.Nanoseconds()
	return &MotionGate{
		minPlanarity:   cfg.MinPlanarity,
		gyroMax:        cfg.GyroMaxRadPerSec,
		accelStddevMax: cfg.AccelStddevMps2,
		graceNanos:     cfg.GraceWindow.Nanoseconds(),
		livenessNanos:  window,
		minPhaseDelta:  cfg.MinPhaseDelta,
		gyroHistory:    newMotionHistory(window),
		accelHistory:   newMotionHistory(window),
	}
}

// PushGyro records a gyroscope sample magnitude.
func (g *MotionGate) PushGyro(s Sample) {
	g.gyroHistory.push(s.UnixNanos, s.Norm())
}

// PushAccel records an accelerometer sample magnitude.
func (g *MotionGate) PushAccel(s Sample) {
	g.accelHistory.push(s.UnixNanos, s.Norm())
}

// RecordPhaseDelta feeds the liveness check. A delta above the minimal
// motion threshold marks the wheel as rotating at nowNanos.
func (g *MotionGate) RecordPhaseDelta(delta float64, nowNanos int64) {
	if math.Abs(delta) > g.minPhaseDelta {
		g.lastMotionNanos = nowNanos
		g.haveRecentMotion = true
	}
}

// Rotating reports whether a liveness-qualifying phase delta occurred
// within the motion window ending at nowNanos.
func (g *MotionGate) Rotating(nowNanos int64) bool {
	return g.haveRecentMotion && nowNanos-g.lastMotionNanos <= g.livenessNanos
}

// Valid reports whether the sample at nowNanos may contribute to the
// revolution count. On success the valid-sample time is recorded for the
// grace-period check on subsequent samples.
func (g *MotionGate) Valid(basisPlanarity float64, nowNanos int64) bool {
	g.gyroHistory.prune(nowNanos)
	g.accelHistory.prune(nowNanos)

	planarityOK := basisPlanarity >= g.minPlanarity
	if !planarityOK && g.haveValidSample {
		// Tolerate brief signal dropout after a good sample.
		planarityOK = nowNanos-g.lastValidNanos <= g.graceNanos
	}
	if !planarityOK {
		return false
	}
	if g.gyroHistory.max() > g.gyroMax {
		return false
	}
	if g.accelHistory.stddev() > g.accelStddevMax {
		return false
	}
	if !g.Rotating(nowNanos) {
		return false
	}

	g.lastValidNanos = nowNanos
	g.haveValidSample = true
	return true
}

// Reset clears the histories and validity state.
func (g *MotionGate) Reset() {
	g.gyroHistory.reset()
	g.accelHistory.reset()
	g.lastValidNanos = 0
	g.lastMotionNanos = 0
	g.haveValidSample = false
	g.haveRecentMotion = false
}
