package magrev

// BaselineTracker estimates the ambient field (Earth's field plus static
// environmental distortion) with a per-axis exponential moving average and
// subtracts it from incoming samples.
//
// The smoothing coefficient slows by idleFactor while no rotation is
// detected, so that a magnet paused at a fixed angle is not absorbed into
// the baseline during the pause.
type BaselineTracker struct {
	alpha      float64
	idleFactor float64

	baseline Vec3
	seeded   bool
}

// NewBaselineTracker creates a tracker with the given EMA coefficient and
// idle slowdown factor.
func NewBaselineTracker(alpha, idleFactor float64) *BaselineTracker {
	return &BaselineTracker{alpha: alpha, idleFactor: idleFactor}
}

// Update folds raw into the baseline estimate and returns the corrected
// sample. The first call seeds the baseline from the raw sample and reports
// ok=false; no corrected sample exists for that call.
func (b *BaselineTracker) Update(raw Vec3, inMotion bool) (corrected Vec3, ok bool) {
	if !b.seeded {
		b.baseline = raw
		b.seeded = true
		return Vec3{}, false
	}

	a := b.alpha
	if !inMotion {
		a *= b.idleFactor
	}
	b.baseline = Vec3{
		X: a*raw.X + (1-a)*b.baseline.X,
		Y: a*raw.Y + (1-a)*b.baseline.Y,
		Z: a*raw.Z + (1-a)*b.baseline.Z,
	}
	return raw.Sub(b.baseline), true
}

// Baseline returns the current ambient estimate. Diagnostic only.
func (b *BaselineTracker) Baseline() Vec3 {
	return b.baseline
}

// Seeded reports whether the first sample has been consumed.
func (b *BaselineTracker) Seeded() bool {
	return b.seeded
}

// Reset discards the baseline; the next sample re-seeds it.
func (b *BaselineTracker) Reset() {
	b.baseline = Vec3{}
	b.seeded = false
}
