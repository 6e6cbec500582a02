package magrev

import "sync"

// ThresholdDetector is the legacy single-axis variant: a Schmitt trigger
// on the magnitude of the baseline-corrected field. One revolution is one
// complete high→low→high excursion. It discovers no rotation plane, so it
// only works when the magnet passes close enough to the sensor to dominate
// the magnitude signal, but it is cheap and has no warm-up window.
//
// The high/low thresholds are learned online from a decaying min/max
// envelope of the magnitude, so no per-environment calibration is needed.
type ThresholdDetector struct {
	mu  sync.Mutex
	cfg DetectorConfig

	running  bool
	baseline *BaselineTracker

	envMin     float64
	envMax     float64
	envSeeded  bool
	aboveHigh  bool
	sawLow     bool
	count      uint64
	lastMag    float64
	seenNanos  int64
	firstNanos int64

	onRevolution func(RevolutionEvent)
}

// envelopeDecay pulls the learned min/max toward the current magnitude so
// the thresholds follow slow amplitude changes. Per-sample coefficient.
const envelopeDecay = 0.002

// hysteresisFraction positions the high/low thresholds inside the learned
// envelope. 0.25 puts them at the 25%/75% points of the range.
const hysteresisFraction = 0.25

// minEnvelopeRange is the smallest magnitude swing (µT) treated as a real
// magnet passing rather than noise.
const minEnvelopeRange = 5.0

// NewThresholdDetector creates the legacy magnitude-threshold variant.
func NewThresholdDetector(cfg DetectorConfig) (*ThresholdDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &ThresholdDetector{cfg: cfg}
	d.build()
	return d, nil
}

func (d *ThresholdDetector) build() {
	d.baseline = NewBaselineTracker(d.cfg.BaselineAlpha, d.cfg.BaselineIdleFactor)
	d.envMin = 0
	d.envMax = 0
	d.envSeeded = false
	d.aboveHigh = false
	d.sawLow = false
	d.count = 0
	d.lastMag = 0
	d.seenNanos = 0
	d.firstNanos = 0
}

// OnRevolution registers the per-revolution callback.
func (d *ThresholdDetector) OnRevolution(fn func(RevolutionEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRevolution = fn
}

// Start begins processing. Idempotent.
func (d *ThresholdDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

// Stop halts processing. Idempotent.
func (d *ThresholdDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

// FeedField ingests one magnetometer sample.
func (d *ThresholdDetector) FeedField(s Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || !s.Vec3.IsFinite() {
		return
	}

	corrected, ok := d.baseline.Update(s.Vec3, true)
	if !ok {
		return
	}
	mag := corrected.Norm()
	d.lastMag = mag
	d.seenNanos = s.UnixNanos
	if d.firstNanos == 0 {
		d.firstNanos = s.UnixNanos
	}

	if !d.envSeeded {
		d.envMin = mag
		d.envMax = mag
		d.envSeeded = true
		return
	}

	// Expand immediately, contract slowly.
	if mag < d.envMin {
		d.envMin = mag
	} else {
		d.envMin += envelopeDecay * (mag - d.envMin)
	}
	if mag > d.envMax {
		d.envMax = mag
	} else {
		d.envMax += envelopeDecay * (mag - d.envMax)
	}

	span := d.envMax - d.envMin
	if span < minEnvelopeRange {
		return
	}
	high := d.envMax - hysteresisFraction*span
	low := d.envMin + hysteresisFraction*span

	switch {
	case mag >= high:
		if d.aboveHigh && d.sawLow {
			// Completed a high→low→high cycle.
			d.count++
			d.sawLow = false
			if d.onRevolution != nil {
				d.onRevolution(RevolutionEvent{
					Count:     d.count,
					UnixNanos: s.UnixNanos,
					Quality:   d.signalQualityLocked(),
				})
			}
		}
		d.aboveHigh = true
	case mag <= low:
		if d.aboveHigh {
			d.sawLow = true
		}
	}
}

// FeedGyro is accepted for interface parity; this variant has no motion
// gate.
func (d *ThresholdDetector) FeedGyro(Sample) {}

// FeedAccel is accepted for interface parity.
func (d *ThresholdDetector) FeedAccel(Sample) {}

// RevolutionCount returns the monotonically non-decreasing count.
func (d *ThresholdDetector) RevolutionCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// SignalQuality scores the learned envelope: 0 until the magnitude swing
// clears the noise floor, approaching 1 as the swing grows.
func (d *ThresholdDetector) SignalQuality() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signalQualityLocked()
}

// signalQualityLocked computes the quality score. Caller holds the lock.
func (d *ThresholdDetector) signalQualityLocked() float64 {
	span := d.envMax - d.envMin
	if span <= minEnvelopeRange {
		return 0
	}
	q := 1 - minEnvelopeRange/span
	if q > 1 {
		q = 1
	}
	return q
}

// PhaseAngle is 0 for this variant; it tracks no in-plane angle.
func (d *ThresholdDetector) PhaseAngle() float64 { return 0 }

// Reset restores freshly-constructed observable state.
func (d *ThresholdDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.build()
}
