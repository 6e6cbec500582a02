package magrev

import "sync"

// Detector is the consumer-facing contract shared by all revolution
// detector variants. Implementations must be safe for concurrent feeds:
// the host environment delivers magnetometer, gyroscope and accelerometer
// samples on independent callbacks.
type Detector interface {
	// Start begins processing. Calling Start on a running detector is a
	// no-op, not a duplicate session.
	Start() error
	// Stop halts processing. Idempotent.
	Stop() error
	// FeedField ingests one magnetometer sample and runs a full pipeline
	// pass. Samples fed while stopped are dropped.
	FeedField(s Sample)
	// FeedGyro ingests an auxiliary gyroscope sample.
	FeedGyro(s Sample)
	// FeedAccel ingests an auxiliary accelerometer sample.
	FeedAccel(s Sample)
	// RevolutionCount returns the monotonically non-decreasing count.
	RevolutionCount() uint64
	// SignalQuality returns the most recent planarity score in [0, 1].
	SignalQuality() float64
	// PhaseAngle returns the last wrapped phase angle in radians.
	PhaseAngle() float64
	// Reset atomically restores freshly-constructed observable state.
	Reset()
}

// RevolutionEvent describes one completed revolution, for persistence and
// telemetry consumers.
type RevolutionEvent struct {
	Count     uint64  `json:"count"`
	UnixNanos int64   `json:"ts"`
	Quality   float64 `json:"quality"`
}

// PhaseDetector is the full plane-discovery pipeline: baseline correction,
// windowed PCA plane estimation, basis stabilisation and locking, phase
// unwrapping, motion gating and forward-direction counting.
//
// All mutation is serialised under one mutex so the three sensor feeds may
// interleave freely.
type PhaseDetector struct {
	mu  sync.Mutex
	cfg DetectorConfig

	running bool

	baseline   *BaselineTracker
	window     *SampleWindow
	estimator  *PlaneEstimator
	stabilizer *BasisStabilizer
	phase      *PhaseTracker
	gate       *MotionGate
	counter    *RevolutionCounter

	samplesSeen int
	quality     float64

	// onRevolution, when set, is invoked (outside hot state but inside
	// the detector lock) once per completed revolution.
	onRevolution func(RevolutionEvent)
}

// NewPhaseDetector creates the pipeline from cfg. Configuration misuse is
// a programmer error and is rejected here, at construction.
func NewPhaseDetector(cfg DetectorConfig) (*PhaseDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &PhaseDetector{cfg: cfg}
	d.build()
	return d, nil
}

// build wires fresh pipeline components. Also used by Reset.
func (d *PhaseDetector) build() {
	d.baseline = NewBaselineTracker(d.cfg.BaselineAlpha, d.cfg.BaselineIdleFactor)
	d.window = NewSampleWindow(d.cfg.WindowCapacity())
	d.estimator = NewPlaneEstimator(d.cfg.MinWindowSize())
	d.stabilizer = NewBasisStabilizer(d.cfg.MinPlanarity)
	d.phase = NewPhaseTracker()
	d.gate = NewMotionGate(d.cfg)
	d.counter = NewRevolutionCounter(d.cfg.LearnThreshold, d.phase.State())
	d.samplesSeen = 0
	d.quality = 0
}

// OnRevolution registers the per-revolution callback. Must be called
// before Start.
func (d *PhaseDetector) OnRevolution(fn func(RevolutionEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRevolution = fn
}

// Start begins processing. Idempotent.
func (d *PhaseDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

// Stop halts processing. Idempotent.
func (d *PhaseDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

// Running reports whether the detector is accepting samples.
func (d *PhaseDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// FeedField runs one full pipeline pass for a magnetometer sample.
func (d *PhaseDetector) FeedField(s Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || !s.Vec3.IsFinite() {
		return
	}

	rotating := d.gate.Rotating(s.UnixNanos)
	corrected, ok := d.baseline.Update(s.Vec3, rotating)
	if !ok {
		// First sample seeds the baseline; no corrected sample exists.
		return
	}
	d.window.Push(corrected)
	d.samplesSeen++

	if d.samplesSeen%d.cfg.EstimateEvery == 0 && d.window.Len() >= d.cfg.MinWindowSize() {
		if est, ok := d.estimator.Estimate(d.window.Snapshot()); ok {
			d.stabilizer.Accept(est)
			d.quality = est.Planarity
		}
		// On estimator failure the stabilizer keeps serving the previous
		// locked/latest basis, or the synthetic default before that.
	}

	basis := d.stabilizer.Current()
	delta := d.phase.Step(corrected, basis)
	d.gate.RecordPhaseDelta(delta, s.UnixNanos)

	if !d.gate.Valid(d.quality, s.UnixNanos) {
		// Gated-out samples touch no counter state, so a partially
		// completed revolution survives transient dropout.
		return
	}

	emitted := d.counter.Apply(delta)
	if emitted > 0 && d.onRevolution != nil {
		count := d.counter.Count()
		for i := emitted; i > 0; i-- {
			d.onRevolution(RevolutionEvent{
				Count:     count - i + 1,
				UnixNanos: s.UnixNanos,
				Quality:   d.quality,
			})
		}
	}
}

// FeedGyro ingests an auxiliary gyroscope sample.
func (d *PhaseDetector) FeedGyro(s Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || !s.Vec3.IsFinite() {
		return
	}
	d.gate.PushGyro(s)
}

// FeedAccel ingests an auxiliary accelerometer sample.
func (d *PhaseDetector) FeedAccel(s Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || !s.Vec3.IsFinite() {
		return
	}
	d.gate.PushAccel(s)
}

// RevolutionCount returns the monotonically non-decreasing count.
func (d *PhaseDetector) RevolutionCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counter.Count()
}

// SignalQuality returns the most recent planarity score.
func (d *PhaseDetector) SignalQuality() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quality
}

// PhaseAngle returns the last wrapped phase angle in radians.
func (d *PhaseDetector) PhaseAngle() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase.Angle()
}

// TotalPhase returns the unwrapped phase accumulator, for diagnostics.
func (d *PhaseDetector) TotalPhase() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase.TotalPhase()
}

// AmbientBaseline returns the current baseline estimate, for diagnostics.
func (d *PhaseDetector) AmbientBaseline() Vec3 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline.Baseline()
}

// BasisLocked reports whether a trusted basis is currently held.
func (d *PhaseDetector) BasisLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stabilizer.Locked()
}

// Reset atomically clears the window, baseline, basis, phase state and
// motion histories, returning the counter to its direction-learning state.
// A restart is never observable as spurious revolution events.
func (d *PhaseDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.build()
}
