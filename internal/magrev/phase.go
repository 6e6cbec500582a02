package magrev

import "math"

// PhaseState accumulates the unwrapped in-plane rotation angle.
type PhaseState struct {
	LastAngle    float64 // last wrapped angle in [-π, π]
	TotalPhase   float64 // unbounded unwrapped accumulator, net rotation since start
	ForwardAccum float64 // forward-signed accumulator, kept in [0, 2π) between emissions
	ForwardSign  float64 // +1/-1 once learned, 0 before
	HasAngle     bool    // false until the first projection fixes LastAngle
}

// Reset restores the zero state.
func (p *PhaseState) Reset() {
	*p = PhaseState{}
}

// WrapToPi wraps an angle difference into [-π, π]. atan2 is discontinuous
// at ±π; without this a magnet crossing that boundary would be misread as a
// near-full reverse rotation.
func WrapToPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// PhaseTracker projects corrected samples onto a rotation basis and
// accumulates the unwrapped phase.
type PhaseTracker struct {
	state PhaseState
}

// NewPhaseTracker creates a tracker with zeroed state.
func NewPhaseTracker() *PhaseTracker {
	return &PhaseTracker{}
}

// Step projects sample onto (axis1, axis2), unwraps the resulting angle
// against the previous one and returns the phase delta in [-π, π]. The
// first call only establishes the reference angle and returns 0.
func (t *PhaseTracker) Step(sample Vec3, basis RotationBasis) float64 {
	u := sample.Dot(basis.Axis1)
	v := sample.Dot(basis.Axis2)
	angle := math.Atan2(v, u)

	if !t.state.HasAngle {
		t.state.LastAngle = angle
		t.state.HasAngle = true
		return 0
	}

	delta := WrapToPi(angle - t.state.LastAngle)
	t.state.TotalPhase += delta
	t.state.LastAngle = angle
	return delta
}

// Angle returns the last wrapped angle, for visualisation consumers.
func (t *PhaseTracker) Angle() float64 {
	return t.state.LastAngle
}

// TotalPhase returns the unwrapped accumulator.
func (t *PhaseTracker) TotalPhase() float64 {
	return t.state.TotalPhase
}

// State exposes the mutable phase state to the revolution counter.
func (t *PhaseTracker) State() *PhaseState {
	return &t.state
}

// Reset restores the zero state.
func (t *PhaseTracker) Reset() {
	t.state.Reset()
}
