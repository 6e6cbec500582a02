package magrev

// BasisStabilizer resolves the sign and axis-ordering ambiguity of
// successive plane estimates and manages the planarity lock.
//
// A symmetric eigensolver is free to flip the sign of any eigenvector and,
// when the two largest eigenvalues are close, to swap their order between
// window updates. Left unresolved, either event lands in the phase tracker
// as a spurious jump of exactly π or π/2 and corrupts the accumulator, so
// each candidate basis is aligned against the previously accepted one
// before use.
//
// Locking adds hysteresis on top: once planarity exceeds minPlanarity the
// basis is held and projection continues against the held copy through
// transient estimate degradation, releasing only when planarity falls below
// releaseFraction × minPlanarity.
type BasisStabilizer struct {
	minPlanarity float64

	previous    *RotationBasis
	locked      *RotationBasis
	lastAttempt RotationBasis
	haveAttempt bool
}

// releaseFraction sets the lower hysteresis band for releasing a locked
// basis, preventing rapid lock/unlock oscillation at the threshold.
const releaseFraction = 0.8

// NewBasisStabilizer creates a stabilizer with the given lock threshold.
func NewBasisStabilizer(minPlanarity float64) *BasisStabilizer {
	return &BasisStabilizer{minPlanarity: minPlanarity}
}

// Stabilize aligns candidate against previous under four hypotheses
// (unchanged, axis1 flipped, axis2 flipped, axes swapped), keeping
// whichever maximises dot-product alignment, then forces normal-sign
// continuity. Without a previous basis the candidate passes through
// unchanged.
func Stabilize(candidate RotationBasis, previous *RotationBasis) RotationBasis {
	if previous == nil {
		return candidate
	}

	d11 := candidate.Axis1.Dot(previous.Axis1)
	d22 := candidate.Axis2.Dot(previous.Axis2)
	d21 := candidate.Axis2.Dot(previous.Axis1)
	d12 := candidate.Axis1.Dot(previous.Axis2)

	best := d11 + d22 // unchanged
	choice := 0
	if s := -d11 + d22; s > best { // axis1 sign-flipped
		best = s
		choice = 1
	}
	if s := d11 - d22; s > best { // axis2 sign-flipped
		best = s
		choice = 2
	}
	if s := d21 + d12; s > best { // axes swapped
		choice = 3
	}

	out := candidate
	switch choice {
	case 1:
		out.Axis1 = candidate.Axis1.Neg()
	case 2:
		out.Axis2 = candidate.Axis2.Neg()
	case 3:
		out.Axis1, out.Axis2 = candidate.Axis2, candidate.Axis1
		out.Eigenvalues[0], out.Eigenvalues[1] = out.Eigenvalues[1], out.Eigenvalues[0]
	}

	out.Normal = out.Axis1.Cross(out.Axis2).Normalize()
	if out.Normal.Dot(previous.Normal) < 0 {
		out.Normal = out.Normal.Neg()
	}
	return out
}

// Accept stabilises candidate against the last accepted basis, updates the
// lock state, and returns the basis the pipeline should project against.
func (s *BasisStabilizer) Accept(candidate RotationBasis) RotationBasis {
	stabilized := Stabilize(candidate, s.previous)
	s.previous = &stabilized
	s.lastAttempt = stabilized
	s.haveAttempt = true

	if s.locked != nil {
		// Release only below the hysteresis band.
		if stabilized.Planarity < releaseFraction*s.minPlanarity {
			s.locked = nil
		}
	}
	if s.locked == nil && stabilized.Planarity > s.minPlanarity {
		held := stabilized
		s.locked = &held
	}

	return s.Current()
}

// Current returns the basis to project against: the locked copy when one is
// held, otherwise the latest accepted estimate, otherwise the synthetic
// default plane.
func (s *BasisStabilizer) Current() RotationBasis {
	if s.locked != nil {
		return *s.locked
	}
	if s.haveAttempt {
		return s.lastAttempt
	}
	return DefaultBasis()
}

// Locked reports whether a trusted basis is currently held.
func (s *BasisStabilizer) Locked() bool {
	return s.locked != nil
}

// Reset clears the lock and alignment history.
func (s *BasisStabilizer) Reset() {
	s.previous = nil
	s.locked = nil
	s.haveAttempt = false
	s.lastAttempt = RotationBasis{}
}
