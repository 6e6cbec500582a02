package magrev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planeBasis(planarity float64) RotationBasis {
	return RotationBasis{
		Axis1:       Vec3{X: 1},
		Axis2:       Vec3{Y: 1},
		Normal:      Vec3{Z: 1},
		Eigenvalues: [3]float64{10, 8, 0.5},
		Planarity:   planarity,
	}
}

func TestStabilizeNoPrevious(t *testing.T) {
	c := planeBasis(0.9)
	got := Stabilize(c, nil)
	assert.Equal(t, c, got, "candidate should pass through without a previous basis")
}

func TestStabilizeResolvesSignFlips(t *testing.T) {
	prev := planeBasis(0.9)

	t.Run("axis1 flipped", func(t *testing.T) {
		c := prev
		c.Axis1 = c.Axis1.Neg()
		got := Stabilize(c, &prev)
		assert.Equal(t, prev.Axis1, got.Axis1)
		assert.Equal(t, prev.Axis2, got.Axis2)
		assert.Equal(t, prev.Normal, got.Normal)
	})

	t.Run("axis2 flipped", func(t *testing.T) {
		c := prev
		c.Axis2 = c.Axis2.Neg()
		got := Stabilize(c, &prev)
		assert.Equal(t, prev.Axis1, got.Axis1)
		assert.Equal(t, prev.Axis2, got.Axis2)
		assert.Equal(t, prev.Normal, got.Normal)
	})

	t.Run("axes swapped", func(t *testing.T) {
		c := prev
		c.Axis1, c.Axis2 = prev.Axis2, prev.Axis1
		c.Eigenvalues = [3]float64{8, 10, 0.5}
		got := Stabilize(c, &prev)
		assert.Equal(t, prev.Axis1, got.Axis1)
		assert.Equal(t, prev.Axis2, got.Axis2)
		// Eigenvalues follow the swap back
		assert.Equal(t, prev.Eigenvalues, got.Eigenvalues)
	})

	t.Run("unchanged stays unchanged", func(t *testing.T) {
		got := Stabilize(prev, &prev)
		assert.Equal(t, prev, got)
	})
}

func TestStabilizeNormalContinuity(t *testing.T) {
	prev := planeBasis(0.9)

	// Candidate with both in-plane axes flipped: alignment prefers
	// flipping one of them back; either way the normal must agree in
	// sign with the previous normal.
	c := prev
	c.Axis1 = c.Axis1.Neg()
	c.Axis2 = c.Axis2.Neg()
	got := Stabilize(c, &prev)
	assert.Greater(t, got.Normal.Dot(prev.Normal), 0.0,
		"stabilised normal must not flip sign against the previous basis")
}

func TestBasisLockHysteresis(t *testing.T) {
	s := NewBasisStabilizer(0.7)

	require.False(t, s.Locked(), "fresh stabilizer must not be locked")
	assert.Equal(t, DefaultBasis(), s.Current(), "fresh stabilizer serves the synthetic default plane")

	// Below threshold: no lock, but latest estimate is served.
	s.Accept(planeBasis(0.5))
	assert.False(t, s.Locked())

	// Above threshold: lock engages.
	s.Accept(planeBasis(0.85))
	require.True(t, s.Locked())
	locked := s.Current()

	// Degraded but above the release band (0.8*0.7 = 0.56): the locked
	// copy keeps being served.
	s.Accept(planeBasis(0.6))
	assert.True(t, s.Locked(), "lock must survive transient degradation above the release band")
	assert.Equal(t, locked, s.Current())

	// Below the release band: lock drops.
	s.Accept(planeBasis(0.5))
	assert.False(t, s.Locked(), "lock must release below 0.8×minPlanarity")
}

func TestBasisLockNoOscillationAtThreshold(t *testing.T) {
	s := NewBasisStabilizer(0.7)
	s.Accept(planeBasis(0.75))
	require.True(t, s.Locked())

	// Bouncing around the lock threshold itself must not unlock; only
	// the lower hysteresis band releases.
	for _, p := range []float64{0.69, 0.71, 0.68, 0.72, 0.65} {
		s.Accept(planeBasis(p))
		assert.True(t, s.Locked(), "planarity %v released the lock inside the hysteresis band", p)
	}
}

func TestBasisStabilizerReset(t *testing.T) {
	s := NewBasisStabilizer(0.7)
	s.Accept(planeBasis(0.9))
	require.True(t, s.Locked())

	s.Reset()
	assert.False(t, s.Locked())
	assert.Equal(t, DefaultBasis(), s.Current())
}
