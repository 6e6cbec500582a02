package magrev

import (
	"math"
	"math/rand"
)

// Synthesizer generates synthetic magnetometer traces of a magnet rotating
// at a constant rate in a configurable plane, for tests, offline tuning
// and demo recordings.
type Synthesizer struct {
	// Configuration
	SampleRateHz float64 // field samples per second
	RotationHz   float64 // magnet revolutions per second; negative reverses
	AmplitudeUT  float64 // field swing produced by the magnet, microtesla
	Ambient      Vec3    // static ambient field added to every sample
	Axis1        Vec3    // first in-plane axis (unit); default X
	Axis2        Vec3    // second in-plane axis (unit); default Y
	NoiseUT      float64 // per-axis gaussian noise sigma, microtesla
	StartPhase   float64 // initial angle in radians

	rng       *rand.Rand
	sampleIdx int
	startNs   int64
}

// NewSynthesizer creates a generator with a deterministic seed. The
// defaults describe the reference scenario: 50 Hz sampling, 1 Hz rotation
// in the XY plane, 100 µT amplitude over a 45 µT ambient field.
func NewSynthesizer(seed int64) *Synthesizer {
	return &Synthesizer{
		SampleRateHz: 50,
		RotationHz:   1,
		AmplitudeUT:  100,
		Ambient:      Vec3{X: 20, Y: 30, Z: 25},
		Axis1:        Vec3{X: 1},
		Axis2:        Vec3{Y: 1},
		NoiseUT:      0,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// SetPlane orients the rotation plane by two spanning vectors, which are
// orthonormalised internally.
func (g *Synthesizer) SetPlane(a, b Vec3) {
	a1 := a.Normalize()
	// Remove the component of b along a, then normalise.
	b2 := b.Sub(a1.Scale(b.Dot(a1))).Normalize()
	g.Axis1 = a1
	g.Axis2 = b2
}

// Next returns the next field sample. Timestamps advance by the sample
// interval from startNs (zero by default, so tests get stable values).
func (g *Synthesizer) Next() Sample {
	t := float64(g.sampleIdx) / g.SampleRateHz
	angle := g.StartPhase + 2*math.Pi*g.RotationHz*t

	field := g.Ambient.
		Add(g.Axis1.Scale(g.AmplitudeUT * math.Cos(angle))).
		Add(g.Axis2.Scale(g.AmplitudeUT * math.Sin(angle)))

	if g.NoiseUT > 0 {
		field = field.Add(Vec3{
			X: g.rng.NormFloat64() * g.NoiseUT,
			Y: g.rng.NormFloat64() * g.NoiseUT,
			Z: g.rng.NormFloat64() * g.NoiseUT,
		})
	}

	ts := g.startNs + int64(t*1e9)
	g.sampleIdx++
	return Sample{Vec3: field, UnixNanos: ts}
}

// StillGyro returns a zero-motion gyroscope sample at the current trace
// time, for feeding alongside the field stream.
func (g *Synthesizer) StillGyro() Sample {
	t := float64(g.sampleIdx) / g.SampleRateHz
	return Sample{UnixNanos: g.startNs + int64(t*1e9)}
}

// SamplesFor generates n consecutive samples.
func (g *Synthesizer) SamplesFor(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// SetStart sets the timestamp of sample zero.
func (g *Synthesizer) SetStart(unixNanos int64) {
	g.startNs = unixNanos
}
