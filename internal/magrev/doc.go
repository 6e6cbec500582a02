// Package magrev implements the magnetic revolution-counting pipeline.
//
// A wheel magnet rotating in an unknown plane produces a circular trace in
// the 3-axis magnetometer stream. The pipeline isolates that trace from the
// ambient field, discovers the rotation plane with a windowed principal
// component analysis, extracts and unwraps the in-plane phase angle, gates
// each phase increment against device-motion and signal-quality checks, and
// counts whole revolutions in the learned forward direction.
//
// Data flows strictly downstream, one synchronous pass per field sample:
//
//	raw sample -> baseline correction -> sliding window -> plane estimate
//	  -> stabilised basis -> 2D projection/phase -> validity gate -> count
//
// Gyroscope and accelerometer samples flow only into the MotionGate.
// Detector instances share no mutable state and may run concurrently.
package magrev
