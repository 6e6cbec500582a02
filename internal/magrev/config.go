package magrev

import (
	"fmt"
	"time"
)

// DetectorConfig holds the tuning parameters for a detector instance.
// All parameters have working defaults from DefaultDetectorConfig; the
// thresholds were tuned against 50 Hz phone magnetometer traces.
type DetectorConfig struct {
	SampleRateHz    float64 // field sample rate, e.g. 50
	WindowSeconds   float64 // sliding window span in seconds, e.g. 1.0
	MinFillFraction float64 // window fill required before plane estimation (0, 1]
	EstimateEvery   int     // plane re-estimation cadence in samples

	MinPlanarity     float64 // planarity needed to trust/lock a basis, e.g. 0.7
	GyroMaxRadPerSec float64 // max gyro magnitude before samples are rejected
	AccelStddevMps2  float64 // max accel magnitude stddev before rejection

	BaselineAlpha      float64 // EMA coefficient for the ambient baseline
	BaselineIdleFactor float64 // alpha multiplier applied while not rotating

	GraceWindow  time.Duration // low-planarity dropout tolerated after a valid sample
	MotionWindow time.Duration // span of the gyro/accel histories and liveness check

	LearnThreshold float64 // |phase delta| that learns the forward sign (rad)
	MinPhaseDelta  float64 // |phase delta| that counts as live rotation (rad)
}

// DefaultDetectorConfig returns the default detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SampleRateHz:       50,
		WindowSeconds:      1.0,
		MinFillFraction:    0.5,
		EstimateEvery:      5,
		MinPlanarity:       0.7,
		GyroMaxRadPerSec:   0.5,
		AccelStddevMps2:    0.8,
		BaselineAlpha:      0.01,
		BaselineIdleFactor: 0.1,
		GraceWindow:        500 * time.Millisecond,
		MotionWindow:       time.Second,
		LearnThreshold:     0.01,
		MinPhaseDelta:      0.02,
	}
}

// WindowCapacity returns the sliding window capacity in samples.
func (c DetectorConfig) WindowCapacity() int {
	return int(c.SampleRateHz * c.WindowSeconds)
}

// MinWindowSize returns the number of samples required before the plane
// estimator runs.
func (c DetectorConfig) MinWindowSize() int {
	return int(float64(c.WindowCapacity()) * c.MinFillFraction)
}

// Validate rejects configurations that can never be satisfied at runtime.
// Constructors call this so misuse fails at build time rather than producing
// a detector that silently never counts.
func (c DetectorConfig) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRateHz)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be positive, got %v", c.WindowSeconds)
	}
	if c.WindowCapacity() < 3 {
		return fmt.Errorf("window capacity %d too small for covariance estimation (need >= 3)", c.WindowCapacity())
	}
	if c.MinFillFraction <= 0 || c.MinFillFraction > 1 {
		return fmt.Errorf("min fill fraction must be in (0, 1], got %v", c.MinFillFraction)
	}
	if c.MinWindowSize() > c.WindowCapacity() {
		return fmt.Errorf("min window size %d exceeds window capacity %d", c.MinWindowSize(), c.WindowCapacity())
	}
	if c.EstimateEvery < 1 {
		return fmt.Errorf("estimate cadence must be >= 1, got %d", c.EstimateEvery)
	}
	if c.MinPlanarity <= 0 || c.MinPlanarity >= 1 {
		return fmt.Errorf("min planarity must be in (0, 1), got %v", c.MinPlanarity)
	}
	if c.GyroMaxRadPerSec <= 0 {
		return fmt.Errorf("gyro threshold must be positive, got %v", c.GyroMaxRadPerSec)
	}
	if c.AccelStddevMps2 <= 0 {
		return fmt.Errorf("accel stddev threshold must be positive, got %v", c.AccelStddevMps2)
	}
	if c.BaselineAlpha <= 0 || c.BaselineAlpha > 1 {
		return fmt.Errorf("baseline alpha must be in (0, 1], got %v", c.BaselineAlpha)
	}
	if c.BaselineIdleFactor <= 0 || c.BaselineIdleFactor > 1 {
		return fmt.Errorf("baseline idle factor must be in (0, 1], got %v", c.BaselineIdleFactor)
	}
	if c.GraceWindow < 0 {
		return fmt.Errorf("grace window must be non-negative, got %v", c.GraceWindow)
	}
	if c.MotionWindow <= 0 {
		return fmt.Errorf("motion window must be positive, got %v", c.MotionWindow)
	}
	if c.LearnThreshold <= 0 {
		return fmt.Errorf("learn threshold must be positive, got %v", c.LearnThreshold)
	}
	if c.MinPhaseDelta <= 0 {
		return fmt.Errorf("min phase delta must be positive, got %v", c.MinPhaseDelta)
	}
	return nil
}
