package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime updates. All fields
// are pointers so partial configs leave the omitted fields at their
// defaults.
type TuningConfig struct {
	// Sampling and windowing params
	SampleRateHz    *float64 `json:"sample_rate_hz,omitempty"`
	WindowSeconds   *float64 `json:"window_seconds,omitempty"`
	MinFillFraction *float64 `json:"min_fill_fraction,omitempty"`
	EstimateEvery   *int     `json:"estimate_every,omitempty"`

	// Plane quality params
	MinPlanarity *float64 `json:"min_planarity,omitempty"`

	// Motion gating params
	GyroMaxRadPerSec *float64 `json:"gyro_max_rad_per_sec,omitempty"`
	AccelStddevMps2  *float64 `json:"accel_stddev_mps2,omitempty"`
	GraceWindow      *string  `json:"grace_window,omitempty"`  // duration string like "500ms"
	MotionWindow     *string  `json:"motion_window,omitempty"` // duration string like "1s"
	MinPhaseDelta    *float64 `json:"min_phase_delta,omitempty"`

	// Baseline params
	BaselineAlpha      *float64 `json:"baseline_alpha,omitempty"`
	BaselineIdleFactor *float64 `json:"baseline_idle_factor,omitempty"`

	// Counter params
	LearnThreshold *float64 `json:"learn_threshold,omitempty"`

	// Session params
	Algorithm           *string  `json:"algorithm,omitempty"`
	WheelCircumferenceM *float64 `json:"wheel_circumference_m,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %f", *c.SampleRateHz)
	}
	if c.WindowSeconds != nil && *c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %f", *c.WindowSeconds)
	}
	if c.MinFillFraction != nil {
		if *c.MinFillFraction <= 0 || *c.MinFillFraction > 1 {
			return fmt.Errorf("min_fill_fraction must be within (0, 1], got %f", *c.MinFillFraction)
		}
	}
	if c.EstimateEvery != nil && *c.EstimateEvery < 1 {
		return fmt.Errorf("estimate_every must be at least 1, got %d", *c.EstimateEvery)
	}
	if c.MinPlanarity != nil {
		if *c.MinPlanarity <= 0 || *c.MinPlanarity >= 1 {
			return fmt.Errorf("min_planarity must be within (0, 1), got %f", *c.MinPlanarity)
		}
	}
	if c.BaselineAlpha != nil {
		if *c.BaselineAlpha <= 0 || *c.BaselineAlpha > 1 {
			return fmt.Errorf("baseline_alpha must be within (0, 1], got %f", *c.BaselineAlpha)
		}
	}
	if c.GraceWindow != nil && *c.GraceWindow != "" {
		if _, err := time.ParseDuration(*c.GraceWindow); err != nil {
			return fmt.Errorf("invalid grace_window '%s': %w", *c.GraceWindow, err)
		}
	}
	if c.MotionWindow != nil && *c.MotionWindow != "" {
		if _, err := time.ParseDuration(*c.MotionWindow); err != nil {
			return fmt.Errorf("invalid motion_window '%s': %w", *c.MotionWindow, err)
		}
	}
	if c.WheelCircumferenceM != nil && *c.WheelCircumferenceM < 0 {
		return fmt.Errorf("wheel_circumference_m must be non-negative, got %f", *c.WheelCircumferenceM)
	}
	if c.Algorithm != nil {
		switch *c.Algorithm {
		case magrev.AlgorithmPhase, magrev.AlgorithmThreshold:
		default:
			return fmt.Errorf("unknown algorithm %q", *c.Algorithm)
		}
	}
	return nil
}

// Merge overlays the set fields of other onto a copy of c. Used by the
// runtime config endpoint to apply partial updates.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	merged := *c
	if other.SampleRateHz != nil {
		merged.SampleRateHz = other.SampleRateHz
	}
	if other.WindowSeconds != nil {
		merged.WindowSeconds = other.WindowSeconds
	}
	if other.MinFillFraction != nil {
		merged.MinFillFraction = other.MinFillFraction
	}
	if other.EstimateEvery != nil {
		merged.EstimateEvery = other.EstimateEvery
	}
	if other.MinPlanarity != nil {
		merged.MinPlanarity = other.MinPlanarity
	}
	if other.GyroMaxRadPerSec != nil {
		merged.GyroMaxRadPerSec = other.GyroMaxRadPerSec
	}
	if other.AccelStddevMps2 != nil {
		merged.AccelStddevMps2 = other.AccelStddevMps2
	}
	if other.GraceWindow != nil {
		merged.GraceWindow = other.GraceWindow
	}
	if other.MotionWindow != nil {
		merged.MotionWindow = other.MotionWindow
	}
	if other.MinPhaseDelta != nil {
		merged.MinPhaseDelta = other.MinPhaseDelta
	}
	if other.BaselineAlpha != nil {
		merged.BaselineAlpha = other.BaselineAlpha
	}
	if other.BaselineIdleFactor != nil {
		merged.BaselineIdleFactor = other.BaselineIdleFactor
	}
	if other.LearnThreshold != nil {
		merged.LearnThreshold = other.LearnThreshold
	}
	if other.Algorithm != nil {
		merged.Algorithm = other.Algorithm
	}
	if other.WheelCircumferenceM != nil {
		merged.WheelCircumferenceM = other.WheelCircumferenceM
	}
	return &merged
}

// DetectorConfig builds the detector configuration from the tuning
// values, falling back to detector defaults for unset fields.
func (c *TuningConfig) DetectorConfig() magrev.DetectorConfig {
	cfg := magrev.DefaultDetectorConfig()
	if c.SampleRateHz != nil {
		cfg.SampleRateHz = *c.SampleRateHz
	}
	if c.WindowSeconds != nil {
		cfg.WindowSeconds = *c.WindowSeconds
	}
	if c.MinFillFraction != nil {
		cfg.MinFillFraction = *c.MinFillFraction
	}
	if c.EstimateEvery != nil {
		cfg.EstimateEvery = *c.EstimateEvery
	}
	if c.MinPlanarity != nil {
		cfg.MinPlanarity = *c.MinPlanarity
	}
	if c.GyroMaxRadPerSec != nil {
		cfg.GyroMaxRadPerSec = *c.GyroMaxRadPerSec
	}
	if c.AccelStddevMps2 != nil {
		cfg.AccelStddevMps2 = *c.AccelStddevMps2
	}
	if c.BaselineAlpha != nil {
		cfg.BaselineAlpha = *c.BaselineAlpha
	}
	if c.BaselineIdleFactor != nil {
		cfg.BaselineIdleFactor = *c.BaselineIdleFactor
	}
	if c.MinPhaseDelta != nil {
		cfg.MinPhaseDelta = *c.MinPhaseDelta
	}
	if c.LearnThreshold != nil {
		cfg.LearnThreshold = *c.LearnThreshold
	}
	cfg.GraceWindow = c.GetGraceWindow()
	cfg.MotionWindow = c.GetMotionWindow()
	return cfg
}

// GetGraceWindow parses and returns the GraceWindow as a time.Duration.
func (c *TuningConfig) GetGraceWindow() time.Duration {
	if c.GraceWindow == nil || *c.GraceWindow == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.GraceWindow)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetMotionWindow parses and returns the MotionWindow as a time.Duration.
func (c *TuningConfig) GetMotionWindow() time.Duration {
	if c.MotionWindow == nil || *c.MotionWindow == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.MotionWindow)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetAlgorithm returns the algorithm value or the default.
func (c *TuningConfig) GetAlgorithm() string {
	if c.Algorithm == nil || *c.Algorithm == "" {
		return magrev.AlgorithmPhase
	}
	return *c.Algorithm
}

// GetWheelCircumferenceM returns the wheel_circumference_m value or the
// default (a 700x25c road wheel).
func (c *TuningConfig) GetWheelCircumferenceM() float64 {
	if c.WheelCircumferenceM == nil {
		return 2.105
	}
	return *c.WheelCircumferenceM
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *TuningConfig) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return 50
	}
	return *c.SampleRateHz
}
