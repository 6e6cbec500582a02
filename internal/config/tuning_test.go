package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsFileMatchesDetectorDefaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if diff := cmp.Diff(magrev.DefaultDetectorConfig(), cfg.DetectorConfig()); diff != "" {
		t.Errorf("defaults file diverges from detector defaults (-want +got):\n%s", diff)
	}
	if cfg.GetAlgorithm() != magrev.AlgorithmPhase {
		t.Errorf("default algorithm = %s", cfg.GetAlgorithm())
	}
	if cfg.GetWheelCircumferenceM() != 2.105 {
		t.Errorf("default circumference = %v", cfg.GetWheelCircumferenceM())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	path := writeConfigFile(t, `{"min_planarity": 0.8, "grace_window": "250ms"}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	dc := cfg.DetectorConfig()
	if dc.MinPlanarity != 0.8 {
		t.Errorf("min planarity = %v", dc.MinPlanarity)
	}
	if dc.GraceWindow != 250*time.Millisecond {
		t.Errorf("grace window = %v", dc.GraceWindow)
	}
	// Omitted fields fall back to detector defaults.
	want := magrev.DefaultDetectorConfig()
	if dc.SampleRateHz != want.SampleRateHz || dc.BaselineAlpha != want.BaselineAlpha {
		t.Errorf("omitted fields did not keep defaults: %+v", dc)
	}
}

func TestLoadTuningConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"negative rate":     `{"sample_rate_hz": -1}`,
		"zero window":       `{"window_seconds": 0}`,
		"fill above one":    `{"min_fill_fraction": 1.5}`,
		"planarity one":     `{"min_planarity": 1.0}`,
		"alpha zero":        `{"baseline_alpha": 0}`,
		"bad grace":         `{"grace_window": "soon"}`,
		"bad motion window": `{"motion_window": "later"}`,
		"bad algorithm":     `{"algorithm": "optical"}`,
		"negative wheel":    `{"wheel_circumference_m": -2}`,
		"not json":          `sample_rate_hz: 50`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfigFile(t, content)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("config %s was accepted", content)
			}
		})
	}
}

func TestLoadTuningConfigRejectsNonJSONPath(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("non-.json path accepted")
	}
}

func TestMergeOverlaysOnlySetFields(t *testing.T) {
	base := &TuningConfig{
		SampleRateHz: ptrFloat64(50),
		MinPlanarity: ptrFloat64(0.7),
		Algorithm:    ptrString("phase"),
	}
	update := &TuningConfig{
		MinPlanarity: ptrFloat64(0.85),
		GraceWindow:  ptrString("750ms"),
	}

	merged := base.Merge(update)
	if *merged.SampleRateHz != 50 {
		t.Errorf("sample rate overwritten: %v", *merged.SampleRateHz)
	}
	if *merged.MinPlanarity != 0.85 {
		t.Errorf("min planarity not updated: %v", *merged.MinPlanarity)
	}
	if merged.GraceWindow == nil || *merged.GraceWindow != "750ms" {
		t.Errorf("grace window not applied")
	}
	if *merged.Algorithm != "phase" {
		t.Errorf("algorithm overwritten: %v", *merged.Algorithm)
	}
	// The receiver is untouched.
	if base.GraceWindow != nil || *base.MinPlanarity != 0.7 {
		t.Error("merge mutated the base config")
	}
}

func TestDurationGettersFallBackOnEmpty(t *testing.T) {
	cfg := &TuningConfig{GraceWindow: ptrString(""), MotionWindow: ptrString("")}
	if cfg.GetGraceWindow() != 500*time.Millisecond {
		t.Errorf("grace fallback = %v", cfg.GetGraceWindow())
	}
	if cfg.GetMotionWindow() != time.Second {
		t.Errorf("motion fallback = %v", cfg.GetMotionWindow())
	}
}

func TestEstimateEveryValidation(t *testing.T) {
	cfg := &TuningConfig{EstimateEvery: ptrInt(0)}
	if err := cfg.Validate(); err == nil {
		t.Error("estimate_every 0 accepted")
	}
}
