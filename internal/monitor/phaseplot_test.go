package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

func newRunningDetector(t *testing.T) *magrev.PhaseDetector {
	t.Helper()
	d, err := magrev.NewPhaseDetector(magrev.DefaultDetectorConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestPhasePlotterGeneratesPlots(t *testing.T) {
	d := newRunningDetector(t)
	pp := NewPhasePlotter("phase")
	outDir := filepath.Join(t.TempDir(), "plots")
	if err := pp.Start(outDir); err != nil {
		t.Fatal(err)
	}

	g := magrev.NewSynthesizer(1)
	for i := 0; i < 300; i++ {
		s := g.Next()
		d.FeedField(s)
		pp.Sample(d, s.UnixNanos)
	}
	pp.Stop()

	if pp.SampleCount() != 300 {
		t.Fatalf("sample count = %d", pp.SampleCount())
	}

	count, err := pp.GeneratePlots()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("generated %d plots, want 3", count)
	}

	for _, name := range []string{"phase.png", "quality.png", "revolutions.png"} {
		info, err := os.Stat(filepath.Join(outDir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestPhasePlotterSamplingGates(t *testing.T) {
	d := newRunningDetector(t)
	pp := NewPhasePlotter("phase")

	// Not started: samples are ignored.
	pp.Sample(d, 1000)
	if pp.SampleCount() != 0 {
		t.Errorf("recorded while disabled: %d", pp.SampleCount())
	}

	if err := pp.Start(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	pp.Sample(d, 1000)
	pp.Sample(nil, 2000)
	pp.Stop()
	pp.Sample(d, 3000)

	if pp.SampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", pp.SampleCount())
	}
}

func TestGeneratePlotsWithoutStart(t *testing.T) {
	pp := NewPhasePlotter("phase")
	if _, err := pp.GeneratePlots(); err == nil {
		t.Error("expected error without output dir")
	}
}

func TestGeneratePlotsEmptyRun(t *testing.T) {
	pp := NewPhasePlotter("phase")
	if err := pp.Start(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	count, err := pp.GeneratePlots()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("plots from empty run: %d", count)
	}
}
