// Package monitor provides offline visualisation of detector behaviour,
// for tuning runs against recorded sensor logs.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

// PhasePlotter records detector state over time for visualisation.
// It samples the detector on each call to Sample(), accumulating time
// series data that can be plotted after a run.
type PhasePlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	label     string

	startNs int64
	samples []PhaseSample
}

// PhaseSample is one snapshot of the detector's observable state.
type PhaseSample struct {
	UnixNanos   int64
	PhaseAngle  float64
	Quality     float64
	Revolutions uint64
}

// NewPhasePlotter creates a plotter. label is used in plot titles,
// typically the algorithm name or the source log file.
func NewPhasePlotter(label string) *PhasePlotter {
	return &PhasePlotter{label: label}
}

// Start initialises the plotter for a new run and creates outputDir.
func (pp *PhasePlotter) Start(outputDir string) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	pp.outputDir = outputDir
	pp.enabled = true
	pp.startNs = 0
	pp.samples = nil
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (pp *PhasePlotter) Stop() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (pp *PhasePlotter) IsEnabled() bool {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.enabled
}

// Sample captures the detector's current state. Call this once per
// field sample during replay, with the sample's timestamp.
func (pp *PhasePlotter) Sample(d magrev.Detector, unixNanos int64) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if !pp.enabled || d == nil {
		return
	}
	if pp.startNs == 0 {
		pp.startNs = unixNanos
	}
	pp.samples = append(pp.samples, PhaseSample{
		UnixNanos:   unixNanos,
		PhaseAngle:  d.PhaseAngle(),
		Quality:     d.SignalQuality(),
		Revolutions: d.RevolutionCount(),
	})
}

// SampleCount returns how many samples have been recorded.
func (pp *PhasePlotter) SampleCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.samples)
}

// GeneratePlots creates PNG files showing phase angle, signal quality
// and revolution count over time. Returns the number of plots written.
func (pp *PhasePlotter) GeneratePlots() (int, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(pp.samples) == 0 {
		return 0, nil
	}

	phasePts := make(plotter.XYs, 0, len(pp.samples))
	qualityPts := make(plotter.XYs, 0, len(pp.samples))
	revPts := make(plotter.XYs, 0, len(pp.samples))
	for _, s := range pp.samples {
		elapsed := float64(s.UnixNanos-pp.startNs) / 1e9
		phasePts = append(phasePts, plotter.XY{X: elapsed, Y: s.PhaseAngle})
		qualityPts = append(qualityPts, plotter.XY{X: elapsed, Y: s.Quality})
		revPts = append(revPts, plotter.XY{X: elapsed, Y: float64(s.Revolutions)})
	}

	plots := []struct {
		title string
		yAxis string
		file  string
		pts   plotter.XYs
		color color.Color
	}{
		{"Phase Angle", "Angle (rad)", "phase.png", phasePts, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"Signal Quality", "Planarity", "quality.png", qualityPts, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{"Revolution Count", "Revolutions", "revolutions.png", revPts, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	}

	count := 0
	for _, cfg := range plots {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s - %s", pp.label, cfg.title)
		p.X.Label.Text = "Elapsed (s)"
		p.Y.Label.Text = cfg.yAxis

		line, err := plotter.NewLine(cfg.pts)
		if err != nil {
			return count, fmt.Errorf("%s: %w", cfg.title, err)
		}
		line.Color = cfg.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(pp.label, line)
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		outFile := filepath.Join(pp.outputDir, cfg.file)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, outFile); err != nil {
			return count, fmt.Errorf("save %s: %w", cfg.file, err)
		}
		count++
	}

	return count, nil
}
