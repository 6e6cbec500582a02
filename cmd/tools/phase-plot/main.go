// Command phase-plot replays a .maglog recording through a detector and
// renders PNG time series of phase angle, signal quality and revolution
// count, for offline tuning.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/banshee-data/rotation.report/internal/config"
	"github.com/banshee-data/rotation.report/internal/magrev"
	"github.com/banshee-data/rotation.report/internal/monitor"
	"github.com/banshee-data/rotation.report/internal/stream"
)

// plotSink feeds a detector and samples the plotter after every field
// sample, so the series track the pipeline state per input.
type plotSink struct {
	detector magrev.Detector
	plotter  *monitor.PhasePlotter
}

func (s *plotSink) PushField(smp magrev.Sample) bool {
	s.detector.FeedField(smp)
	s.plotter.Sample(s.detector, smp.UnixNanos)
	return true
}

func (s *plotSink) PushGyro(smp magrev.Sample) bool {
	s.detector.FeedGyro(smp)
	return true
}

func (s *plotSink) PushAccel(smp magrev.Sample) bool {
	s.detector.FeedAccel(smp)
	return true
}

func main() {
	logFile := flag.String("log", "", "Path to .maglog file to replay")
	outputDir := flag.String("output", "plots", "Output directory for PNG files")
	algorithm := flag.String("algorithm", magrev.AlgorithmPhase, "Detector variant: phase or threshold")
	configPath := flag.String("config", "", "Tuning config JSON path (defaults to built-in defaults)")
	flag.Parse()

	if *logFile == "" {
		log.Fatal("A .maglog file is required (-log)")
	}

	tuning := config.MustLoadDefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	}
	detectorCfg := tuning.DetectorConfig()

	var detector magrev.Detector
	var err error
	switch *algorithm {
	case magrev.AlgorithmPhase:
		detector, err = magrev.NewPhaseDetector(detectorCfg)
	case magrev.AlgorithmThreshold:
		detector, err = magrev.NewThresholdDetector(detectorCfg)
	default:
		log.Fatalf("Unknown algorithm %q", *algorithm)
	}
	if err != nil {
		log.Fatalf("Failed to build detector: %v", err)
	}
	if err := detector.Start(); err != nil {
		log.Fatalf("Failed to start detector: %v", err)
	}

	plotter := monitor.NewPhasePlotter(*algorithm)
	if err := plotter.Start(*outputDir); err != nil {
		log.Fatalf("Failed to start plotter: %v", err)
	}

	f, err := os.Open(*logFile)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer f.Close()

	replay := stream.NewLogReplay(f, &plotSink{detector: detector, plotter: plotter}, nil)
	replay.Rate = 0 // as fast as possible
	if err := replay.Run(context.Background()); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	plotter.Stop()

	count, err := plotter.GeneratePlots()
	if err != nil {
		log.Fatalf("Failed to generate plots: %v", err)
	}
	log.Printf("✓ Wrote %d plots to %s (%d samples, %d revolutions)",
		count, *outputDir, plotter.SampleCount(), detector.RevolutionCount())
}
