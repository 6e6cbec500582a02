// Command algo-compare replays a .maglog recording through every detector
// variant and compares their revolution counts and processing cost.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/banshee-data/rotation.report/internal/config"
	"github.com/banshee-data/rotation.report/internal/magrev"
	"github.com/banshee-data/rotation.report/internal/stream"
)

// Config holds configuration for the comparison run.
type Config struct {
	LogFile    string
	ConfigPath string
	OutputJSON string
	Verbose    bool
}

// AlgoStats holds per-algorithm results.
type AlgoStats struct {
	Name             string  `json:"name"`
	Revolutions      uint64  `json:"revolutions"`
	FinalQuality     float64 `json:"final_quality"`
	Events           int     `json:"events"`
	AvgEventQuality  float64 `json:"avg_event_quality"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// ComparisonResult is the full run summary.
type ComparisonResult struct {
	LogFile      string               `json:"log_file"`
	FieldSamples int64                `json:"field_samples"`
	PerAlgorithm map[string]AlgoStats `json:"per_algorithm"`
	CountDelta   int64                `json:"count_delta"`
}

func main() {
	cfg := parseFlags()

	if cfg.LogFile == "" {
		log.Fatal("A .maglog file is required (-log)")
	}
	if _, err := os.Stat(cfg.LogFile); os.IsNotExist(err) {
		log.Fatalf("Log file not found: %s", cfg.LogFile)
	}

	result, err := runComparison(cfg)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}

	printResults(result)

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.LogFile, "log", "", "Path to .maglog file to replay")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON path (defaults to built-in defaults)")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON path (e.g. results.json)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log each revolution event")
	flag.Parse()
	return cfg
}

// detectorRun wraps one variant with its event capture.
type detectorRun struct {
	name      string
	detector  magrev.Detector
	events    []magrev.RevolutionEvent
	elapsedNs int64
}

// compareSink fans each sample out to every detector, timing them
// separately.
type compareSink struct {
	runs         []*detectorRun
	fieldSamples int64
}

func (s *compareSink) PushField(smp magrev.Sample) bool {
	s.fieldSamples++
	for _, r := range s.runs {
		start := time.Now()
		r.detector.FeedField(smp)
		r.elapsedNs += time.Since(start).Nanoseconds()
	}
	return true
}

func (s *compareSink) PushGyro(smp magrev.Sample) bool {
	for _, r := range s.runs {
		r.detector.FeedGyro(smp)
	}
	return true
}

func (s *compareSink) PushAccel(smp magrev.Sample) bool {
	for _, r := range s.runs {
		r.detector.FeedAccel(smp)
	}
	return true
}

func runComparison(cfg Config) (*ComparisonResult, error) {
	tuning := config.MustLoadDefaultConfig()
	if cfg.ConfigPath != "" {
		loaded, err := config.LoadTuningConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading tuning config: %w", err)
		}
		tuning = loaded
	}
	detectorCfg := tuning.DetectorConfig()

	phase, err := magrev.NewPhaseDetector(detectorCfg)
	if err != nil {
		return nil, err
	}
	threshold, err := magrev.NewThresholdDetector(detectorCfg)
	if err != nil {
		return nil, err
	}

	runs := []*detectorRun{
		{name: magrev.AlgorithmPhase, detector: phase},
		{name: magrev.AlgorithmThreshold, detector: threshold},
	}
	for _, r := range runs {
		r := r
		hook := func(e magrev.RevolutionEvent) {
			r.events = append(r.events, e)
			if cfg.Verbose {
				log.Printf("[%s] revolution %d at %d (quality %.2f)", r.name, e.Count, e.UnixNanos, e.Quality)
			}
		}
		switch d := r.detector.(type) {
		case *magrev.PhaseDetector:
			d.OnRevolution(hook)
		case *magrev.ThresholdDetector:
			d.OnRevolution(hook)
		}
		if err := r.detector.Start(); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sink := &compareSink{runs: runs}
	replay := stream.NewLogReplay(f, sink, nil)
	replay.Rate = 0 // as fast as possible
	if err := replay.Run(context.Background()); err != nil {
		return nil, err
	}

	result := &ComparisonResult{
		LogFile:      cfg.LogFile,
		FieldSamples: sink.fieldSamples,
		PerAlgorithm: make(map[string]AlgoStats),
	}
	for _, r := range runs {
		stats := AlgoStats{
			Name:             r.name,
			Revolutions:      r.detector.RevolutionCount(),
			FinalQuality:     r.detector.SignalQuality(),
			Events:           len(r.events),
			ProcessingTimeMs: r.elapsedNs / 1e6,
		}
		if len(r.events) > 0 {
			sum := 0.0
			for _, e := range r.events {
				sum += e.Quality
			}
			stats.AvgEventQuality = sum / float64(len(r.events))
		}
		result.PerAlgorithm[r.name] = stats
	}

	phaseCount := int64(result.PerAlgorithm[magrev.AlgorithmPhase].Revolutions)
	thresholdCount := int64(result.PerAlgorithm[magrev.AlgorithmThreshold].Revolutions)
	result.CountDelta = phaseCount - thresholdCount
	return result, nil
}

func printResults(result *ComparisonResult) {
	fmt.Printf("\n=== Algorithm Comparison: %s ===\n", result.LogFile)
	fmt.Printf("Field samples: %d\n\n", result.FieldSamples)
	for _, name := range []string{magrev.AlgorithmPhase, magrev.AlgorithmThreshold} {
		stats := result.PerAlgorithm[name]
		fmt.Printf("%-10s revolutions=%-6d events=%-6d avg_quality=%.3f final_quality=%.3f processing=%dms\n",
			stats.Name, stats.Revolutions, stats.Events, stats.AvgEventQuality, stats.FinalQuality, stats.ProcessingTimeMs)
	}
	fmt.Printf("\nCount delta (phase - threshold): %d\n", result.CountDelta)
}

func exportJSON(result *ComparisonResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
