// Command gen-maglog generates sample .maglog recordings for testing
// replay and detector tuning.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/banshee-data/rotation.report/internal/magrev"
	"github.com/banshee-data/rotation.report/internal/stream"
)

func main() {
	output := flag.String("o", "sample.maglog", "output path")
	seconds := flag.Float64("seconds", 30, "trace duration in seconds")
	rotationHz := flag.Float64("rotation-hz", 1.0, "magnet revolutions per second (negative reverses)")
	sampleRate := flag.Float64("rate", 50, "field samples per second")
	noise := flag.Float64("noise", 5, "per-axis gaussian noise sigma, microtesla")
	seed := flag.Int64("seed", 1, "random seed")
	withGyro := flag.Bool("gyro", true, "interleave zero-motion gyro samples")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer f.Close()

	rec := stream.NewLogRecorder(f)
	defer rec.Close()

	gen := magrev.NewSynthesizer(*seed)
	gen.RotationHz = *rotationHz
	gen.SampleRateHz = *sampleRate
	gen.NoiseUT = *noise
	gen.SetStart(time.Now().UnixNano())

	total := int(*seconds * *sampleRate)
	progressEvery := int(*sampleRate * 10)
	if progressEvery < 1 {
		progressEvery = 1
	}
	for i := 0; i < total; i++ {
		if *withGyro {
			rec.PushGyro(gen.StillGyro())
		}
		rec.PushField(gen.Next())
		if (i+1)%progressEvery == 0 {
			log.Printf("%d/%d samples", i+1, total)
		}
	}

	if err := rec.Flush(); err != nil {
		log.Fatalf("Failed to flush recording: %v", err)
	}
	log.Printf("✓ Created: %s (%.0fs at %.0f Hz, %.2f rev/s)", *output, *seconds, *sampleRate, *rotationHz)
}
