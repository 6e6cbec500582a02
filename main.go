package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rotation.report/internal/api"
	"github.com/banshee-data/rotation.report/internal/config"
	"github.com/banshee-data/rotation.report/internal/db"
	"github.com/banshee-data/rotation.report/internal/magrev"
	"github.com/banshee-data/rotation.report/internal/mqtt"
	"github.com/banshee-data/rotation.report/internal/stream"
	"github.com/banshee-data/rotation.report/internal/units"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	dbPath     = flag.String("db", "rotation.db", "SQLite database path (empty disables persistence)")
	udpAddr    = flag.String("udp", ":9001", "UDP listen address for sensor datagrams (empty disables)")
	serialPort = flag.String("serial", "", "Serial port for sensor input, e.g. /dev/ttyUSB0")
	serialBaud = flag.Int("baud", 115200, "Serial baud rate")
	replayPath = flag.String("replay", "", "Replay a recorded .maglog or .pcap file instead of live input")
	replayRate = flag.Float64("replay-rate", 1.0, "Replay speed multiplier (2.0 = double speed)")
	pcapPort   = flag.Int("pcap-port", 9001, "UDP destination port filter for pcap replay (0 = all)")
	recordPath = flag.String("record", "", "Record incoming samples to a .maglog file")
	mqttBroker = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables)")
	mqttClient = flag.String("mqtt-client-id", "rotation-report", "MQTT client ID")
	angleUnits = flag.String("units", units.Revolutions, "Angle units for API responses: "+units.GetValidUnitsString())
	configPath = flag.String("config", "", "Tuning config JSON path (defaults to "+config.DefaultConfigPath+")")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*angleUnits) {
		log.Fatalf("Invalid units %q, valid: %s", *angleUnits, units.GetValidUnitsString())
	}

	// Tuning: file defaults first, then any overrides persisted via the
	// API in a previous run.
	var tuning *config.TuningConfig
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	var database *db.DB
	if *dbPath != "" {
		var err error
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		tuning = overlayStoredTuning(database, tuning)
	}

	manager := magrev.NewManager()

	var writer *db.EventWriter
	if database != nil {
		writer = db.NewEventWriter(database, 5*time.Second, 64)
	}
	sessions := api.NewSessionController(manager, database, writer, nil, tuning.GetWheelCircumferenceM())

	var publisher *mqtt.Publisher
	if *mqttBroker != "" {
		publisher = mqtt.NewPublisher(mqtt.PublisherConfig{
			Broker:   *mqttBroker,
			ClientID: *mqttClient,
		}, manager)
		if err := publisher.Connect(); err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
	}

	onRevolution := func(e magrev.RevolutionEvent) {
		sessions.HandleRevolution(e)
		if publisher != nil {
			publisher.PublishRevolution(e)
		}
	}

	if err := registerDetectors(manager, tuning, onRevolution); err != nil {
		log.Fatalf("Failed to build detectors: %v", err)
	}
	if err := manager.SetAlgorithm(tuning.GetAlgorithm()); err != nil {
		log.Fatalf("Failed to select algorithm: %v", err)
	}

	applyTuning := func(next *config.TuningConfig) error {
		wasRunning := manager.Running()
		if wasRunning {
			if err := manager.Stop(); err != nil {
				return err
			}
		}
		if err := registerDetectors(manager, next, onRevolution); err != nil {
			return err
		}
		if wasRunning {
			return manager.Start()
		}
		return nil
	}

	// Sample delivery: network and serial readers push into the feed,
	// a single goroutine drains it into the active detector.
	feed := stream.NewFeed(manager, stream.DefaultFeedCapacity)
	stats := stream.NewSampleStats()

	var sink stream.SampleSink = feed
	var recorder *stream.LogRecorder
	if *recordPath != "" {
		f, err := os.Create(*recordPath)
		if err != nil {
			log.Fatalf("Failed to create record file: %v", err)
		}
		defer f.Close()
		recorder = stream.NewLogRecorder(f)
		defer recorder.Close()
		sink = stream.Tee{feed, recorder}
		log.Printf("Recording samples to %s", *recordPath)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("feed routine error: %v", err)
		}
		log.Print("feed routine terminated")
	}()

	if writer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Run(ctx)
			log.Print("event writer terminated")
		}()
	}

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
			log.Print("mqtt publisher terminated")
		}()
	}

	switch {
	case *replayPath != "":
		startReplay(ctx, &wg, stop, sink, stats)
	default:
		if *udpAddr != "" {
			listener := stream.NewUDPListener(stream.UDPListenerConfig{
				Address:     *udpAddr,
				LogInterval: time.Minute,
				Stats:       stats,
				Sink:        sink,
			})
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("UDP listener error: %v", err)
				}
				log.Print("UDP listener terminated")
			}()
		}
		if *serialPort != "" {
			reader, err := stream.OpenSerialReader(*serialPort, *serialBaud, sink, stats)
			if err != nil {
				log.Fatalf("Failed to open serial port: %v", err)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer reader.Close()
				if err := reader.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("serial monitor error: %v", err)
				}
				log.Print("serial monitor terminated")
			}()
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(manager, database, sessions, tuning, applyTuning, *angleUnits)
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(apiServer.ServeMux()),
		}

		go func() {
			log.Printf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()
	if writer != nil {
		<-writer.Done()
	}
	log.Print("Graceful shutdown complete")
}

// startReplay feeds a recorded file through the pipeline and shuts the
// process down when the recording ends.
func startReplay(ctx context.Context, wg *sync.WaitGroup, stop context.CancelFunc, sink stream.SampleSink, stats *stream.SampleStats) {
	path := *replayPath
	rate := *replayRate

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()

		var err error
		switch {
		case strings.HasSuffix(path, stream.MaglogExtension):
			err = replayMaglog(ctx, path, rate, sink, stats)
		case strings.HasSuffix(path, ".pcap"):
			err = replayPCAP(ctx, path, rate, sink, stats)
		default:
			err = fmt.Errorf("unsupported replay format %q", filepath.Ext(path))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("replay error: %v", err)
		}
		log.Print("replay terminated")
	}()
}

func replayMaglog(ctx context.Context, path string, rate float64, sink stream.SampleSink, stats *stream.SampleStats) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	replay := stream.NewLogReplay(f, sink, stats)
	replay.Rate = rate
	log.Printf("Replaying %s at %.1fx", path, rate)
	return replay.Run(ctx)
}

func replayPCAP(ctx context.Context, path string, rate float64, sink stream.SampleSink, stats *stream.SampleStats) error {
	replay, err := stream.OpenPCAPReplay(path, *pcapPort, sink, stats)
	if err != nil {
		return err
	}
	replay.Rate = rate
	log.Printf("Replaying %s at %.1fx (port filter %d)", path, rate, *pcapPort)
	return replay.Run(ctx)
}

// registerDetectors builds both detector variants from cfg and installs
// them on the manager, preserving the active algorithm selection.
func registerDetectors(m *magrev.Manager, cfg *config.TuningConfig, onRevolution func(magrev.RevolutionEvent)) error {
	detectorCfg := cfg.DetectorConfig()

	phase, err := magrev.NewPhaseDetector(detectorCfg)
	if err != nil {
		return fmt.Errorf("phase detector: %w", err)
	}
	threshold, err := magrev.NewThresholdDetector(detectorCfg)
	if err != nil {
		return fmt.Errorf("threshold detector: %w", err)
	}
	if onRevolution != nil {
		phase.OnRevolution(onRevolution)
		threshold.OnRevolution(onRevolution)
	}
	m.Register(magrev.AlgorithmPhase, phase)
	m.Register(magrev.AlgorithmThreshold, threshold)
	return nil
}

// overlayStoredTuning merges tuning overrides persisted by the API over
// the file defaults. A missing setting is not an error.
func overlayStoredTuning(database *db.DB, base *config.TuningConfig) *config.TuningConfig {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored, err := database.LoadSetting(ctx, api.TuningSettingKey)
	if errors.Is(err, db.ErrNotFound) {
		return base
	}
	if err != nil {
		log.Printf("Failed to load stored tuning, using defaults: %v", err)
		return base
	}

	var overrides config.TuningConfig
	if err := json.Unmarshal([]byte(stored), &overrides); err != nil {
		log.Printf("Stored tuning is malformed, using defaults: %v", err)
		return base
	}
	merged := base.Merge(&overrides)
	if err := merged.Validate(); err != nil {
		log.Printf("Stored tuning is invalid, using defaults: %v", err)
		return base
	}
	log.Print("Applied stored tuning overrides")
	return merged
}
