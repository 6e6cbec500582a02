package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/rotation.report/internal/monitoring"
)

// StatsInterface provides sample statistics management for ingestion
// sources.
type StatsInterface interface {
	AddPacket(bytes int)
	AddSample()
	AddDropped()
	AddMalformed()
	LogStats()
}

// SampleStats tracks ingestion statistics with thread-safe operations.
type SampleStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	sampleCount    int64
	droppedCount   int64
	malformedCount int64
	lastReset      time.Time
}

// NewSampleStats creates a new SampleStats instance.
func NewSampleStats() *SampleStats {
	return &SampleStats{lastReset: time.Now()}
}

// AddPacket increments packet count and byte count.
func (s *SampleStats) AddPacket(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetCount++
	s.byteCount += int64(bytes)
}

// AddSample increments the accepted sample count.
func (s *SampleStats) AddSample() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleCount++
}

// AddDropped increments the queue-overflow drop count.
func (s *SampleStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.droppedCount++
}

// AddMalformed increments the unparseable-input count.
func (s *SampleStats) AddMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformedCount++
}

// GetAndReset returns current stats and resets counters.
func (s *SampleStats) GetAndReset() (packets, bytes, samples, dropped, malformed int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration = now.Sub(s.lastReset)
	packets = s.packetCount
	bytes = s.byteCount
	samples = s.sampleCount
	dropped = s.droppedCount
	malformed = s.malformedCount

	s.packetCount = 0
	s.byteCount = 0
	s.sampleCount = 0
	s.droppedCount = 0
	s.malformedCount = 0
	s.lastReset = now

	return
}

// LogStats logs formatted ingestion statistics since the last reset.
func (s *SampleStats) LogStats() {
	packets, bytes, samples, dropped, malformed, duration := s.GetAndReset()
	if packets == 0 && dropped == 0 && malformed == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	kbPerSec := float64(bytes) / duration.Seconds() / 1024
	samplesPerSec := float64(samples) / duration.Seconds()

	logMsg := fmt.Sprintf("Stream stats (/sec): %.1f KB, %.1f packets, %.1f samples",
		kbPerSec, packetsPerSec, samplesPerSec)
	if dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on queue", dropped)
	}
	if malformed > 0 {
		logMsg += fmt.Sprintf(", %d malformed", malformed)
	}
	monitoring.Logf("%s", logMsg)
}

// noopStats is a StatsInterface implementation that does nothing. It is
// used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddSample()          {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) AddMalformed()       {}
func (n *noopStats) LogStats()           {}
