package magrev

import (
	"fmt"
	"sort"
	"sync"
)

// Detector algorithm names accepted by the manager and the API.
const (
	AlgorithmPhase     = "phase"
	AlgorithmThreshold = "threshold"
)

// Manager holds one active Detector behind the interface and forwards
// lifecycle and feed calls to it. Variants register by name; switching
// stops and resets the outgoing detector so counts never leak across
// algorithms.
type Manager struct {
	mu        sync.RWMutex
	detectors map[string]Detector
	active    string
	running   bool
}

// Snapshot is a point-in-time view of the active detector for the API and
// telemetry consumers.
type Snapshot struct {
	Running       bool    `json:"running"`
	Algorithm     string  `json:"algorithm"`
	Revolutions   uint64  `json:"revolutions"`
	SignalQuality float64 `json:"signal_quality"`
	PhaseAngle    float64 `json:"phase_angle_rad"`
}

// NewManager creates a manager with no registered detectors.
func NewManager() *Manager {
	return &Manager{detectors: make(map[string]Detector)}
}

// Register adds a detector variant under name. The first registration
// becomes the active variant.
func (m *Manager) Register(name string, d Detector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectors[name] = d
	if m.active == "" {
		m.active = name
	}
}

// Algorithms returns the registered variant names, sorted.
func (m *Manager) Algorithms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.detectors))
	for name := range m.detectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Algorithm returns the active variant name.
func (m *Manager) Algorithm() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// SetAlgorithm switches the active variant. The outgoing detector is
// stopped and reset; the incoming one starts if the manager was running.
func (m *Manager) SetAlgorithm(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.detectors[name]
	if !ok {
		return fmt.Errorf("unknown detector algorithm %q", name)
	}
	if name == m.active {
		return nil
	}

	if cur, ok := m.detectors[m.active]; ok {
		if err := cur.Stop(); err != nil {
			return fmt.Errorf("stopping %s detector: %w", m.active, err)
		}
		cur.Reset()
	}
	m.active = name
	if m.running {
		if err := next.Start(); err != nil {
			return fmt.Errorf("starting %s detector: %w", name, err)
		}
	}
	return nil
}

// Start starts the active detector. Idempotent.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	d, ok := m.detectors[m.active]
	if !ok {
		return fmt.Errorf("no detector registered")
	}
	if err := d.Start(); err != nil {
		return err
	}
	m.running = true
	return nil
}

// Stop stops the active detector. Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	d := m.detectors[m.active]
	if err := d.Stop(); err != nil {
		return err
	}
	m.running = false
	return nil
}

// Running reports whether the manager has been started.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Reset resets the active detector.
func (m *Manager) Reset() {
	if d := m.activeDetector(); d != nil {
		d.Reset()
	}
}

// FeedField forwards a magnetometer sample to the active detector.
func (m *Manager) FeedField(s Sample) {
	if d := m.activeDetector(); d != nil {
		d.FeedField(s)
	}
}

// FeedGyro forwards a gyroscope sample to the active detector.
func (m *Manager) FeedGyro(s Sample) {
	if d := m.activeDetector(); d != nil {
		d.FeedGyro(s)
	}
}

// FeedAccel forwards an accelerometer sample to the active detector.
func (m *Manager) FeedAccel(s Sample) {
	if d := m.activeDetector(); d != nil {
		d.FeedAccel(s)
	}
}

// RevolutionCount returns the active detector's count.
func (m *Manager) RevolutionCount() uint64 {
	if d := m.activeDetector(); d != nil {
		return d.RevolutionCount()
	}
	return 0
}

// SignalQuality returns the active detector's quality score.
func (m *Manager) SignalQuality() float64 {
	if d := m.activeDetector(); d != nil {
		return d.SignalQuality()
	}
	return 0
}

// PhaseAngle returns the active detector's phase angle.
func (m *Manager) PhaseAngle() float64 {
	if d := m.activeDetector(); d != nil {
		return d.PhaseAngle()
	}
	return 0
}

// Snapshot returns a consistent view of the active detector.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	running := m.running
	name := m.active
	d := m.detectors[name]
	m.mu.RUnlock()

	snap := Snapshot{Running: running, Algorithm: name}
	if d != nil {
		snap.Revolutions = d.RevolutionCount()
		snap.SignalQuality = d.SignalQuality()
		snap.PhaseAngle = d.PhaseAngle()
	}
	return snap
}

func (m *Manager) activeDetector() Detector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detectors[m.active]
}
