package magrev

import "math"

// CounterState is the lifecycle state of a RevolutionCounter.
type CounterState string

const (
	// CounterAwaitingDirection means the forward rotation sign has not
	// been learned yet; no counting happens in this state.
	CounterAwaitingDirection CounterState = "awaiting_direction"
	// CounterCounting means the forward sign is learned and forward phase
	// accumulates toward revolution events.
	CounterCounting CounterState = "counting"
)

// RevolutionCounter learns the dominant rotation direction from the first
// confidently-moving sample and counts whole forward revolutions.
//
// Phase in the direction opposite the learned forward sign is ignored
// entirely: it neither advances nor regresses the count. A magnet
// oscillating back and forth across the same arc therefore never
// decrements a previously counted revolution.
type RevolutionCounter struct {
	learnThreshold float64

	state CounterState
	phase *PhaseState
	count uint64
}

// NewRevolutionCounter creates a counter bound to the given phase state.
func NewRevolutionCounter(learnThreshold float64, phase *PhaseState) *RevolutionCounter {
	return &RevolutionCounter{
		learnThreshold: learnThreshold,
		state:          CounterAwaitingDirection,
		phase:          phase,
	}
}

// Apply consumes one validated phase delta and returns the number of whole
// revolutions completed by it (usually 0 or 1). Invalid samples must be
// skipped by the caller, not passed here; skipping is what preserves a
// partially completed revolution across sensor dropout.
func (c *RevolutionCounter) Apply(delta float64) uint64 {
	if c.state == CounterAwaitingDirection {
		if math.Abs(delta) <= c.learnThreshold {
			return 0
		}
		if delta > 0 {
			c.phase.ForwardSign = 1
		} else {
			c.phase.ForwardSign = -1
		}
		c.state = CounterCounting
	}

	signed := delta * c.phase.ForwardSign
	if signed <= 0 {
		return 0
	}

	c.phase.ForwardAccum += signed
	whole := math.Floor(c.phase.ForwardAccum / (2 * math.Pi))
	if whole < 1 {
		return 0
	}
	c.phase.ForwardAccum -= whole * 2 * math.Pi
	emitted := uint64(whole)
	c.count += emitted
	return emitted
}

// Count returns the total whole revolutions counted since start/reset.
func (c *RevolutionCounter) Count() uint64 {
	return c.count
}

// State returns the current lifecycle state.
func (c *RevolutionCounter) State() CounterState {
	return c.state
}

// ForwardSign returns the learned direction (+1/-1), or 0 before learning.
func (c *RevolutionCounter) ForwardSign() float64 {
	return c.phase.ForwardSign
}

// Reset returns the counter to CounterAwaitingDirection with a zero count.
// The bound phase state is reset by the owning detector.
func (c *RevolutionCounter) Reset() {
	c.state = CounterAwaitingDirection
	c.count = 0
}
