// Package units provides shared constants and conversions for angles and
// rotation rates.
package units

import "math"

// Angle unit constants
const (
	Revolutions = "revs"
	Degrees     = "deg"
	Radians     = "rad"
)

// ValidUnits contains all valid angle unit values
var ValidUnits = []string{Revolutions, Degrees, Radians}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "revs, deg, rad"
}

// ConvertAngle converts an angle from radians to the target units.
// The pipeline works in radians internally.
func ConvertAngle(angleRad float64, targetUnits string) float64 {
	switch targetUnits {
	case Revolutions:
		return angleRad / (2 * math.Pi)
	case Degrees:
		return angleRad * 180 / math.Pi
	case Radians:
		return angleRad
	default:
		return angleRad // default to radians if unknown unit
	}
}

// RPM converts revolutions over a duration in seconds to revolutions per
// minute. Returns 0 for non-positive durations.
func RPM(revolutions float64, durationSec float64) float64 {
	if durationSec <= 0 {
		return 0
	}
	return revolutions / durationSec * 60
}

// DistanceM returns the distance travelled by a wheel of the given
// circumference over a revolution count.
func DistanceM(revolutions uint64, circumferenceM float64) float64 {
	return float64(revolutions) * circumferenceM
}

// SpeedMps returns the average speed for a revolution count over a
// duration. Returns 0 for non-positive durations.
func SpeedMps(revolutions uint64, circumferenceM float64, durationSec float64) float64 {
	if durationSec <= 0 {
		return 0
	}
	return DistanceM(revolutions, circumferenceM) / durationSec
}
