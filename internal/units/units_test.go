package units

import (
	"math"
	"testing"
)

func TestConvertAngle(t *testing.T) {
	tests := []struct {
		name     string
		angleRad float64
		units    string
		expected float64
	}{
		{"full circle to revs", 2 * math.Pi, Revolutions, 1.0},
		{"half circle to deg", math.Pi, Degrees, 180.0},
		{"quarter circle to rad", math.Pi / 2, Radians, math.Pi / 2},
		{"ten circles to revs", 20 * math.Pi, Revolutions, 10.0},
		{"negative angle to deg", -math.Pi / 2, Degrees, -90.0},
		{"unknown units default to rad", 1.5, "furlongs", 1.5},
		{"zero", 0, Revolutions, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertAngle(tt.angleRad, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertAngle(%f, %s) = %f, want %f", tt.angleRad, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, unit := range ValidUnits {
		if !IsValid(unit) {
			t.Errorf("IsValid(%s) = false", unit)
		}
	}
	for _, unit := range []string{"", "radians", "rev", "mph"} {
		if IsValid(unit) {
			t.Errorf("IsValid(%s) = true", unit)
		}
	}
}

func TestRPM(t *testing.T) {
	if got := RPM(10, 60); got != 10 {
		t.Errorf("RPM(10, 60) = %v, want 10", got)
	}
	if got := RPM(1, 0.5); got != 120 {
		t.Errorf("RPM(1, 0.5) = %v, want 120", got)
	}
	if got := RPM(5, 0); got != 0 {
		t.Errorf("RPM with zero duration = %v, want 0", got)
	}
}

func TestDistanceAndSpeed(t *testing.T) {
	if got := DistanceM(100, 2.1); math.Abs(got-210) > 1e-9 {
		t.Errorf("DistanceM = %v, want 210", got)
	}
	if got := SpeedMps(100, 2.1, 60); math.Abs(got-3.5) > 1e-9 {
		t.Errorf("SpeedMps = %v, want 3.5", got)
	}
	if got := SpeedMps(100, 2.1, 0); got != 0 {
		t.Errorf("SpeedMps with zero duration = %v, want 0", got)
	}
}
