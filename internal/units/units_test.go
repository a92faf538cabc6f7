package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mps", MPS, true},
		{"valid mph", MPH, true},
		{"valid kmph", KMPH, true},
		{"valid kph", KPH, true},
		{"invalid unit", "furlongs", false},
		{"empty unit", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestFromMPS(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		unit     string
		expected float64
	}{
		{"mps passthrough", 5.0, MPS, 5.0},
		{"mph", 1.0, MPH, 2.2369362920544},
		{"kmph", 5.0, KMPH, 18.0},
		{"kph alias", 1.0, KPH, 3.6},
		{"unknown falls back to mps", 1.0, "unknown", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromMPS(tt.speedMPS, tt.unit); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("FromMPS(%v, %s) = %v, want %v", tt.speedMPS, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestKMHToMPSRoundTrip(t *testing.T) {
	if got := FromMPS(KMHToMPS(50), KMPH); math.Abs(got-50) > 1e-9 {
		t.Errorf("round trip = %v, want 50", got)
	}
}
