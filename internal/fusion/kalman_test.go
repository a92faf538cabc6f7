package fusion

import (
	"math"
	"testing"

	"github.com/bpriyal/s2sGeoAdapter/internal/sensor"
)

func fix(lat, lon float64, tsMS int64) sensor.Sample {
	return sensor.Sample{
		Latitude:    lat,
		Longitude:   lon,
		Accuracy:    10,
		TimestampMS: tsMS,
	}
}

func TestConvergenceAfterOneUpdate(t *testing.T) {
	f := NewFilter()
	if !f.Update(fix(37.7749, -122.4194, 1000)) {
		t.Fatal("sample rejected")
	}
	// The 1e6 prior is overwhelmed by the first measurement; the residual is
	// the R floor (100) against the prior, about 1e-4 of the magnitude.
	ws := f.SmoothedState()
	if math.Abs(ws.SmoothedLat-37.7749) >= 0.02 {
		t.Errorf("SmoothedLat = %v, want within 0.02 of 37.7749", ws.SmoothedLat)
	}
	if math.Abs(ws.SmoothedLon+122.4194) >= 0.02 {
		t.Errorf("SmoothedLon = %v, want within 0.02 of -122.4194", ws.SmoothedLon)
	}
}

func TestContractionOnRepeatedMeasurements(t *testing.T) {
	f := NewFilter()
	ts := int64(1000)
	for i := 0; i < 30; i++ {
		s := fix(37.7749, -122.4194, ts)
		s.Accuracy = 8
		if !f.Update(s) {
			t.Fatalf("sample %d rejected", i)
		}
		ts += 1000
	}
	ws := f.SmoothedState()
	if math.Abs(ws.SmoothedLat-37.7749) > 1e-4 {
		t.Errorf("SmoothedLat = %.8f, want within 1e-4 of 37.7749", ws.SmoothedLat)
	}
	if math.Abs(ws.SmoothedLon+122.4194) > 1e-4 {
		t.Errorf("SmoothedLon = %.8f, want within 1e-4 of -122.4194", ws.SmoothedLon)
	}
}

func TestNoiseRejection(t *testing.T) {
	f := NewFilter()
	f.Update(fix(37.7749, -122.4194, 1000))
	f.Update(fix(37.8749, -122.3194, 1100))
	f.Update(fix(37.7749, -122.4194, 1200))

	ws := f.SmoothedState()
	if math.Abs(ws.SmoothedLat-37.7749) >= 0.05 {
		t.Errorf("SmoothedLat = %v, want within 0.05 of 37.7749", ws.SmoothedLat)
	}
	if math.Abs(ws.SmoothedLon+122.4194) >= 0.05 {
		t.Errorf("SmoothedLon = %v, want within 0.05 of -122.4194", ws.SmoothedLon)
	}
}

func TestDegenerateSamplesDropped(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sensor.Sample)
	}{
		{"nan lat", func(s *sensor.Sample) { s.Latitude = math.NaN() }},
		{"inf lon", func(s *sensor.Sample) { s.Longitude = math.Inf(1) }},
		{"nan accuracy", func(s *sensor.Sample) { s.Accuracy = math.NaN() }},
		{"absurd accuracy", func(s *sensor.Sample) { s.Accuracy = 1e6 }},
		{"negative accuracy", func(s *sensor.Sample) { s.Accuracy = -1 }},
		{"lat out of range", func(s *sensor.Sample) { s.Latitude = 123 }},
		{"lon out of range", func(s *sensor.Sample) { s.Longitude = 181 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter()
			f.Update(fix(37.7749, -122.4194, 1000))
			before := f.SmoothedState()

			bad := fix(37.7749, -122.4194, 2000)
			tt.mutate(&bad)
			if f.Update(bad) {
				t.Fatal("degenerate sample accepted")
			}
			after := f.SmoothedState()
			if before != after {
				t.Errorf("state changed on rejected sample:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}
}

func TestDTClampBoundsStalls(t *testing.T) {
	f := NewFilter()
	f.Update(fix(37.7749, -122.4194, 1000))
	// An hour-long gap must behave like a 1 s gap, not explode the state.
	f.Update(fix(37.7750, -122.4195, 1000+3600*1000))

	ws := f.SmoothedState()
	if math.Abs(ws.SmoothedLat-37.7750) > 0.01 {
		t.Errorf("SmoothedLat = %v after long stall, want near 37.7750", ws.SmoothedLat)
	}
	if math.IsNaN(ws.SmoothedLat) || math.IsNaN(ws.SmoothedLon) {
		t.Error("state went non-finite after stall")
	}
}

func TestIsMovingThreshold(t *testing.T) {
	f := NewFilter()
	for i := 0; i < 10; i++ {
		f.Update(fix(37.7749, -122.4194, int64(1000+i*1000)))
	}
	if ws := f.SmoothedState(); ws.IsMoving {
		t.Errorf("IsMoving = true for a stationary fix sequence")
	}
}

func TestStepDetection(t *testing.T) {
	f := NewFilter()
	f.EnablePDR(true)

	s := fix(37.7749, -122.4194, 1000)
	s.AccelZ = 5
	f.Update(s)

	// Upward crossing of the threshold records one step.
	s = fix(37.7749, -122.4194, 2000)
	s.AccelZ = 16
	f.Update(s)
	if got := f.StepCount(); got != 1 {
		t.Fatalf("StepCount = %d after crossing, want 1", got)
	}

	// Staying above the threshold is not another step.
	s = fix(37.7749, -122.4194, 2100)
	s.AccelZ = 17
	f.Update(s)
	if got := f.StepCount(); got != 1 {
		t.Fatalf("StepCount = %d without a new crossing, want 1", got)
	}

	// A second crossing inside the minimum interval is suppressed.
	s = fix(37.7749, -122.4194, 2150)
	s.AccelZ = 5
	f.Update(s)
	s = fix(37.7749, -122.4194, 2200)
	s.AccelZ = 16
	f.Update(s)
	if got := f.StepCount(); got != 1 {
		t.Fatalf("StepCount = %d inside min interval, want 1", got)
	}

	// And honoured once the interval has passed.
	s = fix(37.7749, -122.4194, 4000)
	s.AccelZ = 5
	f.Update(s)
	s = fix(37.7749, -122.4194, 5000)
	s.AccelZ = 16
	f.Update(s)
	if got := f.StepCount(); got != 2 {
		t.Fatalf("StepCount = %d after interval, want 2", got)
	}
}

func TestStepCountMonotonicAndDistance(t *testing.T) {
	f := NewFilter()
	f.EnablePDR(true)

	var prev uint32
	accel := []float64{5, 16, 4, 17, 3, 18, 5, 16}
	for i, az := range accel {
		s := fix(37.7749, -122.4194, int64(1000+i*1000))
		s.AccelZ = az
		f.Update(s)
		if got := f.StepCount(); got < prev {
			t.Fatalf("step count decreased: %d then %d", prev, got)
		}
		prev = f.StepCount()
	}

	ws := f.SmoothedState()
	want := float64(ws.StepCount) * DefaultStepLengthM
	if ws.EstimatedDistanceM != want {
		t.Errorf("EstimatedDistanceM = %v, want %v", ws.EstimatedDistanceM, want)
	}
}

func TestPDRDisabledByDefault(t *testing.T) {
	f := NewFilter()
	s := fix(37.7749, -122.4194, 1000)
	s.AccelZ = 20
	f.Update(s)
	if got := f.StepCount(); got != 0 {
		t.Errorf("StepCount = %d with PDR disabled, want 0", got)
	}
}

func TestAltitudePassThrough(t *testing.T) {
	f := NewFilter()
	s := fix(37.7749, -122.4194, 1000)
	s.Altitude = 123.5
	f.Update(s)
	if ws := f.SmoothedState(); ws.SmoothedAlt != 123.5 {
		t.Errorf("SmoothedAlt = %v, want 123.5", ws.SmoothedAlt)
	}
}

func TestReset(t *testing.T) {
	f := NewFilter()
	f.EnablePDR(true)
	s := fix(37.7749, -122.4194, 1000)
	s.AccelZ = 16
	f.Update(s)

	f.Reset()
	ws := f.SmoothedState()
	if ws.SmoothedLat != 0 || ws.SmoothedLon != 0 {
		t.Errorf("position after reset = (%v, %v), want origin", ws.SmoothedLat, ws.SmoothedLon)
	}
	if ws.StepCount != 0 {
		t.Errorf("StepCount after reset = %d, want 0", ws.StepCount)
	}
	if ws.LastUpdateMS != 0 {
		t.Errorf("LastUpdateMS after reset = %d, want 0", ws.LastUpdateMS)
	}

	// The filter accepts fresh fixes after a reset.
	if !f.Update(fix(37.7749, -122.4194, 5000)) {
		t.Fatal("sample rejected after reset")
	}
	ws = f.SmoothedState()
	if math.Abs(ws.SmoothedLat-37.7749) >= 0.01 {
		t.Errorf("SmoothedLat = %v after reset+update, want near 37.7749", ws.SmoothedLat)
	}
}
