package sensor

import (
	"context"
	"math"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.UnixMilli(1700000000000)
}

func TestDecoderGGA(t *testing.T) {
	d := Decoder{Now: fixedNow}

	sample, ok, err := d.Feed("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !ok {
		t.Fatal("Feed did not complete a fix")
	}
	if math.Abs(sample.Latitude-48.1173) > 1e-6 {
		t.Errorf("Latitude = %v, want 48.1173", sample.Latitude)
	}
	if math.Abs(sample.Longitude-11.5166667) > 1e-6 {
		t.Errorf("Longitude = %v, want 11.5166667", sample.Longitude)
	}
	if sample.Altitude != 545.4 {
		t.Errorf("Altitude = %v, want 545.4", sample.Altitude)
	}
	if math.Abs(sample.Accuracy-0.9*metresPerHDOP) > 1e-9 {
		t.Errorf("Accuracy = %v, want %v", sample.Accuracy, 0.9*metresPerHDOP)
	}
	if sample.TimestampMS != 1700000000000 {
		t.Errorf("TimestampMS = %v, want 1700000000000", sample.TimestampMS)
	}
}

func TestDecoderRMCFeedsSpeedAndHeading(t *testing.T) {
	d := Decoder{Now: fixedNow}

	if _, ok, err := d.Feed("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"); err != nil || ok {
		t.Fatalf("RMC feed: ok=%v err=%v", ok, err)
	}
	sample, ok, err := d.Feed("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")
	if err != nil || !ok {
		t.Fatalf("GGA feed: ok=%v err=%v", ok, err)
	}
	if math.Abs(sample.Speed-22.4*knotsToMS) > 1e-9 {
		t.Errorf("Speed = %v, want %v", sample.Speed, 22.4*knotsToMS)
	}
	if sample.Heading != 84.4 {
		t.Errorf("Heading = %v, want 84.4", sample.Heading)
	}
}

func TestDecoderWesternHemisphere(t *testing.T) {
	d := Decoder{Now: fixedNow}

	sample, ok, err := d.Feed("$GNGGA,123520,3746.494,N,12225.164,W,1,10,1.2,16.0,M,,M,,*68")
	if err != nil || !ok {
		t.Fatalf("Feed: ok=%v err=%v", ok, err)
	}
	if math.Abs(sample.Latitude-37.7749) > 1e-4 {
		t.Errorf("Latitude = %v, want 37.7749", sample.Latitude)
	}
	if math.Abs(sample.Longitude+122.4194) > 1e-4 {
		t.Errorf("Longitude = %v, want -122.4194", sample.Longitude)
	}
}

func TestDecoderSkips(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"no fix GGA", "$GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,*52", false},
		{"void RMC", "$GPRMC,123519,V,,,,,,,230394,,*33", false},
		{"bad checksum", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00", true},
		{"not nmea", "hello world", true},
		{"truncated", "$GP", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decoder{Now: fixedNow}
			_, ok, err := d.Feed(tt.line)
			if ok {
				t.Error("Feed completed a fix, want none")
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		value, hemi string
		want        float64
		wantErr     bool
	}{
		{"4807.038", "N", 48.1173, false},
		{"4807.038", "S", -48.1173, false},
		{"12225.164", "W", -122.4194, false},
		{"", "N", 0, true},
		{"7.038", "N", 0, true},
		{"4807.038", "X", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCoordinate(tt.value, tt.hemi)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCoordinate(%q, %q) err = %v, wantErr %v", tt.value, tt.hemi, err, tt.wantErr)
			continue
		}
		if err == nil && math.Abs(got-tt.want) > 1e-4 {
			t.Errorf("parseCoordinate(%q, %q) = %v, want %v", tt.value, tt.hemi, got, tt.want)
		}
	}
}

func TestSimSourceDeterministicWithFixedClock(t *testing.T) {
	src := &SimSource{Now: fixedNow}
	a, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	b, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if a != b {
		t.Errorf("samples differ under a fixed clock:\n%+v\n%+v", a, b)
	}
	if math.Abs(a.Latitude-37.7749) > 2e-4 {
		t.Errorf("Latitude = %v, want near 37.7749", a.Latitude)
	}
	if a.Accuracy != 10 {
		t.Errorf("Accuracy = %v, want 10", a.Accuracy)
	}
}
