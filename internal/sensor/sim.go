package sensor

import (
	"context"
	"math"
	"time"
)

// SimSource synthesises a slow oscillating walk around a fixed origin with a
// matching 1 Hz body-motion signature on the accelerometer. It stands in for
// platform GPS/IMU hardware during development and demos.
type SimSource struct {
	// OriginLat and OriginLon anchor the walk. Defaults to downtown
	// San Francisco when zero.
	OriginLat float64
	OriginLon float64

	// StepAmplitude scales the vertical acceleration oscillation on top of
	// gravity. The default keeps the signal below the step detector
	// threshold; raise it to exercise PDR.
	StepAmplitude float64

	// Now supplies timestamps; defaults to time.Now.
	Now func() time.Time
}

// NewSimSource returns a simulator anchored at the default origin.
func NewSimSource() *SimSource {
	return &SimSource{}
}

func (s *SimSource) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	lat, lon := s.OriginLat, s.OriginLon
	if lat == 0 && lon == 0 {
		lat, lon = 37.7749, -122.4194
	}
	amp := s.StepAmplitude
	if amp == 0 {
		amp = 3.0
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	ms := now().UnixMilli()
	t := float64(ms) / 1000.0
	return Sample{
		Latitude:    lat + math.Sin(t)*1e-4,
		Longitude:   lon + math.Cos(t)*1e-4,
		Altitude:    50.0,
		Accuracy:    10.0,
		Speed:       5.0,
		Heading:     90.0,
		TimestampMS: ms,
		AccelX:      math.Sin(t*2*math.Pi) * 2.0,
		AccelZ:      9.81 + math.Sin(t*2*math.Pi)*amp,
		GyroZ:       math.Cos(t*2*math.Pi) * 0.5,
	}, nil
}

func (s *SimSource) Close() error { return nil }

// ScriptSource replays a fixed slice of samples and then blocks until the
// context is cancelled. Tests use it to drive the daemon deterministically.
type ScriptSource struct {
	Samples []Sample
	next    int
}

func (s *ScriptSource) Next(ctx context.Context) (Sample, error) {
	if s.next >= len(s.Samples) {
		<-ctx.Done()
		return Sample{}, ctx.Err()
	}
	sample := s.Samples[s.next]
	s.next++
	return sample, nil
}

func (s *ScriptSource) Close() error { return nil }
