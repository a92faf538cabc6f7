// Package sensor provides positioning sample sources for the location
// daemon: a simulated walk, a scripted playback source for tests, and a
// serial NMEA GPS receiver.
package sensor

import "context"

// Sample is one raw positioning reading: a GPS fix plus six-axis inertial
// data. Samples are transient; the fusion filter consumes each one exactly
// once and nothing persists them.
type Sample struct {
	Latitude    float64 // degrees, WGS84
	Longitude   float64 // degrees
	Altitude    float64 // metres
	Accuracy    float64 // metres, 1 sigma
	Speed       float64 // m/s
	Heading     float64 // degrees, 0-360
	TimestampMS int64   // ms since epoch

	AccelX, AccelY, AccelZ float64 // m/s^2
	GyroX, GyroY, GyroZ    float64 // rad/s
}

// Source produces samples for the daemon loop. Next blocks until a sample is
// available or the context is cancelled.
type Source interface {
	Next(ctx context.Context) (Sample, error)
	Close() error
}
