package sensor

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
)

// metresPerHDOP converts an NMEA horizontal dilution of precision into an
// approximate 1-sigma accuracy, assuming a ~5 m user range error.
const metresPerHDOP = 5.0

const knotsToMS = 0.514444

// Decoder folds NMEA sentences into Samples. RMC sentences contribute speed
// and heading; a valid GGA sentence completes a fix.
type Decoder struct {
	speedMS float64
	heading float64

	// Now supplies fix timestamps; defaults to time.Now.
	Now func() time.Time
}

// Feed parses one sentence. It returns a completed Sample when the sentence
// was a GGA fix with a usable position. Malformed sentences are skipped with
// an error; unrelated sentences are skipped without one.
func (d *Decoder) Feed(line string) (Sample, bool, error) {
	line = strings.TrimSpace(line)
	fields, err := checksumFields(line)
	if err != nil {
		return Sample{}, false, err
	}
	if len(fields) == 0 {
		return Sample{}, false, fmt.Errorf("empty sentence")
	}

	tag := fields[0]
	if len(tag) >= 5 {
		tag = tag[len(tag)-3:] // strip talker prefix: GPGGA, GNGGA -> GGA
	}
	switch tag {
	case "RMC":
		return Sample{}, false, d.feedRMC(fields)
	case "GGA":
		return d.feedGGA(fields)
	default:
		return Sample{}, false, nil
	}
}

func (d *Decoder) feedRMC(fields []string) error {
	if len(fields) < 9 {
		return fmt.Errorf("RMC sentence has %d fields", len(fields))
	}
	if fields[2] != "A" {
		return nil // void fix, keep previous speed/heading
	}
	if sog, err := strconv.ParseFloat(fields[7], 64); err == nil {
		d.speedMS = sog * knotsToMS
	}
	if cog, err := strconv.ParseFloat(fields[8], 64); err == nil {
		d.heading = cog
	}
	return nil
}

func (d *Decoder) feedGGA(fields []string) (Sample, bool, error) {
	if len(fields) < 10 {
		return Sample{}, false, fmt.Errorf("GGA sentence has %d fields", len(fields))
	}
	if fields[6] == "" || fields[6] == "0" {
		return Sample{}, false, nil // no fix yet
	}
	lat, err := parseCoordinate(fields[2], fields[3])
	if err != nil {
		return Sample{}, false, fmt.Errorf("GGA latitude: %w", err)
	}
	lon, err := parseCoordinate(fields[4], fields[5])
	if err != nil {
		return Sample{}, false, fmt.Errorf("GGA longitude: %w", err)
	}

	accuracy := 10.0
	if hdop, err := strconv.ParseFloat(fields[8], 64); err == nil && hdop > 0 {
		accuracy = hdop * metresPerHDOP
	}
	altitude := 0.0
	if alt, err := strconv.ParseFloat(fields[9], 64); err == nil {
		altitude = alt
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return Sample{
		Latitude:    lat,
		Longitude:   lon,
		Altitude:    altitude,
		Accuracy:    accuracy,
		Speed:       d.speedMS,
		Heading:     d.heading,
		TimestampMS: now().UnixMilli(),
	}, true, nil
}

// checksumFields validates the $...*hh framing and returns the
// comma-separated fields between them.
func checksumFields(line string) ([]string, error) {
	if len(line) < 4 || line[0] != '$' {
		return nil, fmt.Errorf("not an NMEA sentence: %q", line)
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star+3 > len(line) {
		return nil, fmt.Errorf("missing checksum: %q", line)
	}
	body := line[1:star]
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("bad checksum field: %q", line)
	}
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	if sum != byte(want) {
		return nil, fmt.Errorf("checksum mismatch: got %02X want %02X", sum, byte(want))
	}
	return strings.Split(body, ","), nil
}

// parseCoordinate converts an NMEA ddmm.mmmm coordinate and hemisphere into
// signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	dot := strings.IndexByte(value, '.')
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	degrees, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, err
	}
	deg := degrees + minutes/60.0
	switch hemisphere {
	case "S", "W":
		deg = -deg
	case "N", "E":
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", hemisphere)
	}
	return deg, nil
}

// SerialSource reads NMEA sentences from a GPS receiver on a serial port.
// IMU channels are zero; step detection stays dormant on this source.
type SerialSource struct {
	port serial.Port
	dec  Decoder
	buf  []byte
	line []byte
}

// readTimeout bounds each port read so Next can notice context cancellation.
const readTimeout = 500 * time.Millisecond

// OpenSerialSource opens the named serial device at the given baud rate.
func OpenSerialSource(device string, baud int) (*SerialSource, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	return &SerialSource{port: port, buf: make([]byte, 256)}, nil
}

// Next blocks until the receiver produces a usable fix or the context is
// cancelled.
func (s *SerialSource) Next(ctx context.Context) (Sample, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}
		line, err := s.readLine()
		if err != nil {
			return Sample{}, err
		}
		if line == "" {
			continue // read timeout, poll ctx again
		}
		sample, ok, err := s.dec.Feed(line)
		if err != nil {
			monitoring.Logf("sensor: skipping sentence: %v", err)
			continue
		}
		if ok {
			return sample, nil
		}
	}
}

// readLine assembles one newline-terminated sentence from the port. It
// returns an empty string when a read times out with no pending data.
func (s *SerialSource) readLine() (string, error) {
	for {
		if i := bytes.IndexByte(s.line, '\n'); i >= 0 {
			line := string(s.line[:i])
			s.line = append(s.line[:0], s.line[i+1:]...)
			return strings.TrimRight(line, "\r"), nil
		}
		n, err := s.port.Read(s.buf)
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			return "", nil
		}
		s.line = append(s.line, s.buf[:n]...)
	}
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}
