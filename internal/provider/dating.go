package provider

import (
	"encoding/json"
	"time"

	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

// DatingName is the registry name of the dating provider.
const DatingName = "dating"

// DatingProvider frames the surroundings as venues and nearby users rather
// than road conditions. The upstream service is an opaque endpoint; until
// one is wired in the provider serves representative data.
type DatingProvider struct {
	endpoint string
	cache    frameCache
	now      func() time.Time
}

type datingConfig struct {
	Endpoint string `json:"endpoint"`
}

// NewDatingProvider returns an unconfigured provider.
func NewDatingProvider() *DatingProvider {
	return &DatingProvider{now: time.Now}
}

// Initialize reads the opaque endpoint string. Malformed config is logged
// and ignored.
func (d *DatingProvider) Initialize(config []byte) error {
	if len(config) == 0 {
		return nil
	}
	var cfg datingConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		monitoring.Logf("dating: bad config, using defaults: %v", err)
		return nil
	}
	d.endpoint = cfg.Endpoint
	return nil
}

// Name returns the registry name.
func (d *DatingProvider) Name() string { return DatingName }

// GetContext returns the venue frame for a position, cached under the same
// discipline as every provider.
func (d *DatingProvider) GetContext(lat, lon float64) shm.ContextFrame {
	nowMS := d.now().UnixMilli()
	if frame, ok := d.cache.get(lat, lon, nowMS); ok {
		return frame
	}

	var frame shm.ContextFrame
	shm.PutFixedString(frame.RoadName[:], "Central Park")
	shm.PutFixedString(frame.Surface[:], "venue")
	shm.PutFixedString(frame.Traffic[:], "busy")
	shm.PutFixedString(frame.Hazards[:],
		`[{"type":"user","name":"Sarah","distance":50},{"type":"venue","name":"Coffee Shop","distance":200}]`)
	frame.TimestampMS = nowMS

	d.cache.put(frame, lat, lon, nowMS)
	return frame
}

// PrefetchContext would warm nearby venue and user lookups; with no live
// upstream there is nothing to do.
func (d *DatingProvider) PrefetchContext(lat, lon, headingDeg, distanceM float64) {
	monitoring.Logf("dating: prefetch around %.5f, %.5f", lat, lon)
}
