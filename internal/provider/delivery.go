package provider

import (
	"time"

	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

// DeliveryName is the registry name of the delivery provider.
const DeliveryName = "delivery"

// DeliveryProvider frames the surroundings for couriers: route segment,
// surface and drop-off hazards. It has no upstream and serves representative
// data under the standard cache discipline.
type DeliveryProvider struct {
	cache frameCache
	now   func() time.Time
}

// NewDeliveryProvider returns a ready provider.
func NewDeliveryProvider() *DeliveryProvider {
	return &DeliveryProvider{now: time.Now}
}

// Initialize accepts and ignores configuration; the provider has no
// upstream settings.
func (d *DeliveryProvider) Initialize(config []byte) error { return nil }

// Name returns the registry name.
func (d *DeliveryProvider) Name() string { return DeliveryName }

// GetContext returns the courier frame for a position.
func (d *DeliveryProvider) GetContext(lat, lon float64) shm.ContextFrame {
	nowMS := d.now().UnixMilli()
	if frame, ok := d.cache.get(lat, lon, nowMS); ok {
		return frame
	}

	var frame shm.ContextFrame
	shm.PutFixedString(frame.RoadName[:], "Depot Route 7")
	shm.PutFixedString(frame.Surface[:], "paved")
	shm.PutFixedString(frame.Traffic[:], "moderate")
	shm.PutFixedString(frame.Hazards[:],
		`[{"type":"loading_zone","distance":120},{"type":"dropoff","distance":340}]`)
	frame.SpeedLimit = 30
	frame.TimestampMS = nowMS

	d.cache.put(frame, lat, lon, nowMS)
	return frame
}

// PrefetchContext is a no-op; the provider has no upstream to warm.
func (d *DeliveryProvider) PrefetchContext(lat, lon, headingDeg, distanceM float64) {}
