package provider

import (
	"strings"

	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
)

// Dispatcher maps free-text commands to provider activations using
// case-insensitive substring matching.
type Dispatcher struct {
	registry *Registry
	mirror   HeaderMirror
}

// NewDispatcher returns a dispatcher over the registry. mirror may be nil.
func NewDispatcher(registry *Registry, mirror HeaderMirror) *Dispatcher {
	return &Dispatcher{registry: registry, mirror: mirror}
}

// ProcessCommand interprets one command and reports whether it activated a
// provider. Unknown keywords are rejected with no state change.
func (d *Dispatcher) ProcessCommand(command string) bool {
	cmd := strings.ToLower(command)
	monitoring.Logf("dispatch: processing command %q", cmd)

	switch {
	case strings.Contains(cmd, "cycling") || strings.Contains(cmd, "bike"):
		return d.registry.Activate(CyclingName)
	case strings.Contains(cmd, "dating") || strings.Contains(cmd, "tinder"):
		return d.registry.Activate(DatingName)
	case strings.Contains(cmd, "delivery"):
		return d.registry.Activate(DeliveryName)
	case strings.Contains(cmd, "running") || strings.Contains(cmd, "walking"):
		// Foot traffic reuses the cycling context at full accuracy.
		d.setAccuracy(1.0)
		return d.registry.Activate(CyclingName)
	case strings.Contains(cmd, "driving") || strings.Contains(cmd, "car"):
		// Vehicular fallback runs degraded accuracy.
		d.setAccuracy(0.5)
		return d.registry.Activate(CyclingName)
	default:
		monitoring.Logf("dispatch: unknown command %q", command)
		return false
	}
}

func (d *Dispatcher) setAccuracy(level float64) {
	if d.mirror == nil {
		return
	}
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	d.mirror.SetAccuracyLevel(level)
}
