// Package adapter runs the consumer side of the pipeline: it snapshots the
// latest world state from shared memory, detects context changes and
// forwards them as system instructions to an external speech/AI session.
package adapter

import (
	"fmt"
	"math"
	"strings"

	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
	"github.com/bpriyal/s2sGeoAdapter/internal/units"
)

// ContextHash condenses a frame into the 64-bit value used for change
// detection: a running x31 polynomial over the surface string and the
// gradient quantised to tenths of a percent. Sub-0.1-point gradient jitter
// therefore never retriggers a forward. Road name, traffic and elevation
// gain are deliberately outside the hash; changes to them alone do not
// re-forward.
func ContextHash(cf *shm.ContextFrame) uint64 {
	var h uint64
	for _, b := range cf.Surface {
		if b == 0 {
			break
		}
		h = h*31 + uint64(b)
	}
	h = h*31 + uint64(int64(math.Round(cf.GradientPercent*10)))
	return h
}

// BuildSystemInstruction renders the state and context as the human-readable
// instruction injected into the session.
func BuildSystemInstruction(ws *shm.WorldState, cf *shm.ContextFrame) string {
	var b strings.Builder
	b.WriteString("You are an expert cycling guide. ")
	fmt.Fprintf(&b, "User is at coordinates %.6f, %.6f, elevation %.1fm. ",
		ws.SmoothedLat, ws.SmoothedLon, ws.SmoothedAlt)

	if road := shm.FixedString(cf.RoadName[:]); road != "" {
		surface := shm.FixedString(cf.Surface[:])
		fmt.Fprintf(&b, "Road: %s (%s). ", road, surface)
	}
	fmt.Fprintf(&b, "Current gradient: %.1f%%. ", cf.GradientPercent)
	if traffic := shm.FixedString(cf.Traffic[:]); traffic != "" {
		fmt.Fprintf(&b, "Traffic level: %s. ", traffic)
	}
	if cf.CurrentSpeed > 0 {
		fmt.Fprintf(&b, "Current speed: %.1f km/h. ", units.FromMPS(cf.CurrentSpeed, units.KMPH))
	}
	if cf.SpeedLimit > 0 {
		fmt.Fprintf(&b, "Speed limit: %.0f km/h. ", cf.SpeedLimit)
	}

	if ws.IsMoving {
		fmt.Fprintf(&b, "User is moving. Detected %d steps, %.1fm traveled.",
			ws.StepCount, ws.EstimatedDistanceM)
	} else {
		b.WriteString("User is stationary.")
	}
	return b.String()
}
