// Package shm implements the shared-memory transport between the location
// daemon and any number of adapter processes.
//
// The segment holds a fixed header followed by a ring of 1024 entries, each
// carrying a WorldState and a ContextFrame behind a per-slot sequence
// counter. One producer writes; readers snapshot the most recent slot and
// use the odd/even sequence handshake to detect torn reads. The layout is
// byte-exact and little-endian so the two processes never need to agree on
// anything beyond this package's constants.
package shm

import (
	"encoding/binary"
	"math"
)

// SegmentName is the well-known name of the shared memory segment.
const SegmentName = "s2sgeo_shm"

// RingSize is the number of entries in the ring buffer.
const RingSize = 1024

// Header field offsets. The header occupies the first 128 bytes of the
// segment. All multi-byte fields are little-endian; fields accessed
// concurrently are 4- or 8-byte aligned so they can be loaded and stored
// with sync/atomic through the mapping.
const (
	offWriteIndex     = 0   // uint32, next slot to write
	offReadIndex      = 4   // uint32, advisory only, not used by the protocol
	offGlobalSequence = 8   // uint32, bumped once per publish
	offProducerAlive  = 12  // uint32, 0 or 1
	offActivePlugin   = 16  // 64-byte NUL-terminated name
	offAccuracyBits   = 80  // float64 bits
	offTotalUpdates   = 88  // uint64
	offTotalContext   = 96  // uint64
	offPluginSeq      = 104 // uint32 seqlock guarding offActivePlugin

	headerSize = 128
)

// ActivePluginLen is the fixed width of the active plugin name field.
const ActivePluginLen = 64

// Entry layout. Each slot starts with its sequence counter, then the
// serialized WorldState and ContextFrame. Slots are padded to 1024 bytes so
// every sequence counter stays 8-byte aligned.
const (
	entrySeqOff     = 0
	entryStateOff   = 8
	entryContextOff = entryStateOff + worldStateSize

	entrySize = 1024
)

// SegmentSize is the total size of the backing segment in bytes.
const SegmentSize = headerSize + RingSize*entrySize

// WorldState serialized field offsets.
const (
	wsLat      = 0  // float64
	wsLon      = 8  // float64
	wsAlt      = 16 // float64
	wsCellID   = 24 // uint64
	wsUpdateMS = 32 // int64
	wsDistance = 40 // float64
	wsLevel    = 48 // int32
	wsSequence = 52 // uint32
	wsSteps    = 56 // uint32
	wsMoving   = 60 // uint8, 3 bytes padding

	worldStateSize = 64
)

// ContextFrame serialized field offsets.
const (
	cfRoadName  = 0   // 256 bytes
	cfSurface   = 256 // 64 bytes
	cfTraffic   = 320 // 32 bytes
	cfSpeed     = 352 // float64, m/s
	cfLimit     = 360 // float64, km/h
	cfElevation = 368 // float64, metres gained
	cfGradient  = 376 // float64, percent
	cfHazards   = 384 // 512 bytes
	cfTimestamp = 896 // int64, ms

	contextFrameSize = 904
)

// Fixed string field widths, exported for callers building frames.
const (
	RoadNameLen = 256
	SurfaceLen  = 64
	TrafficLen  = 32
	HazardsLen  = 512
)

// WorldState is the authoritative smoothed location snapshot published to
// the ring. It has no heap-owned fields; every publish copies it byte for
// byte into a slot.
type WorldState struct {
	SmoothedLat        float64
	SmoothedLon        float64
	SmoothedAlt        float64
	CellID             uint64
	CellLevel          int32
	LastUpdateMS       int64
	UpdateSequence     uint32
	IsMoving           bool
	StepCount          uint32
	EstimatedDistanceM float64
}

// ContextFrame is the fixed-size environmental payload published alongside a
// WorldState. String fields are fixed-width NUL-terminated byte arrays; use
// PutFixedString and FixedString to work with them.
type ContextFrame struct {
	RoadName        [RoadNameLen]byte
	Surface         [SurfaceLen]byte
	Traffic         [TrafficLen]byte
	CurrentSpeed    float64 // m/s
	SpeedLimit      float64 // km/h
	ElevationGainM  float64
	GradientPercent float64
	Hazards         [HazardsLen]byte
	TimestampMS     int64
}

// IsZero reports whether the frame carries no context. The daemon publishes
// zero frames on ticks without a cell transition.
func (cf *ContextFrame) IsZero() bool {
	return cf.TimestampMS == 0 && cf.RoadName[0] == 0 && cf.Surface[0] == 0
}

// PutFixedString copies s into the fixed-width field dst. Shorter strings
// are NUL-terminated and zero-padded. Strings of the field width or longer
// are truncated; the truncation is recorded by leaving the field
// unterminated at the final byte.
func PutFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// FixedString returns the string stored in a fixed-width field, up to the
// first NUL or the full width when unterminated.
func FixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

var le = binary.LittleEndian

func encodeWorldState(b []byte, ws *WorldState) {
	le.PutUint64(b[wsLat:], math.Float64bits(ws.SmoothedLat))
	le.PutUint64(b[wsLon:], math.Float64bits(ws.SmoothedLon))
	le.PutUint64(b[wsAlt:], math.Float64bits(ws.SmoothedAlt))
	le.PutUint64(b[wsCellID:], ws.CellID)
	le.PutUint64(b[wsUpdateMS:], uint64(ws.LastUpdateMS))
	le.PutUint64(b[wsDistance:], math.Float64bits(ws.EstimatedDistanceM))
	le.PutUint32(b[wsLevel:], uint32(ws.CellLevel))
	le.PutUint32(b[wsSequence:], ws.UpdateSequence)
	le.PutUint32(b[wsSteps:], ws.StepCount)
	if ws.IsMoving {
		b[wsMoving] = 1
	} else {
		b[wsMoving] = 0
	}
	b[wsMoving+1], b[wsMoving+2], b[wsMoving+3] = 0, 0, 0
}

func decodeWorldState(b []byte) WorldState {
	return WorldState{
		SmoothedLat:        math.Float64frombits(le.Uint64(b[wsLat:])),
		SmoothedLon:        math.Float64frombits(le.Uint64(b[wsLon:])),
		SmoothedAlt:        math.Float64frombits(le.Uint64(b[wsAlt:])),
		CellID:             le.Uint64(b[wsCellID:]),
		CellLevel:          int32(le.Uint32(b[wsLevel:])),
		LastUpdateMS:       int64(le.Uint64(b[wsUpdateMS:])),
		UpdateSequence:     le.Uint32(b[wsSequence:]),
		IsMoving:           b[wsMoving] != 0,
		StepCount:          le.Uint32(b[wsSteps:]),
		EstimatedDistanceM: math.Float64frombits(le.Uint64(b[wsDistance:])),
	}
}

func encodeContextFrame(b []byte, cf *ContextFrame) {
	copy(b[cfRoadName:cfRoadName+RoadNameLen], cf.RoadName[:])
	copy(b[cfSurface:cfSurface+SurfaceLen], cf.Surface[:])
	copy(b[cfTraffic:cfTraffic+TrafficLen], cf.Traffic[:])
	le.PutUint64(b[cfSpeed:], math.Float64bits(cf.CurrentSpeed))
	le.PutUint64(b[cfLimit:], math.Float64bits(cf.SpeedLimit))
	le.PutUint64(b[cfElevation:], math.Float64bits(cf.ElevationGainM))
	le.PutUint64(b[cfGradient:], math.Float64bits(cf.GradientPercent))
	copy(b[cfHazards:cfHazards+HazardsLen], cf.Hazards[:])
	le.PutUint64(b[cfTimestamp:], uint64(cf.TimestampMS))
}

func decodeContextFrame(b []byte) ContextFrame {
	var cf ContextFrame
	copy(cf.RoadName[:], b[cfRoadName:cfRoadName+RoadNameLen])
	copy(cf.Surface[:], b[cfSurface:cfSurface+SurfaceLen])
	copy(cf.Traffic[:], b[cfTraffic:cfTraffic+TrafficLen])
	cf.CurrentSpeed = math.Float64frombits(le.Uint64(b[cfSpeed:]))
	cf.SpeedLimit = math.Float64frombits(le.Uint64(b[cfLimit:]))
	cf.ElevationGainM = math.Float64frombits(le.Uint64(b[cfElevation:]))
	cf.GradientPercent = math.Float64frombits(le.Uint64(b[cfGradient:]))
	copy(cf.Hazards[:], b[cfHazards:cfHazards+HazardsLen])
	cf.TimestampMS = int64(le.Uint64(b[cfTimestamp:]))
	return cf
}
